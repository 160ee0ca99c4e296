package cmd

import (
	"fmt"
	"github.com/cbusillo/discord-blue/discordblue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestVersionCommand(t *testing.T) {
	resetConfig(t)
	originalVersion := discordblue.Version
	originalCommitSHA := discordblue.CommitSHA
	originalBuildTime := discordblue.BuildTime

	t.Cleanup(
		func() {
			discordblue.Version = originalVersion
			discordblue.CommitSHA = originalCommitSHA
			discordblue.BuildTime = originalBuildTime
		},
	)

	discordblue.Version = "1.0.0"
	discordblue.CommitSHA = "abc123"
	discordblue.BuildTime = "2023-10-01T12:00:00Z"

	output, err := executeCommand(t, "version")
	require.NoError(t, err)
	t.Logf("output: %s", output)
	expected := fmt.Sprintf(
		"version=%s commit=%s built: %s\n",
		discordblue.Version,
		discordblue.CommitSHA,
		discordblue.BuildTime,
	)
	assert.Equal(t, expected, output)
}
