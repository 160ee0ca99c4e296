package cmd

import (
	"bytes"
	"github.com/cbusillo/discord-blue/discordblue"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestPromptSecrets(t *testing.T) {
	resetConfig(t)
	cfg.Discord.Token = discordblue.SecretFromTerminal
	cfg.PrintNode.APIKey = "already-set"
	cfg.LLM.Token = discordblue.SecretFromTerminal

	mockPasswords(t, " discord-token\n", "openai-token")

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)

	require.NoError(t, promptSecrets(cmd))
	assert.Equal(t, "discord-token", cfg.Discord.Token)
	assert.Equal(t, "already-set", cfg.PrintNode.APIKey)
	assert.Equal(t, "openai-token", cfg.LLM.Token)
	assert.Equal(t, "Enter discord.token: \nEnter llm.token: \n", out.String())
}

func TestPromptSecretsEmpty(t *testing.T) {
	resetConfig(t)
	cfg.Shippo.APIKey = discordblue.SecretFromTerminal
	mockPasswords(t, "   ")

	cmd := &cobra.Command{}
	cmd.SetOut(&bytes.Buffer{})

	err := promptSecrets(cmd)
	require.Error(t, err)
	assert.Equal(t, "shippo.api_key is required", err.Error())
}
