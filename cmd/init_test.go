package cmd

import (
	"fmt"
	"github.com/cbusillo/discord-blue/discordblue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"os"
	"path/filepath"
	"testing"
)

// mockPasswords makes readPassword return each of passwords in turn
func mockPasswords(t testing.TB, passwords ...string) {
	t.Helper()
	passwordIndex := 0
	customPasswordReader = func() ([]byte, error) {
		if passwordIndex >= len(passwords) {
			return nil, fmt.Errorf("no more passwords")
		}
		password := passwords[passwordIndex]
		passwordIndex++
		return []byte(password), nil
	}
	t.Cleanup(
		func() {
			customPasswordReader = nil
		},
	)
}

func TestInitCommand(t *testing.T) {
	resetConfig(t)
	tempDir := t.TempDir()
	dbPath := filepath.Join(tempDir, "test.db")
	statePath := filepath.Join(tempDir, "state", "config.toml")

	t.Setenv("BLUE_DATABASE_TYPE", "sqlite")
	t.Setenv("BLUE_DATABASE", dbPath)
	t.Setenv("BLUE_STATE_PATH", statePath)

	mockPasswords(t, "testpassword", "typo", "testpassword", "testpassword")

	output, err := executeCommand(t, "init")
	require.NoError(t, err)
	t.Logf("output: %s", output)

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "Database file should exist")
	_, err = os.Stat(statePath)
	assert.NoError(t, err, "State document should exist")

	assert.Contains(t, output, "State document: "+statePath)
	assert.Contains(t, output, "Admin password is not set. Let's set it up.")
	assert.Contains(t, output, "Enter admin password:")
	assert.Contains(t, output, "Confirm admin password:")
	assert.Contains(t, output, "Passwords do not match. Please try again.")
	assert.Contains(t, output, "Admin password set successfully.")
	assert.Contains(t, output, "Initialization complete")

	// Verify the database contents
	db, err := gorm.Open(sqlite.Open(dbPath))
	require.NoError(t, err)
	t.Cleanup(
		func() {
			sqlDB, _ := db.DB()
			if sqlDB != nil {
				_ = sqlDB.Close()
			}
		},
	)

	mg := db.Migrator()
	assert.True(t, mg.HasTable(&discordblue.InteractionLog{}))
	assert.True(t, mg.HasTable(&discordblue.PrintJob{}))
	assert.True(t, mg.HasTable(&discordblue.Shipment{}))

	store, err := discordblue.LoadStateStore(statePath, nil)
	require.NoError(t, err)
	hash := store.State().API.AdminPasswordHash
	assert.NotEmpty(t, hash)
	assert.NotEqual(t, "testpassword", hash) // Password should be hashed

	valid, err := discordblue.VerifyPassword(hash, "testpassword")
	assert.NoError(t, err)
	assert.True(t, valid)

	// A second run leaves the password alone
	mockPasswords(t)
	output, err = executeCommand(t, "init")
	require.NoError(t, err)
	assert.Contains(t, output, "Admin password is already set.")
	assert.NotContains(t, output, "Enter admin password:")
}

func TestInitCommandPasswordError(t *testing.T) {
	resetConfig(t)
	tempDir := t.TempDir()
	t.Setenv("BLUE_DATABASE_TYPE", "sqlite")
	t.Setenv("BLUE_DATABASE", filepath.Join(tempDir, "test.db"))
	t.Setenv("BLUE_STATE_PATH", filepath.Join(tempDir, "config.toml"))

	mockPasswords(t, "only-one")

	_, err := executeCommand(t, "init")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading password")
}
