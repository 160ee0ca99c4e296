package discordblue

import (
	"context"
	"errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func newTestStateStore(t testing.TB) *StateStore {
	t.Helper()
	store, err := LoadStateStore(filepath.Join(t.TempDir(), "state", "config.toml"), nil)
	require.NoError(t, err)
	return store
}

func TestLoadStateStore_CreatesDocument(t *testing.T) {
	t.Parallel()
	store := newTestStateStore(t)

	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	for _, section := range []string{"discord", "llm_training", "asset_label_printer", "shipping", "api"} {
		assert.Contains(t, string(data), section)
	}

	state := store.State()
	assert.NotNil(t, state.Discord.LoadedDoodads)
	assert.NotNil(t, state.LLMTraining.Models)
	assert.NotNil(t, state.AssetLabelPrinter.Schools)
}

func TestLoadStateStore_InvalidDocument(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[discord\nguild_id = "), 0o600))

	_, err := LoadStateStore(path, nil)
	assert.Error(t, err)
}

func TestStateStore_SetGet(t *testing.T) {
	t.Parallel()
	store := newTestStateStore(t)

	// numeric-looking IDs stay strings
	require.NoError(t, store.Set("discord__guild_id", "123456789012345678"))
	assert.Equal(t, "123456789012345678", store.State().Discord.GuildID)
	v, err := store.Get("discord__guild_id")
	require.NoError(t, err)
	assert.Equal(t, "123456789012345678", v)

	require.NoError(t, store.Set("discord__employee_role_name", "Staff"))
	assert.Equal(t, "Staff", store.State().Discord.EmployeeRoleName)

	require.NoError(t, store.Set("asset_label_printer__printers__Front Desk", "70000001"))
	assert.Equal(t, map[string]int{"Front Desk": 70000001}, store.State().AssetLabelPrinter.Printers)
	v, err = store.Get("asset_label_printer__printers__Front Desk")
	require.NoError(t, err)
	assert.EqualValues(t, 70000001, v)

	require.NoError(t, store.Set("llm_training__models__alice", "ft:gpt-4o-mini:acme::abc123"))
	assert.Equal(t, "ft:gpt-4o-mini:acme::abc123", store.State().LLMTraining.Models["alice"])

	// persisted
	reloaded, err := LoadStateStore(store.Path(), nil)
	require.NoError(t, err)
	assert.Equal(t, store.State(), reloaded.State())
}

func TestStateStore_SetInvalid(t *testing.T) {
	t.Parallel()
	store := newTestStateStore(t)
	before := store.State()

	testCases := []struct {
		key   string
		value string
	}{
		{key: "discord", value: "x"},
		{key: "discord__guild_id__x__y", value: "x"},
		{key: "discord____x", value: "x"},
		{key: "nope__field", value: "x"},
		{key: "discord__guild_id__x", value: "x"},
	}
	for _, tc := range testCases {
		t.Run(tc.key, func(t *testing.T) {
			assert.ErrorIs(t, store.Set(tc.key, tc.value), ErrInvalidStateKey)
		})
	}

	assert.Error(t, store.Set("discord__unknown_field", "x"))
	assert.Error(t, store.Set("discord__loaded_doodads", "template_doodad"))
	assert.Error(t, store.Set("asset_label_printer__printers__Front", "not-a-number"))

	_, err := store.Get("discord__missing")
	assert.ErrorIs(t, err, ErrInvalidStateKey)

	assert.Equal(t, before, store.State())
}

func TestStateStore_UpdateError(t *testing.T) {
	t.Parallel()
	store := newTestStateStore(t)
	failed := errors.New("nope")

	err := store.Update(
		func(s *State) error {
			s.Discord.GuildID = "1"
			return failed
		},
	)
	assert.ErrorIs(t, err, failed)
	assert.Empty(t, store.State().Discord.GuildID)
}

func TestStateStore_StateIsCopy(t *testing.T) {
	t.Parallel()
	store := newTestStateStore(t)
	require.NoError(t, store.Set("asset_label_printer__schools__lincoln", "Lincoln"))

	state := store.State()
	state.AssetLabelPrinter.Schools["other"] = "Other"
	state.Discord.LoadedDoodads = append(state.Discord.LoadedDoodads, "x")

	assert.Equal(t, map[string]string{"lincoln": "Lincoln"}, store.State().AssetLabelPrinter.Schools)
	assert.Empty(t, store.State().Discord.LoadedDoodads)
}

func TestStateStore_Reload(t *testing.T) {
	t.Parallel()
	store := newTestStateStore(t)

	var reloaded atomic.Value
	store.OnReload(
		func(s State) {
			reloaded.Store(s.Discord.GuildID)
		},
	)

	require.NoError(
		t,
		os.WriteFile(store.Path(), []byte("[discord]\nguild_id = \"42\"\n"), 0o600),
	)
	require.NoError(t, store.Reload())

	assert.Equal(t, "42", store.State().Discord.GuildID)
	assert.Equal(t, "42", reloaded.Load())
}

func TestStateStore_Watch(t *testing.T) {
	t.Parallel()
	store := newTestStateStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	watchErr := make(chan error, 1)
	go func() {
		watchErr <- store.Watch(ctx)
	}()

	// rewritten on each tick, in case the watcher wasn't ready for the
	// first write. Ticks are longer than the debounce interval.
	content := []byte("[discord]\nguild_id = \"43\"\n")
	assert.Eventually(
		t,
		func() bool {
			if store.State().Discord.GuildID == "43" {
				return true
			}
			_ = os.WriteFile(store.Path(), content, 0o600)
			return false
		},
		10*time.Second,
		2*stateWatchDebounce,
	)

	cancel()
	select {
	case err := <-watchErr:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("watch didn't stop")
	}
}

func TestInferStateValue(t *testing.T) {
	t.Parallel()
	assert.Equal(t, int64(12), inferStateValue("12"))
	assert.Equal(t, true, inferStateValue("true"))
	assert.Equal(t, "hello", inferStateValue("hello"))
	assert.Equal(t, "", inferStateValue(""))
}
