package discordblue

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"github.com/fsnotify/fsnotify"
	"github.com/lmittmann/tint"
	"github.com/pelletier/go-toml/v2"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	stateKeySeparator   = "__"
	stateWatchDebounce  = 250 * time.Millisecond
	stateFilePermission = 0o600
)

var (
	ErrInvalidStateKey = errors.New("invalid state key")
)

// State is the bot-managed document persisted as TOML. Unlike Config, it
// is modified while the bot runs (by slash commands, the API and the CLI).
type State struct {
	Discord           DiscordState           `toml:"discord" json:"discord"`
	LLMTraining       LLMTrainingState       `toml:"llm_training" json:"llm_training"`
	AssetLabelPrinter AssetLabelPrinterState `toml:"asset_label_printer" json:"asset_label_printer"`
	Shipping          ShippingState          `toml:"shipping" json:"shipping"`
	API               APIState               `toml:"api" json:"api"`
}

type DiscordState struct {
	GuildID          string   `toml:"guild_id" json:"guild_id"`
	BotChannelID     string   `toml:"bot_channel_id" json:"bot_channel_id"`
	EmployeeRoleName string   `toml:"employee_role_name" json:"employee_role_name"`
	LoadedDoodads    []string `toml:"loaded_doodads" json:"loaded_doodads"`
}

// ChannelCheckpoint records the last message collected from a channel
type ChannelCheckpoint struct {
	Name          string `toml:"name" json:"name"`
	LastMessageID string `toml:"last_message_id" json:"last_message_id"`
}

type LLMTrainingState struct {
	// Channels maps channel IDs to their collection checkpoint
	Channels map[string]ChannelCheckpoint `toml:"channels" json:"channels"`

	// Models maps usernames to fine-tuned model IDs
	Models map[string]string `toml:"models" json:"models"`
}

type AssetLabelPrinterState struct {
	// Schools maps school keys to display names
	Schools map[string]string `toml:"schools" json:"schools"`

	// Printers maps printer names to PrintNode printer IDs
	Printers map[string]int `toml:"printers" json:"printers"`
}

type ShippingState struct {
	From Address `toml:"from" json:"from"`
}

type APIState struct {
	AdminPasswordHash string `toml:"admin_password_hash" json:"-"`
}

// normalize replaces nil collections with empty ones, so the saved
// document always carries every section
func (s *State) normalize() {
	if s.Discord.LoadedDoodads == nil {
		s.Discord.LoadedDoodads = []string{}
	}
	if s.LLMTraining.Channels == nil {
		s.LLMTraining.Channels = map[string]ChannelCheckpoint{}
	}
	if s.LLMTraining.Models == nil {
		s.LLMTraining.Models = map[string]string{}
	}
	if s.AssetLabelPrinter.Schools == nil {
		s.AssetLabelPrinter.Schools = map[string]string{}
	}
	if s.AssetLabelPrinter.Printers == nil {
		s.AssetLabelPrinter.Printers = map[string]int{}
	}
}

// clone returns a deep copy of the state
func (s State) clone() State {
	c := s
	c.Discord.LoadedDoodads = slices.Clone(s.Discord.LoadedDoodads)
	c.LLMTraining.Channels = maps.Clone(s.LLMTraining.Channels)
	c.LLMTraining.Models = maps.Clone(s.LLMTraining.Models)
	c.AssetLabelPrinter.Schools = maps.Clone(s.AssetLabelPrinter.Schools)
	c.AssetLabelPrinter.Printers = maps.Clone(s.AssetLabelPrinter.Printers)
	c.normalize()
	return c
}

// StateStore loads, saves and watches the TOML state document. All
// methods are safe for concurrent use.
type StateStore struct {
	path      string
	logger    *slog.Logger
	state     State
	lastSaved []byte
	onReload  []func(State)
	mu        sync.RWMutex
}

// LoadStateStore opens the state document at path, creating it (and its
// parent directory) if missing. The loaded document is saved back
// immediately, so missing sections are filled in on disk.
func LoadStateStore(path string, logger *slog.Logger) (*StateStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	path = filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("error creating state directory: %w", err)
	}

	s := &StateStore{
		path:   path,
		logger: logger.With(loggerNameKey, "state"),
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.unsafeSave(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the location of the state document
func (s *StateStore) Path() string {
	return s.path
}

// State returns a copy of the current document
func (s *StateStore) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

// Update applies fn to a copy of the current document, and saves the
// result. If fn or the save fails, the current document is unchanged.
func (s *StateStore) Update(fn func(*State) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated := s.state.clone()
	if err := fn(&updated); err != nil {
		return err
	}
	previous := s.state
	s.state = updated
	if err := s.unsafeSave(); err != nil {
		s.state = previous
		return err
	}
	return nil
}

// Reload re-reads the document from disk, replacing the in-memory copy.
// A missing or empty file yields an empty document.
func (s *StateStore) Reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("error reading state: %w", err)
	}

	state, err := decodeState(data)
	if err != nil {
		return fmt.Errorf("error loading state from %s: %w", s.path, err)
	}

	s.mu.Lock()
	s.state = state
	s.lastSaved = data
	callbacks := slices.Clone(s.onReload)
	s.mu.Unlock()

	for _, cb := range callbacks {
		cb(state.clone())
	}
	return nil
}

// OnReload registers a callback to run after the document is reloaded
// from disk
func (s *StateStore) OnReload(fn func(State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReload = append(s.onReload, fn)
}

// Get returns the value at a `section__field[__key]` path, formatted as
// TOML would show it.
func (s *StateStore) Get(key string) (any, error) {
	doc, err := s.document()
	if err != nil {
		return nil, err
	}
	parts, err := splitStateKey(key)
	if err != nil {
		return nil, err
	}
	var current any = doc
	for _, p := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidStateKey, key)
		}
		current, ok = m[p]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidStateKey, key)
		}
	}
	return current, nil
}

// Set updates the value at a `section__field[__key]` path and saves the
// document. The value is stored as an integer if it parses as one, then
// as a boolean, and otherwise as a string. Fields which only hold strings
// (such as IDs) accept numeric-looking values as strings.
func (s *StateStore) Set(key string, value string) error {
	parts, err := splitStateKey(key)
	if err != nil {
		return err
	}

	return s.Update(
		func(state *State) error {
			doc, err := stateDocument(*state)
			if err != nil {
				return err
			}
			inferred := inferStateValue(value)
			updated, setErr := setStateValue(doc, parts, inferred)
			if setErr != nil {
				return fmt.Errorf("%w: %q", setErr, key)
			}
			decoded, decodeErr := documentToState(updated)
			if decodeErr != nil {
				if _, isString := inferred.(string); isString {
					return fmt.Errorf("invalid value for %s: %w", key, decodeErr)
				}
				doc, _ = stateDocument(*state)
				updated, _ = setStateValue(doc, parts, value)
				decoded, decodeErr = documentToState(updated)
				if decodeErr != nil {
					return fmt.Errorf("invalid value for %s: %w", key, decodeErr)
				}
			}
			*state = decoded
			return nil
		},
	)
}

// Watch reloads the document when it's changed on disk by something other
// than this store, until ctx is canceled. Writes are debounced, so editors
// which write in several steps trigger a single reload.
func (s *StateStore) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("error creating watcher: %w", err)
	}
	defer func() {
		_ = watcher.Close()
	}()

	// watch the directory rather than the file, since editors and
	// unsafeSave replace the file via rename
	if err = watcher.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("error watching %s: %w", s.path, err)
	}
	s.logger.InfoContext(ctx, "watching state for changes", "path", s.path)

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != s.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(
				stateWatchDebounce, func() {
					s.reloadIfChanged(ctx)
				},
			)
		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.ErrorContext(ctx, "state watcher error", tint.Err(watchErr))
		}
	}
}

func (s *StateStore) reloadIfChanged(ctx context.Context) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		s.logger.WarnContext(ctx, "unable to read state", tint.Err(err))
		return
	}
	s.mu.RLock()
	unchanged := bytes.Equal(data, s.lastSaved)
	s.mu.RUnlock()
	if unchanged {
		return
	}
	if err = s.Reload(); err != nil {
		s.logger.ErrorContext(ctx, "error reloading state", tint.Err(err))
		return
	}
	s.logger.InfoContext(ctx, "reloaded state", "path", s.path)
}

// unsafeSave writes the document to a temp file and renames it into
// place. Callers must hold mu.
func (s *StateStore) unsafeSave() error {
	s.state.normalize()
	data, err := toml.Marshal(s.state)
	if err != nil {
		return fmt.Errorf("error encoding state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("error saving state: %w", err)
	}
	tmpName := tmp.Name()
	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if err = errors.Join(writeErr, closeErr); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("error saving state: %w", err)
	}
	if err = os.Chmod(tmpName, stateFilePermission); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("error saving state: %w", err)
	}
	if err = os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("error saving state: %w", err)
	}
	s.lastSaved = data
	return nil
}

func (s *StateStore) document() (map[string]any, error) {
	return stateDocument(s.State())
}

func decodeState(data []byte) (State, error) {
	var state State
	if len(bytes.TrimSpace(data)) > 0 {
		if err := toml.NewDecoder(bytes.NewReader(data)).Decode(&state); err != nil {
			return state, err
		}
	}
	state.normalize()
	return state, nil
}

// stateDocument converts the state to its generic TOML document form
func stateDocument(state State) (map[string]any, error) {
	data, err := toml.Marshal(state)
	if err != nil {
		return nil, err
	}
	doc := map[string]any{}
	if err = toml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func documentToState(doc map[string]any) (State, error) {
	data, err := toml.Marshal(doc)
	if err != nil {
		return State{}, err
	}
	var state State
	err = toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields().Decode(&state)
	if err != nil {
		return State{}, err
	}
	state.normalize()
	return state, nil
}

func splitStateKey(key string) ([]string, error) {
	parts := strings.Split(key, stateKeySeparator)
	if len(parts) < 2 || len(parts) > 3 || slices.Contains(parts, "") {
		return nil, fmt.Errorf(
			"%w: %q (expected section%sfield[%skey])",
			ErrInvalidStateKey, key, stateKeySeparator, stateKeySeparator,
		)
	}
	return parts, nil
}

// setStateValue sets value at the given path of doc. The section (and,
// for map entries, the field) must already exist.
func setStateValue(doc map[string]any, parts []string, value any) (map[string]any, error) {
	section, ok := doc[parts[0]].(map[string]any)
	if !ok {
		return nil, ErrInvalidStateKey
	}
	if len(parts) == 2 {
		section[parts[1]] = value
		return doc, nil
	}
	field, ok := section[parts[1]].(map[string]any)
	if !ok {
		if _, exists := section[parts[1]]; exists {
			return nil, ErrInvalidStateKey
		}
		field = map[string]any{}
		section[parts[1]] = field
	}
	field[parts[2]] = value
	return doc, nil
}

func inferStateValue(value string) any {
	if i, err := strconv.ParseInt(value, 10, 64); err == nil {
		return i
	}
	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}
	return value
}
