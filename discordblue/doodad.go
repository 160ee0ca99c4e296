package discordblue

import (
	"context"
	"fmt"
	"github.com/bwmarrin/discordgo"
	"slices"
	"sync"
)

// Doodad is a compiled-in plugin providing slash commands
type Doodad interface {
	// Name identifies the doodad in state and in `/setup doodads`
	Name() string

	// Commands returns the application commands the doodad handles
	Commands() []*discordgo.ApplicationCommand

	// Handle runs one of the doodad's commands
	Handle(ctx context.Context, b *Bot, h InteractionHandler) error
}

// Autocompleter is implemented by doodads whose commands have options with
// autocomplete enabled
type Autocompleter interface {
	Autocomplete(
		ctx context.Context,
		b *Bot,
		h InteractionHandler,
	) ([]*discordgo.ApplicationCommandOptionChoice, error)
}

// DoodadRegistry tracks the available doodads and which are loaded.
// Core doodads are always loaded.
type DoodadRegistry struct {
	core     []Doodad
	loadable []Doodad
	loaded   map[string]bool
	mu       sync.RWMutex
}

func NewDoodadRegistry(core []Doodad, loadable ...Doodad) *DoodadRegistry {
	return &DoodadRegistry{
		core:     core,
		loadable: loadable,
		loaded:   map[string]bool{},
	}
}

func (r *DoodadRegistry) find(name string) (Doodad, bool) {
	for _, d := range r.loadable {
		if d.Name() == name {
			return d, true
		}
	}
	return nil, false
}

// Load marks the named doodad as loaded
func (r *DoodadRegistry) Load(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.find(name); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDoodad, name)
	}
	if r.loaded[name] {
		return fmt.Errorf("%w: %s", ErrDoodadLoaded, name)
	}
	r.loaded[name] = true
	return nil
}

// Unload marks the named doodad as not loaded
func (r *DoodadRegistry) Unload(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.find(name); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDoodad, name)
	}
	if !r.loaded[name] {
		return fmt.Errorf("%w: %s", ErrDoodadNotLoaded, name)
	}
	delete(r.loaded, name)
	return nil
}

func (r *DoodadRegistry) IsLoaded(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loaded[name]
}

// Available returns the names of all loadable doodads
func (r *DoodadRegistry) Available() []string {
	names := make([]string, 0, len(r.loadable))
	for _, d := range r.loadable {
		names = append(names, d.Name())
	}
	return names
}

// Loaded returns the names of the loaded doodads, in registration order
func (r *DoodadRegistry) Loaded() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	for _, d := range r.loadable {
		if r.loaded[d.Name()] {
			names = append(names, d.Name())
		}
	}
	return names
}

// Unloaded returns the names of the loadable doodads which aren't loaded
func (r *DoodadRegistry) Unloaded() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	for _, d := range r.loadable {
		if !r.loaded[d.Name()] {
			names = append(names, d.Name())
		}
	}
	return names
}

// active returns the core doodads followed by the loaded ones
func (r *DoodadRegistry) active() []Doodad {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rv := slices.Clone(r.core)
	for _, d := range r.loadable {
		if r.loaded[d.Name()] {
			rv = append(rv, d)
		}
	}
	return rv
}

// Commands returns the application commands of every active doodad
func (r *DoodadRegistry) Commands() []*discordgo.ApplicationCommand {
	var commands []*discordgo.ApplicationCommand
	for _, d := range r.active() {
		commands = append(commands, d.Commands()...)
	}
	return commands
}

// Lookup returns the active doodad handling the named command
func (r *DoodadRegistry) Lookup(command string) (Doodad, bool) {
	for _, d := range r.active() {
		for _, c := range d.Commands() {
			if c.Name == command {
				return d, true
			}
		}
	}
	return nil, false
}

// LoadDoodad loads the named doodad, saves the loaded set and
// re-registers commands, returning the number of commands registered.
func (b *Bot) LoadDoodad(ctx context.Context, name string) (int, error) {
	if err := b.doodads.Load(name); err != nil {
		return 0, err
	}
	if err := b.saveLoadedDoodads(); err != nil {
		return 0, err
	}
	loggerFrom(ctx, b.logger).InfoContext(ctx, "loaded doodad", "doodad", name)
	return b.syncCommands(ctx)
}

// UnloadDoodad unloads the named doodad, saves the loaded set and
// re-registers commands, returning the number of commands registered.
func (b *Bot) UnloadDoodad(ctx context.Context, name string) (int, error) {
	if err := b.doodads.Unload(name); err != nil {
		return 0, err
	}
	if err := b.saveLoadedDoodads(); err != nil {
		return 0, err
	}
	loggerFrom(ctx, b.logger).InfoContext(ctx, "unloaded doodad", "doodad", name)
	return b.syncCommands(ctx)
}

func (b *Bot) saveLoadedDoodads() error {
	loaded := b.doodads.Loaded()
	err := b.store.Update(
		func(s *State) error {
			s.Discord.LoadedDoodads = loaded
			return nil
		},
	)
	if err != nil {
		return fmt.Errorf("error saving loaded doodads: %w", err)
	}
	return nil
}
