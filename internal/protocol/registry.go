// Package protocol holds the command registries that map abstract command
// identifiers to HTTP method and path templates for each protocol level.
package protocol

import (
	"fmt"
	"sort"

	"github.com/pitabwire/wiredriver/model"
)

// Registry is an immutable mapping from command id to template. It is built
// once by a Builder and never written afterwards, so lookups need no locking.
type Registry struct {
	level    model.Level
	commands map[model.CommandID]model.CommandTemplate
}

// Builder accumulates command templates for a Registry. It is not safe for
// concurrent use.
type Builder struct {
	level    model.Level
	commands map[model.CommandID]model.CommandTemplate
	built    bool
}

// NewBuilder creates an empty builder for the given protocol level.
func NewBuilder(level model.Level) *Builder {
	return &Builder{
		level:    level,
		commands: make(map[model.CommandID]model.CommandTemplate),
	}
}

// Register adds a template. It fails with *model.DuplicateCommandError if id
// is already present.
func (b *Builder) Register(id model.CommandID, method, path string) error {
	if b.built {
		return fmt.Errorf("protocol: register %q after Build", id)
	}
	if _, exists := b.commands[id]; exists {
		return &model.DuplicateCommandError{CommandID: id}
	}
	if !model.IsSupportedMethod(method) {
		return fmt.Errorf("protocol: command %q: unsupported method %q", id, method)
	}
	b.commands[id] = model.CommandTemplate{ID: id, Method: method, Path: path}
	return nil
}

// Build seals the builder and returns the registry. The builder cannot be
// used afterwards.
func (b *Builder) Build() *Registry {
	b.built = true
	return &Registry{level: b.level, commands: b.commands}
}

// NewRegistry creates a Registry loaded with the built-in command table for
// level, followed by any extension commands. Extensions follow the same
// duplicate rule as the built-in table.
func NewRegistry(level model.Level, extensions ...model.CommandTemplate) (*Registry, error) {
	table, err := builtinTable(level)
	if err != nil {
		return nil, err
	}

	b := NewBuilder(level)
	for _, t := range table {
		if err := b.Register(t.ID, t.Method, t.Path); err != nil {
			return nil, fmt.Errorf("protocol: built-in %s table: %w", level, err)
		}
	}
	for _, t := range extensions {
		if err := b.Register(t.ID, t.Method, t.Path); err != nil {
			return nil, err
		}
	}
	return b.Build(), nil
}

// MustNewRegistry is like NewRegistry but panics on error. Intended for
// package-level wiring where the tables are known to be valid.
func MustNewRegistry(level model.Level, extensions ...model.CommandTemplate) *Registry {
	r, err := NewRegistry(level, extensions...)
	if err != nil {
		panic(err)
	}
	return r
}

// Extend returns a new registry containing every template of r plus extra.
// r itself is not modified.
func (r *Registry) Extend(extra ...model.CommandTemplate) (*Registry, error) {
	b := NewBuilder(r.level)
	for id, t := range r.commands {
		b.commands[id] = t
	}
	for _, t := range extra {
		if err := b.Register(t.ID, t.Method, t.Path); err != nil {
			return nil, err
		}
	}
	return b.Build(), nil
}

// Resolve returns the template registered for id, or
// *model.UnknownCommandError if there is none.
func (r *Registry) Resolve(id model.CommandID) (model.CommandTemplate, error) {
	t, ok := r.commands[id]
	if !ok {
		return model.CommandTemplate{}, &model.UnknownCommandError{CommandID: id}
	}
	return t, nil
}

// Level returns the protocol level the registry was built for.
func (r *Registry) Level() model.Level {
	return r.level
}

// Len returns the number of registered commands.
func (r *Registry) Len() int {
	return len(r.commands)
}

// IDs returns every registered command id, sorted.
func (r *Registry) IDs() []model.CommandID {
	ids := make([]model.CommandID, 0, len(r.commands))
	for id := range r.commands {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func builtinTable(level model.Level) ([]model.CommandTemplate, error) {
	switch level {
	case model.LevelLegacy:
		return legacyCommands, nil
	case model.LevelW3C:
		return w3cCommands, nil
	default:
		return nil, fmt.Errorf("protocol: unsupported level %d", int(level))
	}
}
