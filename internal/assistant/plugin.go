package assistant

import (
	"context"
	"sort"
	"sync"

	"github.com/tazhate/orgassist/config"
)

// Plugin is created once per configured section. Register is called for
// every plugin before any Initialize, so plugins may rely on state shared
// by others (such as the calendar) during Initialize.
type Plugin interface {
	Register() error
	Initialize(ctx context.Context) error
}

// Factory builds a plugin from its configuration section. Configuration
// problems are returned as *config.ConfigError.
type Factory func(a *Assistant, cfg config.Plugin) (Plugin, error)

// Registry maps plugin names to their factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

func (r *Registry) Register(name string, f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return &PluginError{Name: "plugin " + name, Err: ErrDuplicatePlugin}
	}
	r.factories[name] = f
	return nil
}

func (r *Registry) Get(name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	return f, ok
}

// List returns the registered plugin names in lexical order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
