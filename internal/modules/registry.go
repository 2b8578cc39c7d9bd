// Package modules loads app modules: their options, models, jobs, routers and
// static directories. Go code cannot be discovered on disk at runtime, so the
// code half of a module is registered up front under the module's name while
// the directory half (views, public files, config/options.yaml) is read from
// <BASE_PATH>/<name>.
package modules

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/eugenenazirov/zest/internal/config"
	"github.com/eugenenazirov/zest/internal/database"
	"github.com/eugenenazirov/zest/internal/jobs"
	"github.com/eugenenazirov/zest/internal/locals"
	"github.com/eugenenazirov/zest/internal/render"
)

var (
	// ErrDuplicateModule indicates two modules registered under one name.
	ErrDuplicateModule = errors.New("module already registered")
	// ErrUnnamedModule indicates a module without a name.
	ErrUnnamedModule = errors.New("module name is required")
)

// Env is what a module factory sees of the running application.
type Env struct {
	// Name of the app instance, e.g. "app_base".
	Name string
	// Dir is <BASE_PATH>/<Name>.
	Dir      string
	Settings config.Settings
	Config   *config.Resolver
	Locals   *locals.Store
	Logger   *zap.Logger
	Views    *render.Engine
	// Root is the application's root router, complete once every module is
	// mounted.
	Root chi.Routes
	Jobs *jobs.Runner
	// DB is nil unless DATABASE_CONFIG is set.
	DB *database.DB
}

// RouterFactory builds the handler mounted for a router. A nil handler
// mounts nothing.
type RouterFactory func(env Env) (http.Handler, error)

// ModelFactory builds a model whose schema is synchronised on startup.
type ModelFactory func(env Env) (database.Model, error)

// JobFactory builds a job registered under the factory's name.
type JobFactory func(env Env) (jobs.Job, error)

// OptionsFunc runs after the module's options.yaml was applied to the locals.
type OptionsFunc func(env Env) error

// Module is the code half of an app module.
type Module struct {
	Name    string
	Routers map[string]RouterFactory
	Models  map[string]ModelFactory
	Jobs    map[string]JobFactory
	Options OptionsFunc
	// StaticDirs are extra public directories, relative to the module dir
	// unless absolute.
	StaticDirs []string
}

// Registry holds modules by name.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]Module
}

// NewRegistry registers mods, panicking on invalid or duplicate names.
func NewRegistry(mods ...Module) *Registry {
	r := &Registry{modules: make(map[string]Module)}
	for _, m := range mods {
		if err := r.Register(m); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds m.
func (r *Registry) Register(m Module) error {
	if m.Name == "" {
		return ErrUnnamedModule
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.modules[m.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateModule, m.Name)
	}
	r.modules[m.Name] = m
	return nil
}

// Lookup returns the module registered under name.
func (r *Registry) Lookup(name string) (Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[name]
	return m, ok
}

// Names lists registered module names in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
