package modules

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/eugenenazirov/zest/internal/database"
	"github.com/eugenenazirov/zest/internal/locals"
	"github.com/eugenenazirov/zest/internal/render"
	"github.com/eugenenazirov/zest/internal/routing"
)

const (
	optionsFile = "options.yaml"
	indexRouter = "index"
	helloWorld  = "Hello World!"
)

// Loader applies the registered modules of every app instance to an
// application. Base carries the shared part of each module's Env.
type Loader struct {
	registry *Registry
	base     Env
	logger   *zap.Logger
}

// NewLoader returns a loader for registry; base.Name and base.Dir are filled
// in per instance.
func NewLoader(registry *Registry, base Env) *Loader {
	logger := base.Logger
	if logger == nil {
		logger = zap.NewNop()
		base.Logger = logger
	}
	if base.Locals == nil {
		base.Locals = locals.New(nil)
	}
	if registry == nil {
		registry = NewRegistry()
	}
	return &Loader{registry: registry, base: base, logger: logger}
}

// UseViews makes views visible to factories run afterwards.
func (l *Loader) UseViews(views *render.Engine) {
	l.base.Views = views
}

// UseRoot makes the root router visible to factories run afterwards.
func (l *Loader) UseRoot(root chi.Routes) {
	l.base.Root = root
}

// UseDatabase makes db visible to factories run afterwards.
func (l *Loader) UseDatabase(db *database.DB) {
	l.base.DB = db
}

// Instances lists the app instances from APP_LIST, with app_base appended
// when withBase is set.
func (l *Loader) Instances(withBase bool) []string {
	return l.base.Settings.AppInstances(withBase)
}

// ModuleDir returns <BASE_PATH>/<name>.
func (l *Loader) ModuleDir(name string) string {
	return filepath.Join(l.base.Settings.BasePath, name)
}

// Env returns the environment passed to factories of instance name.
func (l *Loader) Env(name string) Env {
	env := l.base
	env.Name = name
	env.Dir = l.ModuleDir(name)
	env.Logger = l.logger.With(zap.String("app", name))
	return env
}

// LoadOptions reads <dir>/<CONFIG_PATH>/options.yaml of every instance,
// app_base included, and stores each entry in the locals. Config sources
// override the file values. The module's Options hook runs afterwards.
func (l *Loader) LoadOptions() {
	for _, name := range l.Instances(true) {
		env := l.Env(name)
		file := filepath.Join(env.Dir, env.Settings.ConfigPath, optionsFile)

		options, err := readOptions(file)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			env.Logger.Debug("no options file", zap.String("file", file))
		case err != nil:
			env.Logger.Error("load options", zap.String("file", file), zap.Error(err))
		default:
			for _, key := range sortedKeys(options) {
				value := options[key]
				if env.Config != nil {
					value = env.Config.Value(key, value, false)
				}
				if err := env.Locals.Set(key, value); err != nil {
					env.Logger.Error("set option", zap.String("key", key), zap.Error(err))
				}
			}
			env.Logger.Debug("options loaded", zap.String("file", file), zap.Int("count", len(options)))
		}

		mod, ok := l.registry.Lookup(name)
		if !ok || mod.Options == nil {
			continue
		}
		if err := mod.Options(env); err != nil {
			env.Logger.Error("module options", zap.Error(err))
		}
	}
}

func readOptions(file string) (map[string]any, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	options := make(map[string]any)
	if err := yaml.Unmarshal(data, &options); err != nil {
		return nil, fmt.Errorf("parse %s: %w", file, err)
	}
	return options, nil
}

// LoadModels builds the models of every APP_LIST instance, keyed by name. A
// later instance replaces a model of the same name.
func (l *Loader) LoadModels() map[string]database.Model {
	models := make(map[string]database.Model)
	for _, name := range l.Instances(false) {
		mod, ok := l.registry.Lookup(name)
		if !ok {
			continue
		}
		env := l.Env(name)
		for _, modelName := range sortedKeys(mod.Models) {
			model, err := mod.Models[modelName](env)
			if err != nil {
				env.Logger.Error("load model", zap.String("model", modelName), zap.Error(err))
				continue
			}
			if model == nil {
				continue
			}
			models[modelName] = model
			env.Logger.Debug("model loaded", zap.String("model", modelName))
		}
	}
	return models
}

// LoadJobs registers the jobs of every APP_LIST instance with the runner.
func (l *Loader) LoadJobs() {
	runner := l.base.Jobs
	if runner == nil {
		return
	}
	for _, name := range l.Instances(false) {
		mod, ok := l.registry.Lookup(name)
		if !ok {
			continue
		}
		env := l.Env(name)
		for _, jobName := range sortedKeys(mod.Jobs) {
			job, err := mod.Jobs[jobName](env)
			if err == nil {
				err = runner.Register(jobName, job)
			}
			if err != nil {
				env.Logger.Error("load job", zap.String("job", jobName), zap.Error(err))
				continue
			}
			env.Logger.Debug("job loaded", zap.String("job", jobName), zap.String("trigger", job.Trigger))
		}
	}
}

// StaticDirs lists the public directories to serve, in lookup order: each
// APP_LIST instance's <PUBLIC_PATH> and extra directories, then the shared
// <BASE_PATH>/<PUBLIC_PATH>. Missing directories are left out.
func (l *Loader) StaticDirs() []string {
	settings := l.base.Settings
	var dirs []string
	for _, name := range l.Instances(false) {
		dir := l.ModuleDir(name)
		dirs = appendDir(dirs, filepath.Join(dir, settings.PublicPath))

		mod, ok := l.registry.Lookup(name)
		if !ok {
			continue
		}
		for _, extra := range mod.StaticDirs {
			if !filepath.IsAbs(extra) {
				extra = filepath.Join(dir, extra)
			}
			dirs = appendDir(dirs, extra)
		}
	}
	return appendDir(dirs, filepath.Join(settings.BasePath, settings.PublicPath))
}

// ViewDirs lists <dir>/<VIEW_PATH> of every instance, app_base last.
func (l *Loader) ViewDirs() []string {
	var dirs []string
	for _, name := range l.Instances(true) {
		dirs = appendDir(dirs, filepath.Join(l.ModuleDir(name), l.base.Settings.ViewPath))
	}
	return dirs
}

func appendDir(dirs []string, dir string) []string {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return dirs
	}
	for _, d := range dirs {
		if d == dir {
			return dirs
		}
	}
	return append(dirs, dir)
}

// MountRouters mounts every router of every instance at /<router name>. The
// index router of the first instance providing one is mounted at / last. When
// two instances provide the same router name, the earlier instance wins.
func (l *Loader) MountRouters(root chi.Router) {
	mounted := make(map[string]string)
	for _, name := range l.Instances(true) {
		mod, ok := l.registry.Lookup(name)
		if !ok {
			continue
		}
		env := l.Env(name)
		for _, routerName := range sortedKeys(mod.Routers) {
			if routerName == indexRouter {
				continue
			}
			if owner, ok := mounted[routerName]; ok {
				env.Logger.Warn("router already mounted", zap.String("router", routerName), zap.String("owner", owner))
				continue
			}
			if l.mount(root, env, "/"+routerName, routerName, mod.Routers[routerName]) {
				mounted[routerName] = name
			}
		}
	}

	for _, name := range l.Instances(true) {
		mod, ok := l.registry.Lookup(name)
		if !ok {
			continue
		}
		factory, ok := mod.Routers[indexRouter]
		if !ok {
			continue
		}
		if l.mount(root, l.Env(name), "/", indexRouter, factory) {
			return
		}
	}
}

func (l *Loader) mount(root chi.Router, env Env, prefix, routerName string, factory RouterFactory) bool {
	handler, err := factory(env)
	if err != nil {
		env.Logger.Error("load router", zap.String("router", routerName), zap.Error(err))
		return false
	}
	if handler == nil {
		env.Logger.Debug("router disabled", zap.String("router", routerName))
		return false
	}
	root.Mount(prefix, handler)
	env.Logger.Debug("router mounted", zap.String("router", routerName), zap.String("path", prefix))
	return true
}

// MountHome answers GET / when no router handles it: with the first index
// view found in the instances' view directories, or with a plain greeting.
func (l *Loader) MountHome(root chi.Router) {
	if routing.FindRoute(root, "/") {
		return
	}

	views := l.base.Views
	if views != nil {
		for _, dir := range l.ViewDirs() {
			pattern := filepath.Join(dir, "index") + "{" + strings.Join(render.Extensions, ",") + "}"
			found, err := render.FindFirst(pattern)
			if err != nil {
				l.logger.Error("find index view", zap.String("dir", dir), zap.Error(err))
				continue
			}
			if found == "" {
				continue
			}
			l.logger.Debug("home served by index view", zap.String("file", found))
			root.Get("/", views.ServeHTTP)
			return
		}
	}

	root.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(helloWorld))
	})
}
