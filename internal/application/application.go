package application

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/eugenenazirov/zest/internal/api"
	"github.com/eugenenazirov/zest/internal/config"
	"github.com/eugenenazirov/zest/internal/database"
	"github.com/eugenenazirov/zest/internal/jobs"
	"github.com/eugenenazirov/zest/internal/locals"
	"github.com/eugenenazirov/zest/internal/metrics"
	"github.com/eugenenazirov/zest/internal/modules"
	"github.com/eugenenazirov/zest/internal/render"
	"github.com/eugenenazirov/zest/internal/routing"
)

// App encapsulates the application dependencies and HTTP servers.
type App struct {
	settings config.Settings
	logger   *zap.Logger
	locals   *locals.Store
	views    *render.Engine
	runner   *jobs.Runner
	db       *database.DB
	router   *chi.Mux
	servers  []*http.Server
}

// New initializes the application from settings and the modules in registry.
// ctx bounds the database connection attempt.
func New(ctx context.Context, settings config.Settings, resolver *config.Resolver, registry *modules.Registry, logger *zap.Logger) (*App, error) {
	settings.BasePath = resolveBasePath(settings.BasePath)

	store := locals.New(settings.Locals())
	runner := jobs.NewRunner(logger, jobs.WithObserver(metrics.ObserveJob))
	loader := modules.NewLoader(registry, modules.Env{
		Settings: settings,
		Config:   resolver,
		Locals:   store,
		Logger:   logger,
		Jobs:     runner,
	})

	views := render.NewEngine(loader.ViewDirs(), logger, render.WithDebug(settings.Debug))
	loader.UseViews(views)

	var checker *routing.Checker
	router := api.NewRouter(logger, views,
		api.WithRateLimit(settings.RateLimitFifteenMinuteWindow),
		api.WithTrustProxy(settings.TrustProxy),
		api.WithCompression(!settings.NoCompression),
		api.WithContentSecurityPolicy(settings.ContentSecurityPolicy),
		api.WithMetrics(settings.MetricsOn),
		api.WithDebug(settings.Debug),
		api.WithRequestContext(render.ContextMiddleware(render.ContextOptions{
			AppName:    settings.AppName,
			Lang:       settings.Lang,
			RouteCheck: func(path string) bool { return checker.Check(path) },
		})),
		api.WithStatic(loader.StaticDirs(), settings.CacheDuration()),
	)
	checker = routing.NewChecker(router, settings.CacheDuration())
	if settings.MetricsOn {
		router.Handle("/metrics", metrics.Handler())
	}
	// Views are only served by path outside production.
	if settings.IsProduction() {
		router.NotFound(views.NotFound)
	} else {
		router.NotFound(views.ServeHTTP)
	}
	loader.UseRoot(router)

	loader.LoadOptions()

	app := &App{
		settings: settings,
		logger:   logger,
		locals:   store,
		views:    views,
		runner:   runner,
		router:   router,
	}

	models := loader.LoadModels()
	if settings.Database != nil {
		db, err := database.Open(ctx, database.Config{Driver: settings.Database.Driver, DSN: settings.Database.DSN}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		for _, model := range models {
			db.Register(model)
		}
		loader.UseDatabase(db)
		app.db = db
	} else if len(models) > 0 {
		logger.Warn("models loaded without DATABASE_CONFIG, schemas will not be synchronised", zap.Int("models", len(models)))
	}

	loader.LoadJobs()
	loader.MountRouters(router)
	loader.MountHome(router)

	app.servers = app.buildServers()
	return app, nil
}

func (a *App) buildServers() []*http.Server {
	var servers []*http.Server
	if a.settings.HTTPOn {
		servers = append(servers, NewServer(a.settings, a.settings.PortHTTP, a.router))
	}
	if a.settings.HTTPSOn {
		cert, err := a.loadCertificate()
		if err != nil {
			a.logger.Warn("https disabled, could not load tls key pair", zap.Error(err))
			return servers
		}
		server := NewServer(a.settings, a.settings.PortHTTPS, a.router)
		server.TLSConfig = &tls.Config{
			MinVersion:   tls.VersionTLS12,
			Certificates: []tls.Certificate{cert},
		}
		servers = append(servers, server)
	}
	return servers
}

func (a *App) loadCertificate() (tls.Certificate, error) {
	dir := a.settings.TLSPath
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(a.settings.BasePath, dir)
	}
	return tls.LoadX509KeyPair(
		filepath.Join(dir, a.settings.TLSServerCert),
		filepath.Join(dir, a.settings.TLSServerKey),
	)
}

// NewServer creates an HTTP server on port with the configured timeouts.
func NewServer(settings config.Settings, port int, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: settings.ReadHeaderTimeout,
		WriteTimeout:      settings.WriteTimeout,
		IdleTimeout:       settings.IdleTimeout,
	}
}

// Bootstrap synchronises model schemas when a database is configured and then
// runs the onAppStart jobs. Only a failed sync is returned; job failures are
// logged.
func (a *App) Bootstrap(ctx context.Context) error {
	if a.db != nil {
		if err := a.db.Sync(ctx); err != nil {
			return fmt.Errorf("failed to sync database: %w", err)
		}
	}

	ran, err := a.runner.RunJobs(ctx, jobs.TriggerAppStart)
	switch {
	case err != nil:
		a.logger.Error("startup jobs failed", zap.Error(err))
	case !ran:
		a.logger.Debug("no jobs to run")
	}
	return nil
}

// Start schedules cron jobs and starts every server in its own goroutine.
func (a *App) Start() error {
	if err := a.runner.Start(); err != nil {
		return fmt.Errorf("failed to schedule jobs: %w", err)
	}
	if len(a.servers) == 0 {
		a.logger.Warn("no server enabled, set HTTP_ON or HTTPS_ON")
	}

	for _, server := range a.servers {
		go func() {
			var err error
			if server.TLSConfig != nil {
				a.logger.Info("https server listening", zap.String("addr", server.Addr))
				err = server.ListenAndServeTLS("", "")
			} else {
				a.logger.Info("http server listening", zap.String("addr", server.Addr))
				err = server.ListenAndServe()
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Fatal("server error", zap.String("addr", server.Addr), zap.Error(err))
			}
		}()
	}
	return nil
}

// Shutdown stops the job scheduler, drains the servers and closes the
// database.
func (a *App) Shutdown(ctx context.Context) error {
	a.runner.Stop(ctx)

	var errs []error
	for _, server := range a.servers {
		if err := server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown %s: %w", server.Addr, err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Close forcibly closes every server.
func (a *App) Close() error {
	var errs []error
	for _, server := range a.servers {
		if err := server.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Handler returns the root router.
func (a *App) Handler() http.Handler {
	return a.router
}

// Servers returns the configured servers.
func (a *App) Servers() []*http.Server {
	return a.servers
}

// Locals returns the application locals.
func (a *App) Locals() *locals.Store {
	return a.locals
}

// resolveBasePath returns base unchanged when it is absolute or holds the
// app_base module; otherwise the nearest parent of the working directory
// where it does.
func resolveBasePath(base string) string {
	if filepath.IsAbs(base) {
		return base
	}
	if path, err := resolveProjectPath(filepath.Join(base, config.BaseAppName)); err == nil {
		return filepath.Dir(path)
	}
	return base
}

// resolveProjectPath locates a file or directory relative to the project root by walking up the directory tree.
func resolveProjectPath(relative string) (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		candidate := filepath.Join(dir, relative)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", fmt.Errorf("unable to locate %s", relative)
}
