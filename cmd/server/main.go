package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"

	"github.com/eugenenazirov/zest/internal/appbase"
	"github.com/eugenenazirov/zest/internal/application"
	"github.com/eugenenazirov/zest/internal/config"
	"github.com/eugenenazirov/zest/internal/logging"
	"github.com/eugenenazirov/zest/internal/modules"
)

var signalNotify = signal.Notify

// stopper is the part of the application shutdown needs.
type stopper interface {
	Shutdown(ctx context.Context) error
	Close() error
}

func main() {
	kingpinApp := kingpin.New("zest", "Zest - a modular Go web application starter")
	configFile := kingpinApp.Flag("config", "Path to an extra YAML configuration file").String()
	basePath := kingpinApp.Flag("base-path", "Directory holding the app modules (BASE_PATH)").String()
	appList := kingpinApp.Flag("app-list", "Comma-separated app modules to load (APP_LIST)").String()
	rawConfig := kingpinApp.Arg("config-json", "JSON object of explicit settings, e.g. '{\"PORT_HTTP\":3000}'").String()

	kingpin.MustParse(kingpinApp.Parse(os.Args[1:]))

	explicit, jsonErr := parseExplicit(*rawConfig)
	if *basePath != "" {
		explicit["BASE_PATH"] = *basePath
	}
	if *appList != "" {
		explicit["APP_LIST"] = *appList
	}

	settings, resolver, err := config.Load(config.Sources{
		Explicit:   explicit,
		ConfigFile: *configFile,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}

	logger, err := logging.New(settings.Debug)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() {
		_ = logger.Sync()
	}()

	if jsonErr != nil {
		logger.Error("ignoring invalid JSON configuration argument", zap.Error(jsonErr))
	}
	resolver.Report(logger)

	registry := modules.NewRegistry(appbase.Module())

	ctx, cancel := context.WithTimeout(context.Background(), settings.ShutdownGracePeriod)
	app, err := application.New(ctx, settings, resolver, registry, logger)
	cancel()
	if err != nil {
		logger.Fatal("failed to initialize application", zap.Error(err))
	}

	if err := app.Start(); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}
	if err := app.Bootstrap(context.Background()); err != nil {
		logger.Fatal("failed to bootstrap application", zap.Error(err))
	}

	shutdown(app, settings.ShutdownGracePeriod, logger)
}

// parseExplicit decodes the optional JSON argument. An invalid argument
// yields an empty map and the decode error.
func parseExplicit(raw string) (map[string]any, error) {
	explicit := make(map[string]any)
	if strings.TrimSpace(raw) == "" {
		return explicit, nil
	}
	if err := json.Unmarshal([]byte(raw), &explicit); err != nil {
		return make(map[string]any), fmt.Errorf("parse config argument: %w", err)
	}
	return explicit, nil
}

func shutdown(app stopper, timeout time.Duration, logger *zap.Logger) {
	quit := make(chan os.Signal, 1)
	signalNotify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := app.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
		if closeErr := app.Close(); closeErr != nil {
			logger.Error("forced close failed", zap.Error(closeErr))
		}
	}
}
