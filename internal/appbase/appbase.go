// Package appbase is the default app module. It is always loaded after the
// modules named in APP_LIST and provides the index and settings routers.
package appbase

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eugenenazirov/zest/internal/config"
	"github.com/eugenenazirov/zest/internal/modules"
)

// Module returns the app_base module.
func Module() modules.Module {
	return modules.Module{
		Name: config.BaseAppName,
		Routers: map[string]modules.RouterFactory{
			"index":    IndexRouter,
			"settings": SettingsRouter,
		},
	}
}

// IndexRouter serves the test page and hands / to the template resolver.
// It mounts nothing in production.
func IndexRouter(env modules.Env) (http.Handler, error) {
	if env.Settings.IsProduction() || env.Views == nil {
		return nil, nil
	}

	views := env.Views
	r := chi.NewRouter()
	r.Get("/test", func(w http.ResponseWriter, req *http.Request) {
		views.View(w, req, "test")
	})
	r.Get("/", views.ServeHTTP)
	return r, nil
}
