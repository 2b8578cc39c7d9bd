package appbase

import (
	"crypto/subtle"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eugenenazirov/zest/internal/api"
	"github.com/eugenenazirov/zest/internal/locals"
	"github.com/eugenenazirov/zest/internal/modules"
	"github.com/eugenenazirov/zest/internal/routing"
)

// SettingsTokenHeader carries the token that unlocks sensitive settings.
const SettingsTokenHeader = "X-Settings-Token"

const tokenKey = "settingsToken"

// SafeKeys are the locals anyone may read.
var SafeKeys = []string{
	"nodeEnv",
	"debug",
	"httpOn",
	"httpsOn",
	"portHttp",
	"portHttps",
	"noCompression",
	"rateLimitFifteenMinuteWindow",
	"trustProxy",
	"cacheTtl",
	"lang",
	"appList",
	"appName",
	"appDescription",
	"appKeywords",
	"contentSecurityPolicy",
}

type settingsHandler struct {
	locals *locals.Store
	token  string
	root   chi.Routes
}

// SettingsRouter exposes the application locals. Safe keys are public; the
// rest require the settings token. It mounts nothing in production.
func SettingsRouter(env modules.Env) (http.Handler, error) {
	if env.Settings.IsProduction() {
		return nil, nil
	}

	h := &settingsHandler{
		locals: env.Locals,
		token:  env.Settings.SettingsToken,
		root:   env.Root,
	}
	r := chi.NewRouter()
	r.Get("/routes", h.routes)
	r.Get("/{key}", h.key)
	r.Get("/", h.all)
	return r, nil
}

func (h *settingsHandler) isAuthorized(r *http.Request) bool {
	if h.token == "" {
		return false
	}
	given := r.Header.Get(SettingsTokenHeader)
	return subtle.ConstantTimeCompare([]byte(given), []byte(h.token)) == 1
}

func (h *settingsHandler) routes(w http.ResponseWriter, r *http.Request) {
	if !h.isAuthorized(r) {
		api.WriteError(w, http.StatusForbidden, "Access denied", "")
		return
	}
	api.WriteJSON(w, http.StatusOK, routing.Describe(h.root))
}

func (h *settingsHandler) key(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if key == tokenKey {
		api.WriteError(w, http.StatusForbidden, "Access denied", "")
		return
	}

	value, ok := h.locals.Get(key)
	if ok && (isSafe(key) || h.isAuthorized(r)) {
		api.WriteJSON(w, http.StatusOK, value)
		return
	}
	api.WriteError(w, http.StatusNotFound, "No configuration for that key or access denied", "")
}

func (h *settingsHandler) all(w http.ResponseWriter, r *http.Request) {
	if h.isAuthorized(r) {
		api.WriteJSON(w, http.StatusOK, h.locals.Without(tokenKey))
		return
	}
	api.WriteJSON(w, http.StatusOK, h.locals.Only(SafeKeys))
}

func isSafe(key string) bool {
	for _, k := range SafeKeys {
		if k == key {
			return true
		}
	}
	return false
}
