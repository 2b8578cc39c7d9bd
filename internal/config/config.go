package config

import (
	"fmt"
	"strings"
	"time"
)

const (
	defaultNodeEnv   = "development"
	productionEnv    = "production"
	defaultPortHTTP  = 8080
	defaultPortHTTPS = 8443
	defaultCacheTTL  = 60
)

// DatabaseConfig selects a database driver and data source.
type DatabaseConfig struct {
	Driver string `json:"driver" yaml:"driver"`
	DSN    string `json:"dsn" yaml:"dsn"`
}

// Settings aggregates runtime configuration resolved from every source.
type Settings struct {
	NodeEnv                      string
	Debug                        bool
	HTTPOn                       bool
	HTTPSOn                      bool
	PortHTTP                     int
	PortHTTPS                    int
	TLSServerKey                 string
	TLSServerCert                string
	NoCompression                bool
	RateLimitFifteenMinuteWindow int
	TrustProxy                   bool
	CacheTTL                     int
	Lang                         string
	AppList                      string
	BasePath                     string
	ConfigPath                   string
	TLSPath                      string
	PublicPath                   string
	ModelPath                    string
	RouterPath                   string
	ViewPath                     string
	ControllerPath               string
	HelperPath                   string
	JobPath                      string
	AppName                      string
	AppDescription               string
	AppKeywords                  string
	SessionSecret                string
	Database                     *DatabaseConfig
	SettingsToken                string
	ContentSecurityPolicy        map[string]any
	MetricsOn                    bool
	ShutdownGracePeriod          time.Duration
	ReadHeaderTimeout            time.Duration
	WriteTimeout                 time.Duration
	IdleTimeout                  time.Duration
}

// Load builds a Resolver from src and resolves Settings from it.
func Load(src Sources) (Settings, *Resolver, error) {
	r, err := NewResolver(src)
	if err != nil {
		return Settings{}, nil, fmt.Errorf("resolve config sources: %w", err)
	}
	cfg, err := r.Settings()
	if err != nil {
		return Settings{}, nil, err
	}
	return cfg, r, nil
}

// Settings resolves the full option table.
func (r *Resolver) Settings() (Settings, error) {
	var cfg Settings

	cfg.NodeEnv = r.String("NODE_ENV", defaultNodeEnv, true)
	notProd := cfg.NodeEnv != productionEnv

	cfg.Debug = r.Bool("DEBUG", notProd, notProd)
	cfg.HTTPOn = r.Bool("HTTP_ON", true, notProd)
	cfg.HTTPSOn = r.Bool("HTTPS_ON", true, notProd)
	cfg.PortHTTP = r.Int("PORT_HTTP", defaultPortHTTP, notProd)
	cfg.PortHTTPS = r.Int("PORT_HTTPS", defaultPortHTTPS, notProd)
	cfg.TLSServerKey = r.String("TLS_SERVER_KEY", "server.key", notProd)
	cfg.TLSServerCert = r.String("TLS_SERVER_CERT", "server.cert", notProd)
	cfg.NoCompression = r.Bool("NO_COMPRESSION", false, notProd)
	cfg.RateLimitFifteenMinuteWindow = r.Int("RATE_LIMIT_15_MINUTE_WINDOW", 0, notProd)
	cfg.TrustProxy = r.Bool("TRUST_PROXY", false, notProd)
	cfg.CacheTTL = r.Int("CACHE_TTL", defaultCacheTTL, notProd)
	cfg.Lang = r.String("APP_LANG", "en", notProd)
	cfg.AppList = r.String("APP_LIST", "app_base", true)
	cfg.BasePath = r.String("BASE_PATH", ".", true)
	cfg.ConfigPath = r.String("CONFIG_PATH", "config", notProd)
	cfg.TLSPath = r.String("TLS_PATH", "tls", notProd)
	cfg.PublicPath = r.String("PUBLIC_PATH", "public", notProd)
	cfg.ModelPath = r.String("MODEL_PATH", "models", notProd)
	cfg.RouterPath = r.String("ROUTER_PATH", "routes", notProd)
	cfg.ViewPath = r.String("VIEW_PATH", "views", notProd)
	cfg.ControllerPath = r.String("CONTROLLER_PATH", "controllers", notProd)
	cfg.HelperPath = r.String("HELPER_PATH", "helpers", notProd)
	cfg.JobPath = r.String("JOB_PATH", "jobs", notProd)
	cfg.AppName = r.String("APP_NAME", "Zest Go Starter", true)
	cfg.AppDescription = r.String("APP_DESCRIPTION", "A perfect way to start your Go web application", notProd)
	cfg.AppKeywords = r.String("APP_KEYWORDS", "go, web, starter", notProd)
	cfg.SessionSecret = r.String("SESSION_SECRET", "you should really change this", false)
	cfg.SettingsToken = r.String("SETTINGS_TOKEN", "", false)
	cfg.MetricsOn = r.Bool("METRICS_ON", false, notProd)
	cfg.ShutdownGracePeriod = r.Duration("SHUTDOWN_GRACE_PERIOD", 10*time.Second, notProd)
	cfg.ReadHeaderTimeout = r.Duration("READ_HEADER_TIMEOUT", 5*time.Second, notProd)
	cfg.WriteTimeout = r.Duration("WRITE_TIMEOUT", 15*time.Second, notProd)
	cfg.IdleTimeout = r.Duration("IDLE_TIMEOUT", 60*time.Second, notProd)

	db, err := parseDatabaseConfig(r.Value("DATABASE_CONFIG", false, false))
	if err != nil {
		return Settings{}, err
	}
	cfg.Database = db

	csp, ok := r.Value("CSP", defaultContentSecurityPolicy(), false).(map[string]any)
	if !ok {
		return Settings{}, fmt.Errorf("CSP must be an object")
	}
	cfg.ContentSecurityPolicy = csp

	if err := validateSettings(cfg); err != nil {
		return Settings{}, err
	}
	return cfg, nil
}

// IsProduction reports whether NODE_ENV is "production".
func (s Settings) IsProduction() bool {
	return s.NodeEnv == productionEnv
}

// CacheDuration returns CACHE_TTL as a duration.
func (s Settings) CacheDuration() time.Duration {
	return time.Duration(s.CacheTTL) * time.Second
}

// AppInstances splits the comma separated app list, trims and de-duplicates
// entries and, when withBase is set, appends app_base.
func (s Settings) AppInstances(withBase bool) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	add := func(name string) {
		name = strings.TrimSpace(name)
		if name == "" {
			return
		}
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	for _, name := range strings.Split(s.AppList, ",") {
		add(name)
	}
	if withBase {
		add(BaseAppName)
	}
	return out
}

// BaseAppName is the default app module, always consulted for options and routes.
const BaseAppName = "app_base"

// Locals flattens the settings into the key/value view exposed to app modules
// and the settings endpoint.
func (s Settings) Locals() map[string]any {
	var database any = false
	if s.Database != nil {
		database = map[string]any{"driver": s.Database.Driver, "dsn": s.Database.DSN}
	}

	return map[string]any{
		"nodeEnv":                      s.NodeEnv,
		"debug":                        s.Debug,
		"httpOn":                       s.HTTPOn,
		"httpsOn":                      s.HTTPSOn,
		"portHttp":                     s.PortHTTP,
		"portHttps":                    s.PortHTTPS,
		"tlsServerKey":                 s.TLSServerKey,
		"tlsServerCert":                s.TLSServerCert,
		"noCompression":                s.NoCompression,
		"rateLimitFifteenMinuteWindow": s.RateLimitFifteenMinuteWindow,
		"trustProxy":                   s.TrustProxy,
		"cacheTtl":                     s.CacheTTL,
		"lang":                         s.Lang,
		"appList":                      s.AppList,
		"basePath":                     s.BasePath,
		"configPath":                   s.ConfigPath,
		"tlsPath":                      s.TLSPath,
		"publicPath":                   s.PublicPath,
		"modelPath":                    s.ModelPath,
		"routerPath":                   s.RouterPath,
		"viewPath":                     s.ViewPath,
		"controllerPath":               s.ControllerPath,
		"helperPath":                   s.HelperPath,
		"jobPath":                      s.JobPath,
		"appName":                      s.AppName,
		"appDescription":               s.AppDescription,
		"appKeywords":                  s.AppKeywords,
		"sessionSecret":                s.SessionSecret,
		"databaseConfig":               database,
		"settingsToken":                s.SettingsToken,
		"contentSecurityPolicy":        s.ContentSecurityPolicy,
		"metricsOn":                    s.MetricsOn,
	}
}

func defaultContentSecurityPolicy() map[string]any {
	return map[string]any{
		"directives": map[string]any{
			"defaultSrc":    []any{"'self'"},
			"scriptSrc":     []any{"'self'"},
			"scriptSrcElem": []any{"'self'", "https://unpkg.com/htmx.org@2.0.4"},
			"styleSrc":      []any{"'self'"},
			"styleSrcElem":  []any{"'self'"},
			"imgSrc":        []any{"'self'", "data:"},
			"objectSrc":     []any{"'none'"},
		},
	}
}

// parseDatabaseConfig accepts false/nil (no database) or an object with
// driver and dsn keys.
func parseDatabaseConfig(raw any) (*DatabaseConfig, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case bool:
		if v {
			return nil, fmt.Errorf("DATABASE_CONFIG must be false or an object")
		}
		return nil, nil
	case string:
		if b, ok := toBool(v); ok && !b || strings.TrimSpace(v) == "" {
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_CONFIG must be false or an object")
	case map[string]any:
		cfg := &DatabaseConfig{
			Driver: toString(v["driver"]),
			DSN:    toString(v["dsn"]),
		}
		if cfg.Driver == "" {
			return nil, fmt.Errorf("DATABASE_CONFIG.driver is required")
		}
		return cfg, nil
	default:
		return nil, fmt.Errorf("DATABASE_CONFIG must be false or an object")
	}
}

// validateSettings validates the final configuration.
func validateSettings(cfg Settings) error {
	if cfg.PortHTTP < 0 || cfg.PortHTTPS < 0 {
		return fmt.Errorf("ports must be >= 0")
	}
	if cfg.RateLimitFifteenMinuteWindow < 0 {
		return fmt.Errorf("RATE_LIMIT_15_MINUTE_WINDOW must be >= 0")
	}
	if cfg.CacheTTL < 0 {
		return fmt.Errorf("CACHE_TTL must be >= 0")
	}
	if len(cfg.AppInstances(false)) == 0 {
		return fmt.Errorf("APP_LIST cannot be empty")
	}
	return nil
}
