package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	defaultConfigDir = "config"
	defaultEnvFile   = ".env"
)

// Sources names the inputs a Resolver reads from.
type Sources struct {
	// Explicit settings win over every other source.
	Explicit map[string]any
	// ConfigFile is an extra YAML file applied after the config directory files.
	ConfigFile string
	// EnvFile overrides the default .env location.
	EnvFile string
	// LookupEnv overrides os.LookupEnv, primarily for tests.
	LookupEnv func(string) (string, bool)
}

// Resolver looks up a single setting across explicit, environment, and file
// sources in that order.
type Resolver struct {
	explicit  map[string]any
	lookupEnv func(string) (string, bool)
	file      map[string]any

	mu    sync.Mutex
	shown []zap.Field
}

// NewResolver imports the .env file (unless IMPORT_ENV is false) and loads the
// config directory files for the resolved NODE_ENV.
func NewResolver(src Sources) (*Resolver, error) {
	r := &Resolver{
		explicit:  src.Explicit,
		lookupEnv: src.LookupEnv,
		file:      map[string]any{},
	}
	if r.explicit == nil {
		r.explicit = map[string]any{}
	}
	if r.lookupEnv == nil {
		r.lookupEnv = os.LookupEnv
	}

	if r.Bool("IMPORT_ENV", true, false) {
		envFile := src.EnvFile
		if envFile == "" {
			envFile = defaultEnvFile
		}
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("import env file: %w", err)
		}
	}

	dir := r.String("CONFIG_DIR", defaultConfigDir, false)
	nodeEnv := r.String("NODE_ENV", defaultNodeEnv, false)

	files := []string{
		filepath.Join(dir, "default.yaml"),
		filepath.Join(dir, nodeEnv+".yaml"),
		filepath.Join(dir, "local.yaml"),
	}
	for _, path := range files {
		values, err := readYAMLFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		mergeInto(r.file, values)
	}

	if src.ConfigFile != "" {
		values, err := readYAMLFile(src.ConfigFile)
		if err != nil {
			return nil, err
		}
		mergeInto(r.file, values)
	}

	return r, nil
}

// readYAMLFile decodes a YAML mapping file.
func readYAMLFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file %s: %w", path, err)
	}

	values := map[string]any{}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("parse YAML %s: %w", path, err)
	}
	return values, nil
}

func mergeInto(dst, src map[string]any) {
	for k, v := range src {
		dst[k] = v
	}
}

// Lookup returns the raw value for key and whether any source defined it.
func (r *Resolver) Lookup(key string) (any, bool) {
	if v, ok := r.explicit[key]; ok {
		return v, true
	}
	if v, ok := r.lookupEnv(key); ok {
		return decodeEnvValue(v), true
	}
	if v, ok := r.file[key]; ok {
		return v, true
	}
	return nil, false
}

// Value resolves key, falling back to def. Structured env values (JSON
// objects and arrays) are decoded.
func (r *Resolver) Value(key string, def any, show bool) any {
	value, ok := r.Lookup(key)
	if !ok {
		value = def
	}
	r.record(key, value, show)
	return value
}

// String resolves key as a string.
func (r *Resolver) String(key, def string, show bool) string {
	value := def
	if raw, ok := r.Lookup(key); ok {
		value = toString(raw)
	}
	r.record(key, value, show)
	return value
}

// Bool resolves key as a boolean. Unparseable values fall back to def.
func (r *Resolver) Bool(key string, def, show bool) bool {
	value := def
	if raw, ok := r.Lookup(key); ok {
		if b, ok := toBool(raw); ok {
			value = b
		}
	}
	r.record(key, value, show)
	return value
}

// Int resolves key as an integer. Unparseable values fall back to def.
func (r *Resolver) Int(key string, def int, show bool) int {
	value := def
	if raw, ok := r.Lookup(key); ok {
		if n, ok := toInt(raw); ok {
			value = n
		}
	}
	r.record(key, value, show)
	return value
}

// Duration resolves key as a duration string ("15s") or a number of seconds.
func (r *Resolver) Duration(key string, def time.Duration, show bool) time.Duration {
	value := def
	if raw, ok := r.Lookup(key); ok {
		switch v := raw.(type) {
		case string:
			if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
				value = d
			}
		default:
			if n, ok := toInt(v); ok {
				value = time.Duration(n) * time.Second
			}
		}
	}
	r.record(key, value, show)
	return value
}

// Report logs every value resolved with show set. Resolution happens before
// the logger exists, so values are buffered until then.
func (r *Resolver) Report(logger *zap.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, field := range r.shown {
		logger.Debug("config", field)
	}
	r.shown = nil
}

func (r *Resolver) record(key string, value any, show bool) {
	if !show {
		return
	}
	r.mu.Lock()
	r.shown = append(r.shown, zap.Any(key, value))
	r.mu.Unlock()
}

func decodeEnvValue(raw string) any {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var decoded any
		if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
			return decoded
		}
	}
	return raw
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

func toBool(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		if err != nil {
			return false, false
		}
		return b, true
	case int:
		return t != 0, true
	case float64:
		return t != 0, true
	default:
		return false, false
	}
}

func toInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}
