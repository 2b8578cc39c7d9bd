// Package api builds the root HTTP router and the middleware chain every
// request passes through before reaching app module routers.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eugenenazirov/zest/internal/metrics"
)

type contextKey string

const requestIDContextKey contextKey = "requestID"

// ErrorRenderer renders an error response for a failed request.
type ErrorRenderer interface {
	Error(w http.ResponseWriter, r *http.Request, err error)
}

// RouterOption configures the behaviour of NewRouter.
type RouterOption func(*routerConfig)

// WithLogging controls whether access logs are emitted.
func WithLogging(enabled bool) RouterOption {
	return func(cfg *routerConfig) {
		cfg.enableLogging = enabled
	}
}

// WithRateLimiter overrides the request rate limiter (primarily for tests).
func WithRateLimiter(limiter rateLimiter) RouterOption {
	return func(cfg *routerConfig) {
		cfg.rateLimiter = limiter
	}
}

// WithCompression controls gzip/deflate response compression.
func WithCompression(enabled bool) RouterOption {
	return func(cfg *routerConfig) {
		cfg.enableCompression = enabled
	}
}

// WithContentSecurityPolicy sets the CSP header from a directive map.
func WithContentSecurityPolicy(csp map[string]any) RouterOption {
	return func(cfg *routerConfig) {
		cfg.csp = ContentSecurityPolicy(csp)
	}
}

// WithMetrics records Prometheus request metrics.
func WithMetrics(enabled bool) RouterOption {
	return func(cfg *routerConfig) {
		cfg.enableMetrics = enabled
	}
}

// WithDebug logs every incoming request line at debug level.
func WithDebug(enabled bool) RouterOption {
	return func(cfg *routerConfig) {
		cfg.debug = enabled
	}
}

// WithTrustProxy takes the client address from X-Forwarded-For and related
// headers. The rate limiter always keys on the connection's peer address.
func WithTrustProxy(enabled bool) RouterOption {
	return func(cfg *routerConfig) {
		cfg.trustProxy = enabled
	}
}

// WithRequestContext installs mw ahead of panic recovery, so error views
// rendered for a recovered panic see what mw stores on the request.
func WithRequestContext(mw func(http.Handler) http.Handler) RouterOption {
	return func(cfg *routerConfig) {
		cfg.requestContext = mw
	}
}

// WithStatic serves files from dirs ahead of any router.
func WithStatic(dirs []string, maxAge time.Duration) RouterOption {
	return func(cfg *routerConfig) {
		cfg.staticDirs = dirs
		cfg.staticMaxAge = maxAge
	}
}

type routerConfig struct {
	enableLogging     bool
	enableCompression bool
	enableMetrics     bool
	debug             bool
	trustProxy        bool
	csp               string
	staticDirs        []string
	staticMaxAge      time.Duration
	logger            *zap.Logger
	rateLimiter       rateLimiter
	requestContext    func(http.Handler) http.Handler
}

// NewRouter creates the root router with the standard middleware chain
// installed. Routes must be added by the caller.
func NewRouter(logger *zap.Logger, errs ErrorRenderer, opts ...RouterOption) *chi.Mux {
	cfg := routerConfig{
		enableLogging:     true,
		enableCompression: true,
		logger:            logger,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	if cfg.rateLimiter != nil {
		r.Use(func(next http.Handler) http.Handler {
			return rateLimitMiddleware(cfg.rateLimiter, next)
		})
	}
	if cfg.trustProxy {
		r.Use(middleware.RealIP)
	}
	if cfg.enableLogging {
		r.Use(func(next http.Handler) http.Handler {
			return loggingMiddleware(cfg.logger, next)
		})
	}
	if cfg.enableMetrics {
		r.Use(metrics.Middleware)
	}
	if cfg.requestContext != nil {
		r.Use(cfg.requestContext)
	}
	r.Use(func(next http.Handler) http.Handler {
		return recoveryMiddleware(cfg.logger, errs, next)
	})
	r.Use(func(next http.Handler) http.Handler {
		return securityHeadersMiddleware(cfg.csp, next)
	})
	if cfg.enableCompression {
		r.Use(middleware.Compress(5))
	}
	if cfg.debug {
		r.Use(func(next http.Handler) http.Handler {
			return helloMiddleware(cfg.logger, next)
		})
	}
	if len(cfg.staticDirs) > 0 {
		r.Use(func(next http.Handler) http.Handler {
			return staticMiddleware(cfg.staticDirs, cfg.staticMaxAge, next)
		})
	}

	return r
}

func helloMiddleware(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Debug(strings.ToUpper(r.Method) + "\t" + r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

func loggingMiddleware(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		requestID := requestIDFromContext(r.Context())
		logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", duration),
			zap.String("request_id", requestID),
		)
	})
}

func recoveryMiddleware(logger *zap.Logger, errs ErrorRenderer, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			err, ok := rec.(error)
			if !ok {
				err = fmt.Errorf("%v", rec)
			}
			logger.Error("panic recovered", zap.Error(err), zap.String("request_id", requestIDFromContext(r.Context())))

			if errs != nil {
				errs.Error(w, r, err)
				return
			}
			WriteError(w, http.StatusInternalServerError, "Internal error", "unexpected server error")
		}()
		next.ServeHTTP(w, r)
	})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if requestID == "" {
			requestID = generateRequestID()
		}
		ctx := r.Context()
		ctx = contextWithRequestID(ctx, requestID)

		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func generateRequestID() string {
	return uuid.NewString()
}

func contextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey, id)
}

func requestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDContextKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
