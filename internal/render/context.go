package render

import (
	"context"
	"net/http"
	"time"
)

type contextKey struct{}

// HTMXHeader marks requests issued by htmx for partial page updates.
const HTMXHeader = "HX-Request"

// ErrorInfo is passed to error views.
type ErrorInfo struct {
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

// Context carries per-request rendering state from middleware to views.
type Context struct {
	AppName       string         `json:"appName"`
	Lang          string         `json:"lang"`
	FullPage      bool           `json:"fullPage"`
	CurrentPath   string         `json:"currentPath"`
	IsFoundRoute  bool           `json:"isFoundRoute"`
	Template      string         `json:"template,omitempty"`
	FilePath      string         `json:"filePath,omitempty"`
	FileExtension string         `json:"fileExtension,omitempty"`
	StartTime     time.Time      `json:"startTime"`
	Error         *ErrorInfo     `json:"error,omitempty"`
	Data          map[string]any `json:"data,omitempty"`
}

// Map returns the context as a plain map, the shape handed to script views.
func (c *Context) Map() map[string]any {
	m := map[string]any{
		"appName":       c.AppName,
		"lang":          c.Lang,
		"fullPage":      c.FullPage,
		"currentPath":   c.CurrentPath,
		"isFoundRoute":  c.IsFoundRoute,
		"template":      c.Template,
		"filePath":      c.FilePath,
		"fileExtension": c.FileExtension,
		"startTime":     c.StartTime.UnixMilli(),
	}
	if c.Error != nil {
		m["error"] = map[string]any{"message": c.Error.Message, "stack": c.Error.Stack}
	}
	for k, v := range c.Data {
		m[k] = v
	}
	return m
}

// WithContext stores rc in ctx.
func WithContext(ctx context.Context, rc *Context) context.Context {
	return context.WithValue(ctx, contextKey{}, rc)
}

// FromContext returns the render context stored in ctx, or nil.
func FromContext(ctx context.Context) *Context {
	rc, _ := ctx.Value(contextKey{}).(*Context)
	return rc
}

// ContextOptions configures ContextMiddleware.
type ContextOptions struct {
	AppName string
	Lang    string
	// RouteCheck reports whether a mounted router handles the path.
	RouteCheck func(path string) bool
	Clock      func() time.Time
}

// ContextMiddleware attaches a fresh render Context to every request.
func ContextMiddleware(opts ContextOptions) func(http.Handler) http.Handler {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rc := &Context{
				AppName:     opts.AppName,
				Lang:        opts.Lang,
				FullPage:    r.Header.Get(HTMXHeader) == "",
				CurrentPath: r.URL.Path,
				StartTime:   opts.Clock(),
			}
			if opts.RouteCheck != nil {
				rc.IsFoundRoute = opts.RouteCheck(r.URL.Path)
			}
			next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), rc)))
		})
	}
}

// contextFor returns the request's render context, creating a bare one when
// the middleware did not run.
func contextFor(r *http.Request) *Context {
	if rc := FromContext(r.Context()); rc != nil {
		return rc
	}
	return &Context{CurrentPath: r.URL.Path, FullPage: r.Header.Get(HTMXHeader) == "", StartTime: time.Now()}
}
