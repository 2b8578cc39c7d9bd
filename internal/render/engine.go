// Package render resolves request paths to view files and renders them:
// html/template views (.tmpl), static HTML documents (.html) and script views
// (.js) evaluated with goja.
package render

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"

	"go.uber.org/zap"
)

// Engine renders views found in its view roots.
type Engine struct {
	resolver *Resolver
	logger   *zap.Logger
	debug    bool
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithDebug includes stack traces in error views and logs each render.
func WithDebug(enabled bool) EngineOption {
	return func(e *Engine) {
		e.debug = enabled
	}
}

// NewEngine builds an Engine searching roots in order.
func NewEngine(roots []string, logger *zap.Logger, opts ...EngineOption) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		resolver: NewResolver(roots...),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Resolver exposes the engine's view resolver.
func (e *Engine) Resolver() *Resolver {
	return e.resolver
}

// errorViewDir holds the views rendered for failed requests. They are never
// served as pages.
const errorViewDir = "errors/"

// ServeHTTP looks for a view matching the request path and renders it, or
// answers with the not found view.
func (e *Engine) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rc := contextFor(r)
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		rc.IsFoundRoute = false
		e.NotFound(w, r)
		return
	}

	match, ok, err := e.resolver.Resolve(r.URL.Path)
	if err != nil {
		e.Error(w, r, err)
		return
	}
	if !ok || strings.HasPrefix(match.Template, errorViewDir) {
		e.logger.Debug("no view found", zap.String("path", r.URL.Path))
		rc.IsFoundRoute = false
		e.NotFound(w, r)
		return
	}

	e.logger.Debug("found view", zap.String("path", r.URL.Path), zap.String("file", match.FilePath))
	rc.IsFoundRoute = true
	if err := e.Render(w, r, match); err != nil {
		e.Error(w, r, err)
	}
}

// View renders the named view ("test", "docs/index") with the request's
// render context.
func (e *Engine) View(w http.ResponseWriter, r *http.Request, name string) {
	match, ok, err := e.resolver.Resolve("/" + strings.TrimPrefix(name, "/"))
	if err != nil {
		e.Error(w, r, err)
		return
	}
	if !ok {
		e.Error(w, r, fmt.Errorf("view %q not found", name))
		return
	}
	if err := e.Render(w, r, match); err != nil {
		e.Error(w, r, err)
	}
}

// Render writes match to w according to its extension.
func (e *Engine) Render(w http.ResponseWriter, r *http.Request, match Match) error {
	rc := contextFor(r)
	rc.Template = match.Template
	rc.FilePath = match.FilePath
	rc.FileExtension = match.Extension

	if e.debug {
		e.logger.Debug("rendering", zap.String("template", match.Template), zap.Any("render", rc))
	}

	switch match.Extension {
	case ".tmpl":
		body, err := e.execute(match, rc)
		if err != nil {
			return err
		}
		writeHTML(w, http.StatusOK, body)
		return nil
	case ".html":
		return serveFile(w, r, match.FilePath)
	case ".js":
		out, err := runScript(r.Context(), match.FilePath, rc, e.logger)
		if err != nil {
			return err
		}
		writeHTML(w, http.StatusOK, []byte(out))
		return nil
	default:
		return fmt.Errorf("unsupported view type %q", match.Extension)
	}
}

// NotFound renders errors/404 with status 404.
func (e *Engine) NotFound(w http.ResponseWriter, r *http.Request) {
	e.renderStatus(w, r, http.StatusNotFound, "errors/404", http.StatusText(http.StatusNotFound))
}

// Error logs err and renders errors/500 with status 500. The stack is only
// exposed in debug mode.
func (e *Engine) Error(w http.ResponseWriter, r *http.Request, err error) {
	e.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))

	rc := contextFor(r)
	rc.Error = &ErrorInfo{Message: err.Error()}
	if e.debug {
		rc.Error.Stack = string(debug.Stack())
	}
	e.renderStatus(w, r, http.StatusInternalServerError, "errors/500", http.StatusText(http.StatusInternalServerError))
}

func (e *Engine) renderStatus(w http.ResponseWriter, r *http.Request, status int, view, fallback string) {
	match, ok, err := e.resolver.Resolve("/" + view)
	if err == nil && ok && match.Extension == ".tmpl" {
		body, execErr := e.execute(match, contextFor(r))
		if execErr == nil {
			writeHTML(w, status, body)
			return
		}
		e.logger.Error("render error view", zap.String("view", view), zap.Error(execErr))
	}
	http.Error(w, fallback, status)
}

// execute parses the view together with every partial kept in dot
// directories of its root (".fragments/layout") and runs it.
func (e *Engine) execute(match Match, rc *Context) ([]byte, error) {
	src, err := os.ReadFile(match.FilePath)
	if err != nil {
		return nil, fmt.Errorf("read view: %w", err)
	}

	tmpl, err := template.New(match.Template).Parse(string(src))
	if err != nil {
		return nil, fmt.Errorf("parse view %s: %w", match.Template, err)
	}
	if err := addPartials(tmpl, match.Root); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, match.Template, rc); err != nil {
		return nil, fmt.Errorf("execute view %s: %w", match.Template, err)
	}
	return buf.Bytes(), nil
}

func addPartials(tmpl *template.Template, root string) error {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".tmpl" {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if NoDotsInPath(rel) {
			return nil
		}

		src, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		name := strings.TrimSuffix(rel, ".tmpl")
		if _, err := tmpl.New(name).Parse(string(src)); err != nil {
			return fmt.Errorf("parse partial %s: %w", name, err)
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func serveFile(w http.ResponseWriter, r *http.Request, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open view: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat view: %w", err)
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
	return nil
}

func writeHTML(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
