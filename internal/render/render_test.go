package render

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

var (
	viewsRoot = filepath.Join("testdata", "views")
	otherRoot = filepath.Join("testdata", "other")
)

func newTestEngine(t *testing.T, opts ...EngineOption) http.Handler {
	t.Helper()

	engine := NewEngine([]string{viewsRoot, otherRoot}, zaptest.NewLogger(t), opts...)
	mw := ContextMiddleware(ContextOptions{AppName: "Zest", Lang: "en"})
	return mw(engine)
}

func get(t *testing.T, h http.Handler, target string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, target, nil)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNoDotsInPath(t *testing.T) {
	tests := map[string]bool{
		"/deeper/path":       true,
		"/":                  true,
		"/.fragments/layout": false,
		"/a/../b":            false,
		"/a/.hidden":         false,
		"views/file.tmpl":    true,
	}
	for path, want := range tests {
		if got := NoDotsInPath(path); got != want {
			t.Fatalf("NoDotsInPath(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestExpandBraces(t *testing.T) {
	got := expandBraces("a/{x,y}.{js,tmpl}")
	want := []string{"a/x.js", "a/x.tmpl", "a/y.js", "a/y.tmpl"}
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestFindFirst(t *testing.T) {
	found, err := FindFirst(filepath.Join(viewsRoot, "page.{js,tmpl,html}"))
	if err != nil {
		t.Fatalf("FindFirst returned error: %v", err)
	}
	if filepath.Base(found) != "page.html" {
		t.Fatalf("expected page.html, got %q", found)
	}

	found, err = FindFirst(filepath.Join(viewsRoot, "nothing.{js,tmpl,html}"))
	if err != nil || found != "" {
		t.Fatalf("expected no match, got %q (%v)", found, err)
	}

	if _, err := FindFirst(""); err != ErrNoSearchPath {
		t.Fatalf("expected ErrNoSearchPath, got %v", err)
	}
}

func TestResolve(t *testing.T) {
	r := NewResolver(viewsRoot, otherRoot)

	tests := []struct {
		path     string
		template string
		ext      string
		ok       bool
	}{
		{"/", "index", ".tmpl", true},
		{"/deeper/path", "deeper/path", ".tmpl", true},
		{"/docs/", "docs/index", ".tmpl", true},
		{"/page", "page", ".html", true},
		{"/script", "script", ".js", true},
		{"/only-other", "only-other", ".tmpl", true},
		{"/.fragments/layout", "", "", false},
		{"/../views/index", "", "", false},
		{"/page*", "", "", false},
		{"/missing", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			m, ok, err := r.Resolve(tt.path)
			if err != nil {
				t.Fatalf("Resolve returned error: %v", err)
			}
			if ok != tt.ok {
				t.Fatalf("expected ok=%v, got %v (%+v)", tt.ok, ok, m)
			}
			if !ok {
				return
			}
			if m.Template != tt.template || m.Extension != tt.ext {
				t.Fatalf("unexpected match %+v", m)
			}
		})
	}
}

func TestServeTemplateAtAnyDepth(t *testing.T) {
	rec := get(t, newTestEngine(t), "/deeper/path")
	if rec.Code != http.StatusOK || rec.Body.String() != "DEEPER World" {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Body.String())
	}
}

func TestServeTemplateWithPartials(t *testing.T) {
	rec := get(t, newTestEngine(t), "/fragment")
	want := `<!DOCTYPE html><html lang="en"><body>Hello World!</body></html>`
	if rec.Code != http.StatusOK || rec.Body.String() != want {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Body.String())
	}
}

func TestServeSkipsDotPaths(t *testing.T) {
	rec := get(t, newTestEngine(t), "/.fragments/layout")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec.Body.String() != "missing /.fragments/layout" {
		t.Fatalf("expected 404 view, got %q", rec.Body.String())
	}
}

func TestServeHidesErrorViews(t *testing.T) {
	for _, target := range []string{"/errors/404", "/errors/500", "/errors/"} {
		rec := get(t, newTestEngine(t), target)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("%s: expected 404, got %d", target, rec.Code)
		}
		if rec.Body.String() != "missing "+target {
			t.Fatalf("%s: expected 404 view, got %q", target, rec.Body.String())
		}
	}
}

func TestServeHTMLFile(t *testing.T) {
	rec := get(t, newTestEngine(t), "/page")
	want := "<!DOCTYPE html>\n<html lang=\"en\">\n  <body>\n    Hello World!\n  </body>\n</html>\n"
	if rec.Code != http.StatusOK || rec.Body.String() != want {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Body.String())
	}
}

func TestServeScriptView(t *testing.T) {
	rec := get(t, newTestEngine(t), "/script")
	if rec.Code != http.StatusOK || rec.Body.String() != "<p>Zest in en</p>" {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Body.String())
	}
}

func TestScriptWithoutExportedFunctionFails(t *testing.T) {
	rec := get(t, newTestEngine(t), "/notfunction")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if !strings.HasPrefix(rec.Body.String(), "failed: script view") {
		t.Fatalf("expected 500 view, got %q", rec.Body.String())
	}
}

func TestBrokenTemplateRendersErrorView(t *testing.T) {
	rec := get(t, newTestEngine(t), "/broken")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestNonGetIsNotFound(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/page", nil)
	rec := httptest.NewRecorder()
	newTestEngine(t).ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestFallbackWithoutErrorViews(t *testing.T) {
	engine := NewEngine([]string{otherRoot}, zaptest.NewLogger(t))
	rec := get(t, engine, "/missing")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if strings.TrimSpace(rec.Body.String()) != "Not Found" {
		t.Fatalf("expected plain fallback, got %q", rec.Body.String())
	}
}

func TestViewByName(t *testing.T) {
	engine := NewEngine([]string{viewsRoot}, zaptest.NewLogger(t))
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/anything", nil)
	engine.View(rec, req, "deeper/path")
	if rec.Body.String() != "DEEPER World" {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	engine.View(rec, req, "does-not-exist")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 for missing view, got %d", rec.Code)
	}
}

func TestContextMiddleware(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	var got *Context
	h := ContextMiddleware(ContextOptions{
		AppName:    "Zest",
		Lang:       "fr",
		RouteCheck: func(path string) bool { return path == "/known" },
		Clock:      func() time.Time { return now },
	})(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context())
	}))

	get(t, h, "/known")
	if got == nil || !got.IsFoundRoute || !got.FullPage || got.Lang != "fr" || !got.StartTime.Equal(now) {
		t.Fatalf("unexpected context %+v", got)
	}

	get(t, h, "/unknown", HTMXHeader, "true")
	if got.IsFoundRoute || got.FullPage {
		t.Fatalf("expected partial, unknown route context, got %+v", got)
	}
	if got.CurrentPath != "/unknown" {
		t.Fatalf("unexpected current path %q", got.CurrentPath)
	}
}
