package api

import (
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/eugenenazirov/zest/internal/render"
)

// staticMiddleware serves the first existing file under dirs that matches the
// request path. Anything else, including paths with dot segments, falls
// through to next.
func staticMiddleware(dirs []string, maxAge time.Duration, next http.Handler) http.Handler {
	cacheControl := "public, max-age=0"
	if maxAge > 0 {
		cacheControl = fmt.Sprintf("public, max-age=%d", int(maxAge.Seconds()))
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}
		clean := path.Clean("/" + r.URL.Path)
		if !render.NoDotsInPath(clean) {
			next.ServeHTTP(w, r)
			return
		}

		for _, dir := range dirs {
			file, info, ok := staticFile(dir, clean)
			if !ok {
				continue
			}
			f, err := os.Open(file)
			if err != nil {
				continue
			}
			w.Header().Set("Cache-Control", cacheControl)
			http.ServeContent(w, r, info.Name(), info.ModTime(), f)
			_ = f.Close()
			return
		}
		next.ServeHTTP(w, r)
	})
}

func staticFile(dir, urlPath string) (string, os.FileInfo, bool) {
	file := filepath.Join(dir, filepath.FromSlash(urlPath))
	info, err := os.Stat(file)
	if err != nil {
		return "", nil, false
	}
	if info.IsDir() {
		file = filepath.Join(file, "index.html")
		if info, err = os.Stat(file); err != nil {
			return "", nil, false
		}
	}
	if !info.Mode().IsRegular() {
		return "", nil, false
	}
	return file, info, true
}
