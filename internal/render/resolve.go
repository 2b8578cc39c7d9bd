package render

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Extensions are the view file types the resolver looks for, in priority order.
var Extensions = []string{".js", ".tmpl", ".html"}

// ErrNoSearchPath is returned when FindFirst is called with an empty pattern.
var ErrNoSearchPath = errors.New("empty search path")

// Match describes a view file resolved for a request path.
type Match struct {
	// Template is the view name: the file path relative to its view root
	// without extension ("deeper/path", "index").
	Template  string
	FilePath  string
	Extension string
	Root      string
}

// FindFirst returns the first regular file matching a glob pattern that may
// contain {a,b} alternatives. Alternatives are tried in the order written; an
// empty string means nothing matched.
func FindFirst(pattern string) (string, error) {
	if pattern == "" {
		return "", ErrNoSearchPath
	}
	for _, candidate := range expandBraces(pattern) {
		matches, err := filepath.Glob(candidate)
		if err != nil {
			return "", err
		}
		sort.Strings(matches)
		for _, m := range matches {
			if info, err := os.Stat(m); err == nil && info.Mode().IsRegular() {
				return m, nil
			}
		}
	}
	return "", nil
}

// NoDotsInPath reports whether no segment of a slash separated path starts
// with a dot. It rejects hidden files and directories as well as "." and ".."
// segments.
func NoDotsInPath(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if strings.HasPrefix(part, ".") {
			return false
		}
	}
	return true
}

// expandBraces expands the first {a,b,...} group of pattern recursively.
func expandBraces(pattern string) []string {
	open := strings.IndexByte(pattern, '{')
	if open < 0 {
		return []string{pattern}
	}
	end := strings.IndexByte(pattern[open:], '}')
	if end < 0 {
		return []string{pattern}
	}
	end += open

	prefix, suffix := pattern[:open], pattern[end+1:]
	var out []string
	for _, alt := range strings.Split(pattern[open+1:end], ",") {
		out = append(out, expandBraces(prefix+alt+suffix)...)
	}
	return out
}

// Resolver maps request paths onto view files in a list of view roots.
type Resolver struct {
	roots []string
}

// NewResolver returns a resolver searching roots in order.
func NewResolver(roots ...string) *Resolver {
	return &Resolver{roots: roots}
}

// Roots returns the view roots in search order.
func (r *Resolver) Roots() []string {
	out := make([]string, len(r.roots))
	copy(out, r.roots)
	return out
}

// Resolve looks for <path>.{js,tmpl,html}, or <path>index.{js,tmpl,html} when
// the path ends in a slash. Paths containing a dot segment or glob
// metacharacters never resolve.
func (r *Resolver) Resolve(requestPath string) (Match, bool, error) {
	if requestPath == "" {
		requestPath = "/"
	}
	if !NoDotsInPath(requestPath) || strings.ContainsAny(requestPath, `*?[]{}\`) {
		return Match{}, false, nil
	}

	exts := "{" + strings.Join(Extensions, ",") + "}"
	rel := filepath.FromSlash(strings.TrimPrefix(requestPath, "/"))

	for _, root := range r.roots {
		var pattern string
		if strings.HasSuffix(requestPath, "/") {
			pattern = filepath.Join(root, rel, "index") + exts
		} else {
			pattern = filepath.Join(root, rel) + exts
		}

		found, err := FindFirst(pattern)
		if err != nil {
			return Match{}, false, err
		}
		if found == "" {
			continue
		}

		ext := filepath.Ext(found)
		name, err := filepath.Rel(root, strings.TrimSuffix(found, ext))
		if err != nil {
			return Match{}, false, err
		}
		return Match{
			Template:  filepath.ToSlash(name),
			FilePath:  found,
			Extension: ext,
			Root:      root,
		}, true, nil
	}
	return Match{}, false, nil
}
