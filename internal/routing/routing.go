// Package routing inspects a mounted chi route tree. It answers whether a
// request path is already handled by some router before the template
// fallback runs, and describes the tree for the settings endpoint.
package routing

import (
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
)

var compiled sync.Map // pattern expression -> *regexp.Regexp

// RouteCheck reports whether path would be handled by routes.
//
// Each entry of a router is either a terminal route, matched against the
// whole path, or a mounted sub-router. Patterns of a sub-router are relative
// to its mount point, so when the mount prefix matches, the matched part is
// stripped and the walk continues inside the sub-router with the remainder.
func RouteCheck(routes chi.Routes, path string) bool {
	if routes == nil {
		return false
	}
	if path == "" {
		path = "/"
	}

	for _, rt := range routes.Routes() {
		if rt.SubRoutes == nil {
			if terminalExpr(rt.Pattern).MatchString(path) {
				return true
			}
			continue
		}

		m := prefixExpr(rt.Pattern).FindStringSubmatch(path)
		if m == nil {
			continue
		}
		if RouteCheck(rt.SubRoutes, path[len(m[1]):]) {
			return true
		}
	}
	return false
}

// FindRoute reports whether a terminal route whose full pattern, mount
// prefixes included, equals target exists anywhere in the tree. A trailing
// slash is ignored, so "/settings/" inside a router mounted at "/settings"
// matches "/settings".
func FindRoute(routes chi.Routes, target string) bool {
	return findRoute(routes, "", trimSlash(target))
}

func findRoute(routes chi.Routes, prefix, target string) bool {
	if routes == nil {
		return false
	}
	for _, rt := range routes.Routes() {
		full := prefix + rt.Pattern
		if rt.SubRoutes == nil {
			if trimSlash(full) == target {
				return true
			}
			continue
		}
		if findRoute(rt.SubRoutes, strings.TrimSuffix(full, "/*"), target) {
			return true
		}
	}
	return false
}

func trimSlash(pattern string) string {
	if pattern == "" || pattern == "/" {
		return "/"
	}
	return strings.TrimSuffix(pattern, "/")
}

// RouteInfo is a serialisable view of one entry of a route tree.
type RouteInfo struct {
	Pattern string      `json:"pattern"`
	Methods []string    `json:"methods,omitempty"`
	Routes  []RouteInfo `json:"routes,omitempty"`
}

// Describe returns the route tree sorted by pattern.
func Describe(routes chi.Routes) []RouteInfo {
	out := []RouteInfo{}
	if routes == nil {
		return out
	}
	for _, rt := range routes.Routes() {
		info := RouteInfo{Pattern: rt.Pattern}
		for method := range rt.Handlers {
			info.Methods = append(info.Methods, method)
		}
		sort.Strings(info.Methods)
		if rt.SubRoutes != nil {
			info.Routes = Describe(rt.SubRoutes)
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pattern < out[j].Pattern })
	return out
}

// terminalExpr compiles a route pattern. A trailing slash is optional.
func terminalExpr(pattern string) *regexp.Regexp {
	body := patternExpr(strings.TrimSuffix(pattern, "/"))
	return compile(`^` + body + `/?$`)
}

// prefixExpr compiles the mount prefix of a sub-router pattern ("/settings/*").
// The first group captures the part of the path consumed by the mount.
func prefixExpr(pattern string) *regexp.Regexp {
	prefix := strings.TrimSuffix(strings.TrimSuffix(pattern, "*"), "/")
	return compile(`^(` + patternExpr(prefix) + `)(?:/|$)`)
}

func compile(expr string) *regexp.Regexp {
	if re, ok := compiled.Load(expr); ok {
		return re.(*regexp.Regexp)
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		// unparseable inline regexp in a pattern: never matches
		re = regexp.MustCompile(`$.^`)
	}
	compiled.Store(expr, re)
	return re
}

// patternExpr translates chi pattern syntax into a regular expression body:
// {name} matches one segment, {name:re} matches re and * matches the rest.
func patternExpr(pattern string) string {
	var b strings.Builder
	for i := 0; i < len(pattern); {
		switch pattern[i] {
		case '{':
			end := closingBrace(pattern, i)
			if end < 0 {
				b.WriteString(regexp.QuoteMeta(pattern[i:]))
				return b.String()
			}
			param := pattern[i+1 : end]
			if idx := strings.IndexByte(param, ':'); idx >= 0 {
				re := strings.TrimSuffix(strings.TrimPrefix(param[idx+1:], "^"), "$")
				b.WriteString("(" + re + ")")
			} else {
				b.WriteString(`([^/]+)`)
			}
			i = end + 1
		case '*':
			b.WriteString(`(.*)`)
			i++
		default:
			j := i
			for j < len(pattern) && pattern[j] != '{' && pattern[j] != '*' {
				j++
			}
			b.WriteString(regexp.QuoteMeta(pattern[i:j]))
			i = j
		}
	}
	return b.String()
}

func closingBrace(pattern string, open int) int {
	depth := 0
	for i := open; i < len(pattern); i++ {
		switch pattern[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
