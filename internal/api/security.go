package api

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"unicode"
)

func securityHeadersMiddleware(csp string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		if csp != "" {
			h.Set("Content-Security-Policy", csp)
		}
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "SAMEORIGIN")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("X-DNS-Prefetch-Control", "off")
		h.Set("Cross-Origin-Opener-Policy", "same-origin")
		if r.TLS != nil {
			h.Set("Strict-Transport-Security", "max-age=15552000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}

// ContentSecurityPolicy renders a directive map as a header value. Keys may
// be camelCase (defaultSrc) or already kebab-cased (default-src). Values may be
// a string or a list of sources. A nested "directives" map is unwrapped.
func ContentSecurityPolicy(csp map[string]any) string {
	if nested, ok := csp["directives"].(map[string]any); ok {
		csp = nested
	}
	if len(csp) == 0 {
		return ""
	}

	names := make([]string, 0, len(csp))
	for name := range csp {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		sources := directiveSources(csp[name])
		directive := kebabCase(name)
		if len(sources) == 0 {
			parts = append(parts, directive)
			continue
		}
		parts = append(parts, directive+" "+strings.Join(sources, " "))
	}
	return strings.Join(parts, "; ")
}

func directiveSources(v any) []string {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		return strings.Fields(val)
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			out = append(out, fmt.Sprint(item))
		}
		return out
	case bool:
		return nil
	default:
		return []string{fmt.Sprint(val)}
	}
}

func kebabCase(name string) string {
	var b strings.Builder
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
