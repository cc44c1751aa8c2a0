package middleware

import (
	"net"
	"net/http"
	"strings"
)

// TrustedHosts rejects requests whose Host header is not listed. "*" allows
// any host and "*.example.com" allows subdomains.
func TrustedHosts(allowed []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if len(allowed) == 0 {
			return next
		}
		for _, h := range allowed {
			if h == "*" {
				return next
			}
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !hostAllowed(allowed, r.Host) {
				writeError(w, http.StatusBadRequest, "invalid host header")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func hostAllowed(allowed []string, hostport string) bool {
	host := hostport
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		host = h
	}
	host = strings.ToLower(host)
	for _, pattern := range allowed {
		pattern = strings.ToLower(pattern)
		if suffix, ok := strings.CutPrefix(pattern, "*"); ok {
			if strings.HasSuffix(host, suffix) {
				return true
			}
			continue
		}
		if host == pattern {
			return true
		}
	}
	return false
}
