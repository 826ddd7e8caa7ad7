// Package httputil holds small request helpers shared by the API and the
// streaming handlers.
package httputil

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP returns the address used for per-client accounting (stream
// limits, request logs).
//
// With trustProxy, the leftmost valid X-Forwarded-For entry wins, then
// X-Real-IP. Header values that are not IP addresses are ignored. Only enable
// trustProxy behind a reverse proxy that overwrites these headers.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := validIP(first); ip != "" {
				return ip
			}
		}
		if ip := validIP(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func validIP(s string) string {
	s = strings.TrimSpace(s)
	if ip := net.ParseIP(s); ip != nil {
		return ip.String()
	}
	return ""
}
