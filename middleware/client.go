package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/MrEthical07/famguard"
)

// ClientInfo copies the caller's IP and User-Agent into the request context
// for the engine. X-Forwarded-For is honoured only when trustProxy is set,
// and then only its first hop.
func ClientInfo(trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := famguard.WithClientIP(r.Context(), clientIP(r, trustProxy))
			ctx = famguard.WithUserAgent(ctx, r.UserAgent())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
				return ip.String()
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
