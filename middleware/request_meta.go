package middleware

import (
	"net"
	"net/http"
	"strings"

	goSession "github.com/MrEthical07/goSession"
)

// RequestMeta attaches the client address and User-Agent to the request
// context so the Manager can record them on audit events. When
// trustForwarded is set the first X-Forwarded-For entry wins.
func RequestMeta(trustForwarded bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := goSession.WithClientIP(r.Context(), clientIP(r, trustForwarded))
			if ua := r.UserAgent(); ua != "" {
				ctx = goSession.WithUserAgent(ctx, ua)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func clientIP(r *http.Request, trustForwarded bool) string {
	if trustForwarded {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
