package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	goSession "github.com/MrEthical07/goSession"
)

// Verifier is the subset of *goSession.Manager used by Guard.
type Verifier interface {
	VerifyToken(ctx context.Context, accessToken string) (*goSession.Claims, error)
}

type claimsContextKey struct{}

// ClaimsFromContext returns the claims injected by Guard.
func ClaimsFromContext(ctx context.Context) (*goSession.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*goSession.Claims)
	return claims, ok
}

// Guard rejects requests without a live session. Authentication failures
// answer 401; a session store outage answers 503 so clients retry instead
// of discarding their tokens.
func Guard(verifier Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if verifier == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := AccessToken(r)
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := verifier.VerifyToken(r.Context(), token)
			if err != nil {
				if errors.Is(err, goSession.ErrStoreUnavailable) {
					http.Error(w, "service unavailable", http.StatusServiceUnavailable)
					return
				}
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AccessToken extracts the access token from the Authorization header or,
// failing that, the access_token cookie.
func AccessToken(r *http.Request) (string, bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		return bearerToken(header)
	}
	if c, err := r.Cookie(AccessTokenCookie); err == nil && c.Value != "" {
		return c.Value, true
	}
	return "", false
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
