package middleware

import (
	"net/http"
	"time"

	goSession "github.com/MrEthical07/goSession"
)

const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"
)

// SetTokenCookies writes both tokens of pair as HttpOnly, Secure,
// SameSite=Strict cookies that expire with the tokens themselves.
func SetTokenCookies(w http.ResponseWriter, pair goSession.TokenPair) {
	http.SetCookie(w, tokenCookie(AccessTokenCookie, pair.AccessToken, pair.AccessExpiresAt))
	http.SetCookie(w, tokenCookie(RefreshTokenCookie, pair.RefreshToken, pair.RefreshExpiresAt))
}

// ClearTokenCookies expires both token cookies.
func ClearTokenCookies(w http.ResponseWriter) {
	for _, name := range []string{AccessTokenCookie, RefreshTokenCookie} {
		c := tokenCookie(name, "", time.Unix(0, 0))
		c.MaxAge = -1
		http.SetCookie(w, c)
	}
}

// RefreshToken reads the refresh_token cookie.
func RefreshToken(r *http.Request) (string, bool) {
	c, err := r.Cookie(RefreshTokenCookie)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

func tokenCookie(name, value string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	}
}
