package auth

import (
	"net/http"
	"time"
)

// CookieName is the name of the session cookie
const CookieName = "token"

// SessionCookie builds the cookie carrying a session token. Production
// deployments serve the dashboard from another origin, so the cookie must be
// Secure and SameSite=None there.
func SessionCookie(token string, production bool) *http.Cookie {
	c := &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(SessionTTL / time.Second),
		HttpOnly: true,
		Secure:   production,
		SameSite: http.SameSiteLaxMode,
	}
	if production {
		c.SameSite = http.SameSiteNoneMode
	}
	return c
}

// ClearedSessionCookie expires the session cookie in the browser
func ClearedSessionCookie(production bool) *http.Cookie {
	c := SessionCookie("", production)
	c.MaxAge = -1
	c.Expires = time.Unix(0, 0)
	return c
}

// TokenFromRequest reads the session token from the cookie, falling back to
// an Authorization bearer header for CLI clients.
func TokenFromRequest(r *http.Request) (string, bool) {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value, true
	}
	if h := r.Header.Get("Authorization"); h != "" {
		if tok, err := ExtractToken(h); err == nil {
			return tok, true
		}
	}
	return "", false
}
