package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/tokengate/pkg/httpx"
)

// CookieConfig controls the session cookies set on sign-in. The access
// cookie outlives the access token so a browser keeps sending it until the
// client refreshes.
type CookieConfig struct {
	Secure     bool
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

func DefaultCookieConfig() CookieConfig {
	return CookieConfig{
		AccessTTL:  4 * time.Hour,
		RefreshTTL: 4 * 7 * 24 * time.Hour,
	}
}

func (c CookieConfig) cookie(name, value string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		Expires:  time.Now().Add(ttl),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (c CookieConfig) setSession(w http.ResponseWriter, access, refresh string) {
	http.SetCookie(w, c.cookie(httpx.CookieAccess, access, c.AccessTTL))
	http.SetCookie(w, c.cookie(httpx.CookieRefresh, refresh, c.RefreshTTL))
}

func (c CookieConfig) clearSession(w http.ResponseWriter) {
	for _, name := range []string{httpx.CookieAccess, httpx.CookieRefresh} {
		ck := c.cookie(name, "", 0)
		ck.MaxAge = -1
		ck.Expires = time.Unix(0, 0)
		http.SetCookie(w, ck)
	}
}
