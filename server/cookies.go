package server

import (
	"net/http"
	"time"
)

// refreshCookieName is the cookie carrying the raw refresh secret. The
// cookie is scoped to the auth routes so it never rides along on API calls.
const (
	refreshCookieName = "refresh_token"
	refreshCookiePath = "/auth"
)

func (s *Server) setRefreshCookie(w http.ResponseWriter, rawSecret string, maxAge time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    rawSecret,
		Path:     refreshCookiePath,
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   s.config.GetCookieSecure(),
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     refreshCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.config.GetCookieSecure(),
		SameSite: http.SameSiteLaxMode,
	})
}

func refreshSecretFromRequest(r *http.Request) string {
	cookie, err := r.Cookie(refreshCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}
