package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/authgate/internal/authgate/domain"
	"github.com/aussiebroadwan/authgate/internal/authgate/service"
)

// CookieNames are the per realm session cookie names. Keeping them distinct
// lets a browser hold an account and an operator session at once.
type CookieNames struct {
	Access  string
	Refresh string
}

func CookieNamesFor(realm domain.Realm) CookieNames {
	if realm == domain.RealmOperator {
		return CookieNames{Access: "operator_access_token", Refresh: "operator_refresh_token"}
	}
	return CookieNames{Access: "access_token", Refresh: "refresh_token"}
}

// CookieJar writes and clears session cookies. Secure is on in production.
type CookieJar struct {
	Secure bool
	Tokens *service.TokenService
}

// SetSession writes both cookies for a freshly issued pair. Max-Age follows
// the configured token lifetimes.
func (c CookieJar) SetSession(w http.ResponseWriter, realm domain.Realm, pair domain.TokenPair) {
	names := CookieNamesFor(realm)
	http.SetCookie(w, c.cookie(names.Access, pair.AccessToken, c.Tokens.AccessTTL()))
	http.SetCookie(w, c.cookie(names.Refresh, pair.RefreshToken, c.Tokens.RefreshTTL(pair.Persistent)))
}

// Clear expires both cookies of the realm.
func (c CookieJar) Clear(w http.ResponseWriter, realm domain.Realm) {
	names := CookieNamesFor(realm)
	for _, name := range []string{names.Access, names.Refresh} {
		ck := c.cookie(name, "", 0)
		ck.MaxAge = -1
		ck.Expires = time.Unix(0, 0)
		http.SetCookie(w, ck)
	}
}

func (c CookieJar) cookie(name, value string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteStrictMode,
	}
}
