package http

import (
	"net/http"
	"strings"

	"github.com/aussiebroadwan/authgate/internal/authgate/service"
	"github.com/aussiebroadwan/authgate/pkg/httpx"
)

// RefreshHandler serves POST /v1/{realm}/refresh. The refresh token comes
// from the realm's refresh cookie, or from a JSON body for non-browser clients.
type RefreshHandler struct {
	TokenService *service.TokenService
	Cookies      CookieJar
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (h *RefreshHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	realm, _ := RealmFromContext(r.Context())

	token := ""
	if c, err := r.Cookie(CookieNamesFor(realm).Refresh); err == nil {
		token = c.Value
	}
	if token == "" && r.ContentLength != 0 {
		var body refreshRequest
		if err := httpx.DecodeJSON(w, r, &body); err != nil {
			badBody(w)
			return
		}
		token = strings.TrimSpace(body.RefreshToken)
	}
	if token == "" {
		httpx.WriteError(w, http.StatusUnauthorized, "Missing refresh token")
		return
	}

	acct, pair, err := h.TokenService.Rotate(r.Context(), realm, token)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.Cookies.SetSession(w, realm, pair)
	httpx.WriteJSON(w, http.StatusOK, sessionResponse{
		Success: true,
		Account: acct.Summary(),
		Tokens:  pair,
	})
}
