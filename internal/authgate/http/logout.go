package http

import (
	"net/http"

	"github.com/aussiebroadwan/authgate/internal/authgate/service"
	"github.com/aussiebroadwan/authgate/pkg/httpx"
)

// LogoutHandler serves POST /v1/{realm}/logout. It always clears the
// cookies; a still valid access token only decides who gets audited.
type LogoutHandler struct {
	TokenService   *service.TokenService
	AccountService *service.AccountService
	Cookies        CookieJar
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (h *LogoutHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	realm, _ := RealmFromContext(r.Context())

	if raw := httpx.ExtractToken(r, CookieNamesFor(realm).Access); raw != "" {
		if claims, err := h.TokenService.VerifyAccessToken(realm, raw); err == nil {
			h.AccountService.RecordLogout(r.Context(), realm, claims.Subject, claims.Email,
				httpx.ClientIP(r), r.UserAgent())
		}
	}

	h.Cookies.Clear(w, realm)
	httpx.WriteJSON(w, http.StatusOK, messageResponse{Success: true, Message: "Logged out"})
}
