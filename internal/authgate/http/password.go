package http

import (
	"net/http"

	"github.com/aussiebroadwan/authgate/internal/authgate/service"
	"github.com/aussiebroadwan/authgate/pkg/httpx"
)

// PasswordHandler serves POST /v1/{realm}/password for the signed in identity.
type PasswordHandler struct {
	AccountService *service.AccountService
}

type passwordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (h *PasswordHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	realm, _ := RealmFromContext(r.Context())
	claims, ok := httpx.ClaimsFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var body passwordRequest
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		badBody(w)
		return
	}

	err := h.AccountService.ChangePassword(r.Context(), service.ChangePasswordRequest{
		Realm:           realm,
		AccountID:       claims.Subject,
		CurrentPassword: body.CurrentPassword,
		NewPassword:     body.NewPassword,
		IP:              httpx.ClientIP(r),
		UserAgent:       r.UserAgent(),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, messageResponse{Success: true, Message: "Password updated"})
}
