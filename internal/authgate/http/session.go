package http

import (
	"net/http"

	"github.com/aussiebroadwan/authgate/internal/authgate/domain"
	"github.com/aussiebroadwan/authgate/internal/authgate/service"
	"github.com/aussiebroadwan/authgate/pkg/httpx"
)

// SessionHandler serves GET /v1/{realm}/session, the "who am I" lookup for a
// verified access token.
type SessionHandler struct {
	AccountService *service.AccountService
}

type accountResponse struct {
	Success bool                  `json:"success"`
	Account domain.AccountSummary `json:"account"`
}

func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	realm, _ := RealmFromContext(r.Context())
	claims, ok := httpx.ClaimsFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	acct, err := h.AccountService.GetAccount(r.Context(), realm, claims.Subject)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, accountResponse{Success: true, Account: acct.Summary()})
}
