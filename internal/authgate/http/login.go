package http

import (
	"net/http"

	"github.com/aussiebroadwan/authgate/internal/authgate/domain"
	"github.com/aussiebroadwan/authgate/internal/authgate/service"
	"github.com/aussiebroadwan/authgate/pkg/cryptox"
	"github.com/aussiebroadwan/authgate/pkg/httpx"
)

// LoginHandler serves POST /v1/{realm}/login.
type LoginHandler struct {
	LoginService *service.LoginService
	Cookies      CookieJar
}

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
}

type sessionResponse struct {
	Success bool                  `json:"success"`
	Message string                `json:"message,omitempty"`
	Account domain.AccountSummary `json:"account"`
	Tokens  domain.TokenPair      `json:"tokens"`
}

func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	realm, _ := RealmFromContext(r.Context())

	var body loginRequest
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		badBody(w)
		return
	}

	ip, ua := httpx.ClientIP(r), r.UserAgent()
	res, err := h.LoginService.Login(r.Context(), service.LoginRequest{
		Realm:       realm,
		Email:       body.Email,
		Password:    body.Password,
		RememberMe:  body.RememberMe,
		Fingerprint: cryptox.FingerprintClient(ip),
		IP:          ip,
		UserAgent:   ua,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.Cookies.SetSession(w, realm, res.Tokens)
	httpx.WriteJSON(w, http.StatusOK, sessionResponse{
		Success: true,
		Message: "Login Successfully",
		Account: res.Account,
		Tokens:  res.Tokens,
	})
}
