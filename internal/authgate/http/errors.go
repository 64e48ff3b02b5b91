package http

import (
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/aussiebroadwan/authgate/internal/authgate/service"
	"github.com/aussiebroadwan/authgate/pkg/httpx"
	"github.com/aussiebroadwan/authgate/pkg/slogx"
	"github.com/getsentry/sentry-go"
)

const (
	msgValidation    = "Validation failed"
	msgThrottled     = httpx.ThrottledMessage
	msgBlocked       = "Too many failed attempts. Account temporarily blocked."
	msgLocked        = "Account is temporarily locked due to too many failed attempts"
	msgBadCredential = "Invalid email or password"
	msgBadToken      = "Invalid or expired session"
	msgInternal      = "Internal server error"
)

type validationResponse struct {
	Success bool                 `json:"success"`
	Error   string               `json:"error"`
	Details []service.FieldIssue `json:"details"`
}

type lockoutResponse struct {
	Success      bool      `json:"success"`
	Error        string    `json:"error"`
	LockoutUntil time.Time `json:"lockoutUntil"`
}

type credentialResponse struct {
	Success           bool   `json:"success"`
	Error             string `json:"error"`
	RemainingAttempts int    `json:"remainingAttempts"`
}

// writeServiceError maps a service error onto its status code and body.
// Anything unclassified is a 500 and never leaks the cause.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve *service.ValidationError
		re *service.RateLimitError
		le *service.LockoutError
		ce *service.CredentialError
	)

	switch {
	case errors.As(err, &ve):
		httpx.WriteJSON(w, http.StatusBadRequest, validationResponse{Error: msgValidation, Details: ve.Issues})

	case errors.As(err, &re):
		secs := int(math.Ceil(re.RetryAfter.Seconds()))
		msg := msgThrottled
		if re.Blocked {
			msg = msgBlocked
		}
		httpx.WriteTooManyRequests(w, secs, msg)

	case errors.As(err, &le):
		httpx.WriteJSON(w, http.StatusLocked, lockoutResponse{Error: msgLocked, LockoutUntil: le.Until.UTC()})

	case errors.As(err, &ce):
		httpx.WriteJSON(w, http.StatusUnauthorized, credentialResponse{Error: msgBadCredential, RemainingAttempts: ce.RemainingAttempts})

	case errors.Is(err, service.ErrInvalidCredentials):
		httpx.WriteError(w, http.StatusUnauthorized, msgBadCredential)

	case errors.Is(err, service.ErrInvalidToken):
		httpx.WriteError(w, http.StatusUnauthorized, msgBadToken)

	case errors.Is(err, service.ErrAccountExists):
		httpx.WriteError(w, http.StatusConflict, "Account already exists")

	default:
		slogx.FromContext(r.Context()).Error("request failed", "error", err)
		hub := sentry.GetHubFromContext(r.Context())
		if hub == nil {
			hub = sentry.CurrentHub()
		}
		hub.WithScope(func(scope *sentry.Scope) {
			if id := slogx.RequestID(r.Context()); id != "" {
				scope.SetTag("request_id", id)
			}
			hub.CaptureException(err)
		})
		httpx.WriteError(w, http.StatusInternalServerError, msgInternal)
	}
}

// badBody is the 400 for a request body that is not JSON at all.
func badBody(w http.ResponseWriter) {
	httpx.WriteJSON(w, http.StatusBadRequest, validationResponse{
		Error:   msgValidation,
		Details: []service.FieldIssue{{Field: "body", Message: "Invalid JSON body"}},
	})
}
