package http_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/aussiebroadwan/authgate/internal/authgate/domain"
	"github.com/stretchr/testify/require"
)

func TestSession(t *testing.T) {
	s := newServer(t)
	acct := s.createAccount(t, domain.RealmAccount, "carol@example.com")
	s.createAccount(t, domain.RealmOperator, "carol@example.com")

	login := s.login(t, domain.RealmAccount, "carol@example.com", goodPassword)
	require.Equal(t, http.StatusOK, login.Code)
	access := cookieByName(login, "access_token")

	t.Run("cookie", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/v1/account/session", nil, access)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, acct.ID, decode[loginBody](t, rec).Account.ID)
	})

	t.Run("bearer header", func(t *testing.T) {
		rec := s.doBearer(t, http.MethodGet, "/v1/account/session", access.Value)
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("missing token", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/v1/account/session", nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("account token rejected by operator realm", func(t *testing.T) {
		rec := s.doBearer(t, http.MethodGet, "/v1/operator/session", access.Value)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("expired token", func(t *testing.T) {
		s.clock.Advance(16 * time.Minute)
		rec := s.do(t, http.MethodGet, "/v1/account/session", nil, access)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestRefresh(t *testing.T) {
	s := newServer(t)
	s.createAccount(t, domain.RealmAccount, "dave@example.com")

	login := s.login(t, domain.RealmAccount, "dave@example.com", goodPassword)
	require.Equal(t, http.StatusOK, login.Code)
	refresh := cookieByName(login, "refresh_token")

	t.Run("from cookie", func(t *testing.T) {
		s.clock.Advance(time.Minute)
		rec := s.do(t, http.MethodPost, "/v1/account/refresh", nil, refresh)
		require.Equal(t, http.StatusOK, rec.Code)

		body := decode[loginBody](t, rec)
		require.NotEqual(t, decode[loginBody](t, login).Tokens.AccessToken, body.Tokens.AccessToken)
		require.Equal(t, body.Tokens.AccessToken, cookieByName(rec, "access_token").Value)
		require.Equal(t, int((24 * time.Hour).Seconds()), cookieByName(rec, "refresh_token").MaxAge)
	})

	t.Run("from body", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/v1/account/refresh", map[string]string{"refreshToken": refresh.Value})
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("access token is not a refresh token", func(t *testing.T) {
		access := cookieByName(login, "access_token")
		rec := s.do(t, http.MethodPost, "/v1/account/refresh", map[string]string{"refreshToken": access.Value})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("other realm", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/v1/operator/refresh", map[string]string{"refreshToken": refresh.Value})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("missing", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/v1/account/refresh", nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestRefresh_LockedAccountCannotRotate(t *testing.T) {
	s := newServer(t)
	s.createAccount(t, domain.RealmAccount, "erin@example.com")

	login := s.login(t, domain.RealmAccount, "erin@example.com", goodPassword)
	refresh := cookieByName(login, "refresh_token")

	for range 5 {
		s.login(t, domain.RealmAccount, "erin@example.com", "Wrong-Password1!")
	}

	rec := s.do(t, http.MethodPost, "/v1/account/refresh", nil, refresh)
	require.Equal(t, http.StatusLocked, rec.Code)
}

func TestLogout(t *testing.T) {
	s := newServer(t)
	s.createAccount(t, domain.RealmOperator, "root@example.com")

	login := s.login(t, domain.RealmOperator, "root@example.com", goodPassword)
	require.Equal(t, http.StatusOK, login.Code)

	rec := s.do(t, http.MethodPost, "/v1/operator/logout", nil, cookieByName(login, "operator_access_token"))
	require.Equal(t, http.StatusOK, rec.Code)

	for _, name := range []string{"operator_access_token", "operator_refresh_token"} {
		c := cookieByName(rec, name)
		require.NotNil(t, c, name)
		require.Empty(t, c.Value)
		require.Negative(t, c.MaxAge)
	}
	require.Contains(t, s.audit.Actions(), domain.AuditLogout)

	t.Run("anonymous logout still clears cookies", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/v1/account/logout", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, cookieByName(rec, "access_token"))
	})
}

func TestChangePassword(t *testing.T) {
	s := newServer(t)
	s.createAccount(t, domain.RealmAccount, "frank@example.com")

	login := s.login(t, domain.RealmAccount, "frank@example.com", goodPassword)
	access := cookieByName(login, "access_token")

	t.Run("wrong current password", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/v1/account/password", map[string]string{
			"currentPassword": "Not-It-At-All1!",
			"newPassword":     "Brand-New-Pass9?",
		}, access)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("weak new password", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/v1/account/password", map[string]string{
			"currentPassword": goodPassword,
			"newPassword":     "abc",
		}, access)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		for _, d := range decode[loginBody](t, rec).Details {
			require.Equal(t, "newPassword", d.Field)
		}
	})

	t.Run("success", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/v1/account/password", map[string]string{
			"currentPassword": goodPassword,
			"newPassword":     "Brand-New-Pass9?",
		}, access)
		require.Equal(t, http.StatusOK, rec.Code)

		require.Equal(t, http.StatusOK, s.login(t, domain.RealmAccount, "frank@example.com", "Brand-New-Pass9?").Code)
	})

	t.Run("requires a session", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/v1/account/password", map[string]string{
			"currentPassword": goodPassword,
			"newPassword":     "Brand-New-Pass9?",
		})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
