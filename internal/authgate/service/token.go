package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/authgate/internal/authgate/domain"
	"github.com/aussiebroadwan/authgate/internal/authgate/store"
	"github.com/aussiebroadwan/authgate/pkg/jwtx"
)

var ErrTokenTTLOrder = errors.New("access token TTL must be shorter than refresh token TTL")

// TokenConfig configures TokenService. Zero TTLs take the jwtx defaults.
type TokenConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	Issuer        string

	AccessTTL            time.Duration
	RefreshTTL           time.Duration
	PersistentRefreshTTL time.Duration

	Now func() time.Time
}

// TokenService issues and verifies realm scoped access/refresh token pairs.
// Access and refresh tokens are signed with different secrets, and the realm
// travels in the audience claim.
type TokenService struct {
	Store store.Store
	Retry store.RetryPolicy

	cfg             TokenConfig
	accessSigner    jwtx.Signer
	refreshSigner   jwtx.Signer
	accessVerifier  jwtx.Verifier
	refreshVerifier jwtx.Verifier
}

func NewTokenService(s store.Store, cfg TokenConfig) (*TokenService, error) {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = jwtx.DefaultAccessTokenTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = jwtx.DefaultRefreshTokenTTL
	}
	if cfg.PersistentRefreshTTL <= 0 {
		cfg.PersistentRefreshTTL = jwtx.DefaultPersistentRefreshTTL
	}
	if cfg.AccessTTL >= cfg.RefreshTTL || cfg.RefreshTTL > cfg.PersistentRefreshTTL {
		return nil, ErrTokenTTLOrder
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}

	accessSigner, err := jwtx.NewSignerHS256(cfg.AccessSecret)
	if err != nil {
		return nil, fmt.Errorf("access signer: %w", err)
	}
	refreshSigner, err := jwtx.NewSignerHS256(cfg.RefreshSecret)
	if err != nil {
		return nil, fmt.Errorf("refresh signer: %w", err)
	}
	accessVerifier, err := jwtx.NewVerifierHS256(cfg.AccessSecret, jwtx.VerifyOptions{
		Issuer: cfg.Issuer,
		Use:    jwtx.UseAccess,
		Now:    cfg.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("access verifier: %w", err)
	}
	refreshVerifier, err := jwtx.NewVerifierHS256(cfg.RefreshSecret, jwtx.VerifyOptions{
		Issuer: cfg.Issuer,
		Use:    jwtx.UseRefresh,
		Now:    cfg.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("refresh verifier: %w", err)
	}

	return &TokenService{
		Store:           s,
		Retry:           store.DefaultRetry,
		cfg:             cfg,
		accessSigner:    accessSigner,
		refreshSigner:   refreshSigner,
		accessVerifier:  accessVerifier,
		refreshVerifier: refreshVerifier,
	}, nil
}

// AccessTTL is the access token lifetime, used for cookie Max-Age.
func (s *TokenService) AccessTTL() time.Duration { return s.cfg.AccessTTL }

// RefreshTTL returns the refresh lifetime for an ordinary or remembered session.
func (s *TokenService) RefreshTTL(persistent bool) time.Duration {
	if persistent {
		return s.cfg.PersistentRefreshTTL
	}
	return s.cfg.RefreshTTL
}

// GenerateTokenPair signs a fresh pair for subjectID in realm.
func (s *TokenService) GenerateTokenPair(realm domain.Realm, subjectID, email string, persistent bool) (domain.TokenPair, error) {
	now := s.cfg.Now().UTC()
	aud := []string{realm.String()}

	access := jwtx.NewClaims(jwtx.UseAccess, subjectID, email, s.cfg.Issuer, aud, s.cfg.AccessTTL, now)
	refresh := jwtx.NewClaims(jwtx.UseRefresh, subjectID, email, s.cfg.Issuer, aud, s.RefreshTTL(persistent), now)

	accessToken, err := s.accessSigner.Sign(access)
	if err != nil {
		return domain.TokenPair{}, internal("sign access token", err)
	}
	refreshToken, err := s.refreshSigner.Sign(refresh)
	if err != nil {
		return domain.TokenPair{}, internal("sign refresh token", err)
	}

	return domain.TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  access.ExpiresAt.Time,
		RefreshExpiresAt: refresh.ExpiresAt.Time,
		Persistent:       persistent,
	}, nil
}

// VerifyAccessToken checks signature, expiry and realm in that order. The
// returned error wraps both ErrInvalidToken and the jwtx cause.
func (s *TokenService) VerifyAccessToken(realm domain.Realm, token string) (jwtx.Claims, error) {
	return verifyInRealm(s.accessVerifier, realm, token)
}

func (s *TokenService) VerifyRefreshToken(realm domain.Realm, token string) (jwtx.Claims, error) {
	return verifyInRealm(s.refreshVerifier, realm, token)
}

// AccessVerifier adapts the access verifier to a single realm for
// httpx.AuthnMiddleware.
func (s *TokenService) AccessVerifier(realm domain.Realm) jwtx.Verifier {
	return realmVerifier{realm: realm, v: s.accessVerifier}
}

type realmVerifier struct {
	realm domain.Realm
	v     jwtx.Verifier
}

func (rv realmVerifier) Verify(token string) (jwtx.Claims, error) {
	return verifyInRealm(rv.v, rv.realm, token)
}

func verifyInRealm(v jwtx.Verifier, realm domain.Realm, token string) (jwtx.Claims, error) {
	claims, err := v.Verify(token)
	if err != nil {
		return jwtx.Claims{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if err := claims.ValidateAudience([]string{realm.String()}); err != nil {
		return jwtx.Claims{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return claims, nil
}

// Rotate exchanges a valid refresh token for a new pair. The account is
// reloaded so deleted or locked accounts cannot keep a session alive, and a
// remembered session stays remembered.
func (s *TokenService) Rotate(ctx context.Context, realm domain.Realm, refreshToken string) (domain.Account, domain.TokenPair, error) {
	claims, err := s.VerifyRefreshToken(realm, refreshToken)
	if err != nil {
		return domain.Account{}, domain.TokenPair{}, err
	}

	acct, err := store.RetryValue(ctx, s.Retry, func(ctx context.Context) (domain.Account, error) {
		return s.Store.Accounts(realm).GetByID(ctx, claims.Subject)
	})
	if errors.Is(err, store.ErrNotFound) {
		return domain.Account{}, domain.TokenPair{}, ErrInvalidToken
	}
	if err != nil {
		return domain.Account{}, domain.TokenPair{}, internal("rotate load account", err)
	}
	if acct.LockedAt(s.cfg.Now().UTC()) {
		return domain.Account{}, domain.TokenPair{}, &LockoutError{Until: *acct.LockedUntil}
	}

	persistent := claims.Lifetime() > s.cfg.RefreshTTL
	pair, err := s.GenerateTokenPair(realm, acct.ID, acct.Email, persistent)
	if err != nil {
		return domain.Account{}, domain.TokenPair{}, err
	}
	return acct, pair, nil
}
