package domain

import "time"

// TokenPair is what a successful login or refresh hands back. Access always
// expires before refresh.
type TokenPair struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
	Persistent       bool      `json:"-"` // "remember me" refresh lifetime
}
