package domain

import (
	"errors"
	"strings"
)

// Realm identifies which population of identities a credential belongs to.
// Each realm has its own account namespace, cookies and default role.
type Realm string

const (
	RealmAccount  Realm = "account"
	RealmOperator Realm = "operator"
)

var ErrUnknownRealm = errors.New("domain: unknown realm")

// ParseRealm validates a realm name taken from the outside world. Everything
// downstream of the HTTP boundary works with the typed value only.
func ParseRealm(s string) (Realm, error) {
	switch Realm(strings.ToLower(strings.TrimSpace(s))) {
	case RealmAccount:
		return RealmAccount, nil
	case RealmOperator:
		return RealmOperator, nil
	default:
		return "", ErrUnknownRealm
	}
}

// Realms lists every known realm, mostly for iteration in drivers and tests.
func Realms() []Realm { return []Realm{RealmAccount, RealmOperator} }

func (r Realm) String() string { return string(r) }

// DefaultRole is assigned to identities created without an explicit role.
func (r Realm) DefaultRole() Role {
	if r == RealmOperator {
		return RoleAdmin
	}
	return RoleUser
}
