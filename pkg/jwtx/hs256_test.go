package jwtx_test

import (
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/authgate/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var (
	testSecret  = []byte("0123456789abcdef0123456789abcdef")
	otherSecret = []byte("fedcba9876543210fedcba9876543210")
)

func newPair(t *testing.T, secret []byte, opts jwtx.VerifyOptions) (jwtx.Signer, jwtx.Verifier) {
	t.Helper()

	signer, err := jwtx.NewSignerHS256(secret)
	require.NoError(t, err)
	verifier, err := jwtx.NewVerifierHS256(secret, opts)
	require.NoError(t, err)
	return signer, verifier
}

func TestHS256_RoundTrip(t *testing.T) {
	now := time.Now().UTC()
	signer, verifier := newPair(t, testSecret, jwtx.VerifyOptions{Issuer: "authgate", Use: jwtx.UseAccess})
	require.Equal(t, "HS256", signer.Alg())

	in := jwtx.NewClaims(jwtx.UseAccess, "01HQ7T3Z1MZ0JQ3M6MZQ1FQ3ZV", "ops@example.com", "authgate",
		[]string{"operator"}, 15*time.Minute, now)
	token, err := signer.Sign(in)
	require.NoError(t, err)

	out, err := verifier.Verify(token)
	require.NoError(t, err)
	require.Equal(t, in.Subject, out.Subject)
	require.Equal(t, "ops@example.com", out.Email)
	require.Equal(t, jwt.ClaimStrings{"operator"}, out.Audience)
	require.Equal(t, in.ID, out.ID)
}

func TestHS256_WeakSecret(t *testing.T) {
	_, err := jwtx.NewSignerHS256([]byte("short"))
	require.ErrorIs(t, err, jwtx.ErrWeakSecret)

	_, err = jwtx.NewVerifierHS256([]byte("short"), jwtx.VerifyOptions{})
	require.ErrorIs(t, err, jwtx.ErrWeakSecret)
}

func TestHS256_Expired(t *testing.T) {
	issued := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	clock := issued

	signer, verifier := newPair(t, testSecret, jwtx.VerifyOptions{Now: func() time.Time { return clock }})
	token, err := signer.Sign(jwtx.NewClaims(jwtx.UseAccess, "sub", "", "", nil, 15*time.Minute, issued))
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	require.NoError(t, err)

	clock = issued.Add(15*time.Minute + time.Second)
	_, err = verifier.Verify(token)
	require.ErrorIs(t, err, jwtx.ErrExpired)
}

func TestHS256_TamperedSignature(t *testing.T) {
	signer, verifier := newPair(t, testSecret, jwtx.VerifyOptions{})
	token, err := signer.Sign(jwtx.NewClaims(jwtx.UseAccess, "sub", "", "", nil, time.Minute, time.Now().UTC()))
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)

	// Flip the first character of the signature segment
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	_, err = verifier.Verify(tampered)
	require.ErrorIs(t, err, jwtx.ErrInvalidSig)
}

func TestHS256_WrongSecret(t *testing.T) {
	signer, _ := newPair(t, otherSecret, jwtx.VerifyOptions{})
	_, verifier := newPair(t, testSecret, jwtx.VerifyOptions{})

	token, err := signer.Sign(jwtx.NewClaims(jwtx.UseAccess, "sub", "", "", nil, time.Minute, time.Now().UTC()))
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	require.ErrorIs(t, err, jwtx.ErrInvalidSig)
}

func TestHS256_SignatureCheckedBeforeExpiry(t *testing.T) {
	signer, _ := newPair(t, otherSecret, jwtx.VerifyOptions{})
	_, verifier := newPair(t, testSecret, jwtx.VerifyOptions{})

	// Expired and forged: the forgery is what gets reported
	past := time.Now().UTC().Add(-time.Hour)
	token, err := signer.Sign(jwtx.NewClaims(jwtx.UseAccess, "sub", "", "", nil, time.Minute, past))
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	require.ErrorIs(t, err, jwtx.ErrInvalidSig)
}

func TestHS256_Malformed(t *testing.T) {
	_, verifier := newPair(t, testSecret, jwtx.VerifyOptions{})

	for _, token := range []string{"", "not-a-jwt", "a.b", "a.b.c"} {
		_, err := verifier.Verify(token)
		require.ErrorIs(t, err, jwtx.ErrMalformed, "token %q", token)
	}
}

func TestHS256_WrongUse(t *testing.T) {
	signer, verifier := newPair(t, testSecret, jwtx.VerifyOptions{Use: jwtx.UseRefresh})
	token, err := signer.Sign(jwtx.NewClaims(jwtx.UseAccess, "sub", "", "", nil, time.Minute, time.Now().UTC()))
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	require.ErrorIs(t, err, jwtx.ErrWrongUse)
}

func TestHS256_Issuer(t *testing.T) {
	signer, verifier := newPair(t, testSecret, jwtx.VerifyOptions{Issuer: "authgate"})
	token, err := signer.Sign(jwtx.NewClaims(jwtx.UseAccess, "sub", "", "evil", nil, time.Minute, time.Now().UTC()))
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	require.ErrorIs(t, err, jwtx.ErrIssuer)
}
