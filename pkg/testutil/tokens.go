package testutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

// Issuer mints ES384 access tokens the way the identity service does.
type Issuer struct {
	KeyID string
	Key   *ecdsa.PrivateKey
}

// NewIssuer generates a fresh P-384 signing key published under keyID.
func NewIssuer(t *testing.T, keyID string) *Issuer {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	require.NoError(t, err)
	return &Issuer{KeyID: keyID, Key: key}
}

// PublicPEM returns the verification key as a PKIX PEM block.
func (i *Issuer) PublicPEM(t *testing.T) string {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(&i.Key.PublicKey)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

// Sign returns a token for subject that expires after ttl.
func (i *Issuer) Sign(t *testing.T, subject string, ttl time.Duration) string {
	t.Helper()
	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodES384, jwt.MapClaims{
		"sub":        subject,
		"grant_type": "password",
		"iat":        now.Unix(),
		"exp":        now.Add(ttl).Unix(),
	})
	tok.Header["kid"] = i.KeyID
	signed, err := tok.SignedString(i.Key)
	require.NoError(t, err)
	return signed
}
