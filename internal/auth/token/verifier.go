package token

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/botdiril/botdiril-game-backend/pkg/domain"
	dErrors "github.com/botdiril/botdiril-game-backend/pkg/domain-errors"
	"github.com/botdiril/botdiril-game-backend/pkg/platform/sentinel"
)

// Algorithm is the only signing algorithm accepted. It is fixed here and is
// never taken from the token header.
const Algorithm = "ES384"

// DefaultLeeway is the clock skew tolerated on exp and nbf.
const DefaultLeeway = 60 * time.Second

// KeyCache resolves key ids to verification keys.
type KeyCache interface {
	GetPublicKey(ctx context.Context, keyID string) (*ecdsa.PublicKey, error)
}

// Claims represents the JWT claims issued for game access tokens.
type Claims struct {
	GrantType string `json:"grant_type,omitempty"`
	jwt.RegisteredClaims
}

// Verified is the outcome of a successful verification. Subject is still an
// indirection and must be resolved before it means anything.
type Verified struct {
	KeyID     string
	Subject   domain.SubjectKey
	GrantType string
	ExpiresAt time.Time
}

type header struct {
	KeyID string `json:"kid"`
}

// Verifier checks ES384 bearer tokens signed by any currently published key.
type Verifier struct {
	keys   KeyCache
	parser *jwt.Parser
	leeway time.Duration
	now    func() time.Time
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithLeeway overrides DefaultLeeway.
func WithLeeway(d time.Duration) Option {
	return func(v *Verifier) { v.leeway = d }
}

// WithClock overrides the time used for exp and nbf checks.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) {
		if now != nil {
			v.now = now
		}
	}
}

func NewVerifier(keys KeyCache, opts ...Option) *Verifier {
	v := &Verifier{
		keys:   keys,
		leeway: DefaultLeeway,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	v.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{Algorithm}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
	)
	return v
}

// Verify checks tokenString and returns its claimed subject.
//
// Error codes: CodeMalformedToken when the header carries no key id or the
// subject is not numeric, CodeInvalidCredential for unknown key ids and any
// signature, algorithm or claim failure, CodeInternal when the key store is
// unreachable or holds an unusable key. Messages never carry parser detail.
func (v *Verifier) Verify(ctx context.Context, tokenString string) (*Verified, error) {
	keyID, err := v.keyID(tokenString)
	if err != nil {
		return nil, err
	}

	key, err := v.keys.GetPublicKey(ctx, keyID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidCredential, "unknown key id")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve verification key")
	}

	claims := &Claims{}
	parsed, err := v.parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodES384 {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return key, nil
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidCredential, "invalid token")
	}
	if !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeInvalidCredential, "invalid token")
	}

	subject, err := domain.ParseSubjectKey(claims.Subject)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeMalformedToken, "invalid subject")
	}

	out := &Verified{
		KeyID:     keyID,
		Subject:   subject,
		GrantType: claims.GrantType,
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

// keyID reads the kid from the unverified header.
func (v *Verifier) keyID(tokenString string) (string, error) {
	segment, _, ok := strings.Cut(tokenString, ".")
	if !ok || segment == "" {
		return "", dErrors.New(dErrors.CodeMalformedToken, "token is not a JWS")
	}
	raw, err := v.parser.DecodeSegment(segment)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeMalformedToken, "invalid token header")
	}
	var h header
	if err := json.Unmarshal(raw, &h); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeMalformedToken, "invalid token header")
	}
	if h.KeyID == "" {
		return "", dErrors.New(dErrors.CodeMalformedToken, "token header has no key id")
	}
	return h.KeyID, nil
}
