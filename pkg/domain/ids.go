package domain

import (
	"strconv"
	"strings"

	dErrors "github.com/botdiril/botdiril-game-backend/pkg/domain-errors"
)

// Identity is the internal user identifier. It is owned by the identity
// store; every other component only references it.
type Identity int64

// SubjectKey is the token subject. It is an indirection into the identity
// store, never an Identity itself, so deleting the mapping revokes the token.
type SubjectKey int64

func (i Identity) String() string {
	return strconv.FormatInt(int64(i), 10)
}

func (k SubjectKey) String() string {
	return strconv.FormatInt(int64(k), 10)
}

// ParseIdentity parses a decimal identity as stored in the identity store.
func ParseIdentity(s string) (Identity, error) {
	n, err := parseInt64(s, "identity")
	if err != nil {
		return 0, err
	}
	return Identity(n), nil
}

// ParseSubjectKey parses a decimal token subject.
func ParseSubjectKey(s string) (SubjectKey, error) {
	n, err := parseInt64(s, "subject")
	if err != nil {
		return 0, err
	}
	return SubjectKey(n), nil
}

func parseInt64(s, kind string) (int64, error) {
	if s == "" {
		return 0, dErrors.New(dErrors.CodeBadRequest, kind+" is required")
	}
	if strings.TrimSpace(s) != s {
		return 0, dErrors.New(dErrors.CodeBadRequest, "invalid "+kind)
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid "+kind)
	}
	return n, nil
}
