package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"github.com/botdiril/botdiril-game-backend/internal/auth/service/mocks"
	"github.com/botdiril/botdiril-game-backend/internal/auth/token"
	"github.com/botdiril/botdiril-game-backend/internal/platform/metrics"
	"github.com/botdiril/botdiril-game-backend/pkg/domain"
	dErrors "github.com/botdiril/botdiril-game-backend/pkg/domain-errors"
	"github.com/botdiril/botdiril-game-backend/pkg/platform/sentinel"
)

const bearer = "header.payload.signature"

type AuthenticateSuite struct {
	suite.Suite
	ctx      context.Context
	ctrl     *gomock.Controller
	verifier *mocks.MockTokenVerifier
	resolver *mocks.MockIdentityResolver
	metrics  *metrics.Metrics
	service  *Service
}

func TestAuthenticateSuite(t *testing.T) {
	suite.Run(t, new(AuthenticateSuite))
}

func (s *AuthenticateSuite) SetupTest() {
	s.ctx = context.Background()
	s.ctrl = gomock.NewController(s.T())
	s.verifier = mocks.NewMockTokenVerifier(s.ctrl)
	s.resolver = mocks.NewMockIdentityResolver(s.ctrl)
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.service = New(s.verifier, s.resolver, slog.New(slog.NewTextHandler(io.Discard, nil)), WithMetrics(s.metrics))
}

func (s *AuthenticateSuite) outcomes(result string) float64 {
	return testutil.ToFloat64(s.metrics.AuthOutcomes.WithLabelValues(result))
}

func (s *AuthenticateSuite) verified(subject domain.SubjectKey) {
	s.verifier.EXPECT().Verify(gomock.Any(), bearer).Return(&token.Verified{KeyID: "k1", Subject: subject}, nil)
}

func (s *AuthenticateSuite) TestResolvesLiveIdentity() {
	s.verified(7)
	s.resolver.EXPECT().Resolve(gomock.Any(), domain.SubjectKey(7)).Return(domain.Identity(42), nil)

	id, err := s.service.Authenticate(s.ctx, bearer)

	s.Require().NoError(err)
	s.Equal(domain.Identity(42), id)
	s.Equal(1.0, s.outcomes(metrics.AuthOK))
}

func (s *AuthenticateSuite) TestRevokedSubjectIsInvalidCredential() {
	s.verified(7)
	s.resolver.EXPECT().Resolve(gomock.Any(), domain.SubjectKey(7)).Return(domain.Identity(0), sentinel.ErrNotFound)

	id, err := s.service.Authenticate(s.ctx, bearer)

	s.Require().Error(err)
	s.Zero(id)
	s.Equal(dErrors.CodeInvalidCredential, dErrors.CodeOf(err))
	s.Equal(1.0, s.outcomes(metrics.AuthInvalidCredential))
}

func (s *AuthenticateSuite) TestResolverOutageIsInternal() {
	s.verified(7)
	s.resolver.EXPECT().Resolve(gomock.Any(), domain.SubjectKey(7)).
		Return(domain.Identity(0), fmt.Errorf("get identity: %w: %w", sentinel.ErrUnavailable, errors.New("i/o timeout")))

	_, err := s.service.Authenticate(s.ctx, bearer)

	s.Equal(dErrors.CodeInternal, dErrors.CodeOf(err))
	s.Equal(1.0, s.outcomes(metrics.AuthInternal))
}

func (s *AuthenticateSuite) TestCorruptStoredIdentityIsInternal() {
	s.verified(7)
	s.resolver.EXPECT().Resolve(gomock.Any(), domain.SubjectKey(7)).
		Return(domain.Identity(0), dErrors.New(dErrors.CodeBadRequest, "invalid identity"))

	_, err := s.service.Authenticate(s.ctx, bearer)

	s.Equal(dErrors.CodeInternal, dErrors.CodeOf(err))
}

func (s *AuthenticateSuite) TestVerifierFailuresSkipResolver() {
	cases := []struct {
		name   string
		err    error
		code   dErrors.Code
		result string
	}{
		{"malformed", dErrors.New(dErrors.CodeMalformedToken, "token header has no key id"), dErrors.CodeMalformedToken, metrics.AuthMalformed},
		{"invalid credential", dErrors.New(dErrors.CodeInvalidCredential, "unknown key id"), dErrors.CodeInvalidCredential, metrics.AuthInvalidCredential},
		{"internal", dErrors.Wrap(sentinel.ErrUnavailable, dErrors.CodeInternal, "failed to resolve verification key"), dErrors.CodeInternal, metrics.AuthInternal},
		{"uncoded", errors.New("boom"), dErrors.CodeInternal, metrics.AuthInternal},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			s.SetupTest()
			s.verifier.EXPECT().Verify(gomock.Any(), bearer).Return(nil, tc.err)

			id, err := s.service.Authenticate(s.ctx, bearer)

			s.Require().Error(err)
			s.Zero(id)
			s.Equal(tc.code, dErrors.CodeOf(err))
			s.Equal(1.0, s.outcomes(tc.result))
		})
	}
}
