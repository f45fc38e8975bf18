package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks TokenVerifier,IdentityResolver

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/botdiril/botdiril-game-backend/internal/auth/token"
	"github.com/botdiril/botdiril-game-backend/internal/platform/metrics"
	"github.com/botdiril/botdiril-game-backend/pkg/domain"
	dErrors "github.com/botdiril/botdiril-game-backend/pkg/domain-errors"
	"github.com/botdiril/botdiril-game-backend/pkg/platform/sentinel"
)

const tracerName = "github.com/botdiril/botdiril-game-backend/internal/auth/service"

type TokenVerifier interface {
	Verify(ctx context.Context, tokenString string) (*token.Verified, error)
}

type IdentityResolver interface {
	Resolve(ctx context.Context, subject domain.SubjectKey) (domain.Identity, error)
}

// Service turns a bearer token into the live identity it stands for. A
// token whose subject mapping has been deleted is revoked.
type Service struct {
	verifier TokenVerifier
	resolver IdentityResolver
	metrics  *metrics.Metrics
	logger   *slog.Logger
	tracer   trace.Tracer
}

type Option func(*Service)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func New(verifier TokenVerifier, resolver IdentityResolver, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		verifier: verifier,
		resolver: resolver,
		logger:   logger,
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Authenticate verifies tokenString and resolves its subject.
//
// The returned error always carries one of CodeMalformedToken,
// CodeInvalidCredential or CodeInternal as its outermost code.
func (s *Service) Authenticate(ctx context.Context, tokenString string) (domain.Identity, error) {
	ctx, span := s.tracer.Start(ctx, "auth.authenticate")
	defer span.End()

	id, err := s.authenticate(ctx, tokenString)
	result := outcome(err)
	s.metrics.IncAuth(result)
	span.SetAttributes(attribute.String("auth.result", result))
	if err != nil {
		span.SetStatus(codes.Error, result)
		if result == metrics.AuthInternal {
			s.logger.ErrorContext(ctx, "authentication failed on infrastructure", "error", err)
		}
		return 0, err
	}
	span.SetAttributes(attribute.Int64("player.id", int64(id)))
	return id, nil
}

func (s *Service) authenticate(ctx context.Context, tokenString string) (domain.Identity, error) {
	verified, err := s.verifier.Verify(ctx, tokenString)
	if err != nil {
		switch dErrors.CodeOf(err) {
		case dErrors.CodeMalformedToken, dErrors.CodeInvalidCredential:
			return 0, err
		default:
			return 0, dErrors.Wrap(err, dErrors.CodeInternal, "token verification failed")
		}
	}

	id, err := s.resolver.Resolve(ctx, verified.Subject)
	if errors.Is(err, sentinel.ErrNotFound) {
		return 0, dErrors.Wrap(err, dErrors.CodeInvalidCredential, "subject has no identity")
	}
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve identity")
	}
	return id, nil
}

func outcome(err error) string {
	if err == nil {
		return metrics.AuthOK
	}
	switch dErrors.CodeOf(err) {
	case dErrors.CodeMalformedToken:
		return metrics.AuthMalformed
	case dErrors.CodeInvalidCredential:
		return metrics.AuthInvalidCredential
	default:
		return metrics.AuthInternal
	}
}
