//go:build integration

package service_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/botdiril/botdiril-game-backend/internal/auth/service"
	"github.com/botdiril/botdiril-game-backend/internal/auth/store/identity"
	"github.com/botdiril/botdiril-game-backend/internal/auth/store/keys"
	"github.com/botdiril/botdiril-game-backend/internal/auth/token"
	"github.com/botdiril/botdiril-game-backend/pkg/domain"
	dErrors "github.com/botdiril/botdiril-game-backend/pkg/domain-errors"
	"github.com/botdiril/botdiril-game-backend/pkg/testutil"
	"github.com/botdiril/botdiril-game-backend/pkg/testutil/containers"
)

type RedisAuthSuite struct {
	suite.Suite
	redis   *containers.RedisContainer
	issuer  *testutil.Issuer
	service *service.Service
}

func TestRedisAuthSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisAuthSuite))
}

func (s *RedisAuthSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.service = service.New(
		token.NewVerifier(keys.NewRedis(s.redis.Client)),
		identity.NewRedis(s.redis.Client),
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
}

func (s *RedisAuthSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.redis.FlushAll(ctx))
	s.issuer = testutil.NewIssuer(s.T(), "key-2026-01")
	s.publishKey(s.issuer)
	s.Require().NoError(s.redis.Seed(ctx, identity.DefaultSubjectPrefix+"7", "42"))
}

func (s *RedisAuthSuite) publishKey(issuer *testutil.Issuer) {
	err := s.redis.Client.Set(context.Background(), keys.DefaultKeyPrefix+issuer.KeyID, issuer.PublicPEM(s.T()), time.Hour).Err()
	s.Require().NoError(err)
}

func (s *RedisAuthSuite) TestValidTokenResolvesIdentity() {
	id, err := s.service.Authenticate(context.Background(), s.issuer.Sign(s.T(), "7", time.Minute))

	s.Require().NoError(err)
	s.Equal(domain.Identity(42), id)
}

func (s *RedisAuthSuite) TestRevokedSubjectIsRejected() {
	ctx := context.Background()
	tok := s.issuer.Sign(s.T(), "7", time.Minute)

	_, err := s.service.Authenticate(ctx, tok)
	s.Require().NoError(err)

	s.Require().NoError(s.redis.Client.Del(ctx, identity.DefaultSubjectPrefix+"7").Err())

	id, err := s.service.Authenticate(ctx, tok)
	s.Zero(id)
	s.Equal(dErrors.CodeInvalidCredential, dErrors.CodeOf(err))
}

func (s *RedisAuthSuite) TestRotatedKeysVerifyIndependently() {
	ctx := context.Background()
	next := testutil.NewIssuer(s.T(), "key-2026-02")
	s.publishKey(next)

	_, err := s.service.Authenticate(ctx, s.issuer.Sign(s.T(), "7", time.Minute))
	s.NoError(err)
	_, err = s.service.Authenticate(ctx, next.Sign(s.T(), "7", time.Minute))
	s.NoError(err)

	s.Require().NoError(s.redis.Client.Del(ctx, keys.DefaultKeyPrefix+s.issuer.KeyID).Err())
	_, err = s.service.Authenticate(ctx, s.issuer.Sign(s.T(), "7", time.Minute))
	s.Equal(dErrors.CodeInvalidCredential, dErrors.CodeOf(err))
}

func (s *RedisAuthSuite) TestCorruptStoredKeyIsInternal() {
	ctx := context.Background()
	s.Require().NoError(s.redis.Client.Set(ctx, keys.DefaultKeyPrefix+s.issuer.KeyID, "garbage", 0).Err())

	_, err := s.service.Authenticate(ctx, s.issuer.Sign(s.T(), "7", time.Minute))

	s.Equal(dErrors.CodeInternal, dErrors.CodeOf(err))
}

func (s *RedisAuthSuite) TestUnreachableRedisIsInternal() {
	ctx, cancel := context.WithCancel(context.Background())
	tok := s.issuer.Sign(s.T(), "7", time.Minute)
	cancel()

	_, err := s.service.Authenticate(ctx, tok)

	s.Equal(dErrors.CodeInternal, dErrors.CodeOf(err))
}
