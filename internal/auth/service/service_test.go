package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"dochost/internal/auth/models"
	"dochost/internal/auth/store/user"
	defmodels "dochost/internal/defense/models"
	jwttoken "dochost/internal/jwt_token"
	dErrors "dochost/pkg/domain-errors"
	"dochost/pkg/requestcontext"
)

// stubDecider returns a fixed decision and records whether it was consulted.
type stubDecider struct {
	decision defmodels.Decision
	retryAt  time.Time
	calls    int
}

func (d *stubDecider) Evaluate(_ context.Context, _, _ string) (defmodels.Decision, time.Time) {
	d.calls++
	return d.decision, d.retryAt
}

// trackingStore wraps the in-memory store to observe lookups.
type trackingStore struct {
	*user.InMemoryUserStore
	lookups int
}

func (s *trackingStore) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	s.lookups++
	return s.InMemoryUserStore.FindByUsername(ctx, username)
}

type ServiceSuite struct {
	suite.Suite
	users   *trackingStore
	decider *stubDecider
	tokens  *jwttoken.JWTService
	svc     *Service
}

func (s *ServiceSuite) SetupTest() {
	s.users = &trackingStore{InMemoryUserStore: user.New()}
	s.decider = &stubDecider{decision: defmodels.DecisionAdmitted}
	s.tokens = jwttoken.NewJWTService("test-signing-key-0123456789abcdef", "dochost", 15*time.Minute)

	svc, err := New(s.users, s.decider, s.tokens,
		WithLogger(slog.New(slog.NewJSONHandler(io.Discard, nil))),
	)
	s.Require().NoError(err)
	s.svc = svc

	s.Require().NoError(s.svc.Register(context.Background(), "testuser", "Password123"))
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) TestLoginSuccess() {
	res, err := s.svc.Login(context.Background(), "testuser", "Password123")
	s.Require().NoError(err)
	s.Equal("testuser", res.Username)

	claims, err := s.tokens.ValidateToken(res.Token)
	s.Require().NoError(err)
	s.Equal("testuser", claims.Username)
}

func (s *ServiceSuite) TestLoginWrongPassword() {
	_, err := s.svc.Login(context.Background(), "testuser", "wrong")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *ServiceSuite) TestLoginUnknownUser() {
	_, err := s.svc.Login(context.Background(), "nobody", "Password123")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *ServiceSuite) TestLockedAccountNeverReachesCredentials() {
	s.decider.decision = defmodels.DecisionAccountLocked

	_, err := s.svc.Login(context.Background(), "testuser", "Password123")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeAccountLocked))
	s.Equal(1, s.decider.calls)
	s.Zero(s.users.lookups, "denied attempts must not touch the user store")
}

func (s *ServiceSuite) TestBlockedAddressIsRateLimited() {
	s.decider.decision = defmodels.DecisionAddressBlocked

	_, err := s.svc.Login(context.Background(), "testuser", "Password123")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeRateLimited))
}

func (s *ServiceSuite) TestDeniedLoginCarriesRetryHint() {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), now)
	s.decider.decision = defmodels.DecisionAddressBlocked
	s.decider.retryAt = now.Add(2 * time.Minute)

	_, err := s.svc.Login(ctx, "testuser", "Password123")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeRateLimited))
	s.Equal(2*time.Minute, dErrors.RetryAfter(err))
}

func (s *ServiceSuite) TestGlobalBlockIsRateLimited() {
	s.decider.decision = defmodels.DecisionGlobalBlocked

	_, err := s.svc.Login(context.Background(), "testuser", "Password123")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeRateLimited))
}

func (s *ServiceSuite) TestRegisterRequiresUsername() {
	err := s.svc.Register(context.Background(), "", "whatever")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ServiceSuite) TestRegisterStoresCreationTime() {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), at)

	s.Require().NoError(s.svc.Register(ctx, "alice", "s3cret"))

	u, err := s.users.FindByUsername(ctx, "alice")
	s.Require().NoError(err)
	s.Equal(at, u.CreatedAt)
}
