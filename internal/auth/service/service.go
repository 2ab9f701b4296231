// Package service implements the login flow. Every attempt is evaluated by
// the defense engine before any credential comparison, so denied attempts
// never reach the password check and carry no timing signal about whether
// the account exists.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"dochost/internal/audit"
	"dochost/internal/auth/models"
	defmodels "dochost/internal/defense/models"
	"dochost/internal/sentinel"
	dErrors "dochost/pkg/domain-errors"
	"dochost/pkg/requestcontext"
	"dochost/pkg/secrets"
)

// UserStore defines the persistence interface for user data.
// Error Contract: FindByUsername returns sentinel.ErrNotFound (wrapped) when
// the user does not exist.
type UserStore interface {
	Save(ctx context.Context, user *models.User) error
	FindByUsername(ctx context.Context, username string) (*models.User, error)
}

// Decider evaluates one authentication attempt against the abuse policies.
// For a denied attempt the returned time is the deadline the denial lifts at.
type Decider interface {
	Evaluate(ctx context.Context, account, address string) (defmodels.Decision, time.Time)
}

type TokenIssuer interface {
	GenerateSessionToken(ctx context.Context, username string) (string, error)
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditRecorder(recorder *audit.Recorder) Option {
	return func(s *Service) {
		s.recorder = recorder
	}
}

type Service struct {
	users    UserStore
	defense  Decider
	tokens   TokenIssuer
	logger   *slog.Logger
	recorder *audit.Recorder
}

func New(users UserStore, defense Decider, tokens TokenIssuer, opts ...Option) (*Service, error) {
	if users == nil {
		return nil, errors.New("user store is required")
	}
	if defense == nil {
		return nil, errors.New("defense decider is required")
	}
	if tokens == nil {
		return nil, errors.New("token issuer is required")
	}

	svc := &Service{
		users:   users,
		defense: defense,
		tokens:  tokens,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// dummyHash absorbs a bcrypt comparison for unknown usernames so the
// response time does not reveal whether the account exists.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// Login evaluates the attempt against the defense policies, then verifies
// the credentials and issues a session token. The defense decision is made
// first: locked or blocked attempts never reach the password comparison.
func (s *Service) Login(ctx context.Context, username, password string) (*models.LoginResult, error) {
	address := requestcontext.ClientIP(ctx)

	decision, retryAt := s.defense.Evaluate(ctx, username, address)
	if !decision.Admitted() {
		s.auditAttempt(ctx, username, false, decision)
		wait := retryAt.Sub(requestcontext.Now(ctx))
		return nil, dErrors.WithRetryAfter(denialError(decision), wait)
	}

	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			_ = secrets.Verify(password, dummyHash)
			s.auditAttempt(ctx, username, false, decision)
			return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not look up user")
	}

	if err := secrets.Verify(password, user.PasswordHash); err != nil {
		s.auditAttempt(ctx, username, false, decision)
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
	}

	token, err := s.tokens.GenerateSessionToken(ctx, username)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not issue session token")
	}

	s.auditAttempt(ctx, username, true, decision)
	return &models.LoginResult{Username: username, Token: token}, nil
}

// Register creates a user with a freshly hashed password. Used at startup
// for seeding and by tests.
func (s *Service) Register(ctx context.Context, username, password string) error {
	if username == "" {
		return dErrors.New(dErrors.CodeValidation, "username cannot be empty")
	}
	hash, err := secrets.Hash(password)
	if err != nil {
		return err
	}
	return s.users.Save(ctx, &models.User{
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    requestcontext.Now(ctx).UTC(),
	})
}

func denialError(decision defmodels.Decision) error {
	switch decision {
	case defmodels.DecisionAccountLocked:
		return dErrors.New(dErrors.CodeAccountLocked, "account temporarily locked")
	case defmodels.DecisionAddressBlocked:
		return dErrors.New(dErrors.CodeRateLimited, "too many attempts from this address")
	case defmodels.DecisionGlobalBlocked:
		return dErrors.New(dErrors.CodeRateLimited, "service is rate limiting login attempts")
	default:
		return dErrors.New(dErrors.CodeInternal, "unexpected decision")
	}
}

func (s *Service) auditAttempt(ctx context.Context, username string, success bool, decision defmodels.Decision) {
	s.logger.InfoContext(ctx, "login attempt",
		"event", "login_attempt",
		"log_type", "audit",
		"username", username,
		"success", success,
		"decision", decision.String(),
	)
	if s.recorder != nil {
		ok := success
		_ = s.recorder.Record(ctx, audit.Event{
			Event:    "login_attempt",
			Username: username,
			Success:  &ok,
			Decision: decision.String(),
		})
	}
}
