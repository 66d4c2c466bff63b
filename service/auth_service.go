package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/layer-3/loginguard/core"
	"github.com/layer-3/loginguard/ports"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Challenges issues and verifies visual challenges
type Challenges interface {
	Issue(ctx context.Context) (core.IssuedChallenge, error)
	Verify(ctx context.Context, id, candidate string) (bool, error)
}

// FailureTracker tracks failed attempts per source
type FailureTracker interface {
	IsBlocked(ctx context.Context, source string) bool
	RecordFailure(ctx context.Context, source string) (bool, int)
	Reset(ctx context.Context, source string)
	RetryAfter(ctx context.Context, source string) time.Duration
}

// AuthDeps are the collaborators of AuthService. Events is optional.
type AuthDeps struct {
	Challenges  Challenges
	Failures    FailureTracker
	Credentials ports.CredentialStore
	Hasher      ports.SecretHasher
	Tokens      ports.TokenIssuer
	Events      ports.EventPublisher
}

type AuthConfig struct {
	TokenTTL          time.Duration
	MinUsernameLength int
	MinSecretLength   int
}

func DefaultAuthConfig() AuthConfig {
	return AuthConfig{TokenTTL: 24 * time.Hour, MinUsernameLength: 3, MinSecretLength: 6}
}

// AuthService handles authentication business logic
type AuthService struct {
	challenges  Challenges
	failures    FailureTracker
	credentials ports.CredentialStore
	hasher      ports.SecretHasher
	tokens      ports.TokenIssuer
	events      ports.EventPublisher
	cfg         AuthConfig
	deps

	dummyHash string
}

// NewAuthService creates a new authentication service
func NewAuthService(d AuthDeps, cfg AuthConfig, opts ...Option) (*AuthService, error) {
	switch {
	case d.Challenges == nil:
		return nil, errors.New("challenge ledger is required")
	case d.Failures == nil:
		return nil, errors.New("failure tracker is required")
	case d.Credentials == nil:
		return nil, errors.New("credential store is required")
	case d.Hasher == nil:
		return nil, errors.New("secret hasher is required")
	case d.Tokens == nil:
		return nil, errors.New("token issuer is required")
	}
	if cfg.TokenTTL <= 0 {
		return nil, fmt.Errorf("%w: token ttl must be positive", core.ErrConfiguration)
	}
	// Unknown identities are compared against this hash so they cost the
	// same as a wrong secret
	dummyHash, err := d.Hasher.Hash("loginguard-timing-equalizer")
	if err != nil {
		return nil, fmt.Errorf("failed to prepare dummy hash: %w", err)
	}
	return &AuthService{
		challenges:  d.Challenges,
		failures:    d.Failures,
		credentials: d.Credentials,
		hasher:      d.Hasher,
		tokens:      d.Tokens,
		events:      d.Events,
		cfg:         cfg,
		deps:        newDeps(opts),
		dummyHash:   dummyHash,
	}, nil
}

// CreateChallenge issues a new visual challenge
func (s *AuthService) CreateChallenge(ctx context.Context) (core.IssuedChallenge, error) {
	return s.challenges.Issue(ctx)
}

// Authenticate runs one login attempt through the gate and returns its
// outcome. The block check runs before the challenge is consumed so a
// blocked source cannot burn challenges.
func (s *AuthService) Authenticate(ctx context.Context, attempt core.Attempt) core.Outcome {
	ctx, span := s.tracer.Start(ctx, "AuthService.Authenticate")
	defer span.End()

	outcome := s.authenticate(ctx, attempt)

	span.SetAttributes(
		attribute.String("auth.outcome", string(outcome.Kind)),
		attribute.Int("auth.failures", outcome.Failures),
	)
	if outcome.Kind == core.OutcomeError {
		span.RecordError(outcome.Err)
		span.SetStatus(codes.Error, outcome.Err.Error())
	}
	s.metrics.Outcome(string(outcome.Kind))
	return outcome
}

func (s *AuthService) authenticate(ctx context.Context, attempt core.Attempt) core.Outcome {
	if err := attempt.Validate(); err != nil {
		return core.Failed(err)
	}
	source := attempt.Source

	if s.failures.IsBlocked(ctx, source) {
		outcome := core.Rejected(core.OutcomeRejectedBlocked, 0)
		outcome.RetryAfter = s.failures.RetryAfter(ctx, source)
		outcome.Err = core.ErrSourceBlocked
		return outcome
	}

	valid, err := s.challenges.Verify(ctx, attempt.ChallengeID, attempt.ChallengeResponse)
	if err != nil {
		s.logger.ErrorContext(ctx, "challenge verification failed", "error", err)
		return core.Failed(err)
	}
	if !valid {
		s.logger.InfoContext(ctx, "invalid challenge response", "source", core.AnonymizeIP(source))
		return s.reject(ctx, source, core.OutcomeRejectedInvalidChallenge)
	}

	principal, err := s.credentials.FindByIdentity(ctx, attempt.Identity)
	if err != nil {
		s.logger.ErrorContext(ctx, "credential lookup failed", "error", err)
		return core.Failed(fmt.Errorf("failed to find principal: %w", err))
	}
	if principal == nil {
		// Spend the same hashing time as a real comparison
		s.hasher.Compare(s.dummyHash, attempt.Secret)
		s.logger.InfoContext(ctx, "login with unknown identity", "source", core.AnonymizeIP(source))
		return s.reject(ctx, source, core.OutcomeRejectedInvalidCredentials)
	}
	if !s.hasher.Compare(principal.PasswordHash, attempt.Secret) {
		s.logger.InfoContext(ctx, "login with wrong secret", "principal", principal.ID, "source", core.AnonymizeIP(source))
		return s.reject(ctx, source, core.OutcomeRejectedInvalidCredentials)
	}

	s.failures.Reset(ctx, source)
	if err := s.credentials.TouchLastAuthenticated(ctx, principal.ID); err != nil {
		s.logger.WarnContext(ctx, "failed to update last login", "principal", principal.ID, "error", err)
	}

	token, err := s.tokens.Sign(ports.Claims{
		ports.ClaimSubject:  principal.ID,
		ports.ClaimUserID:   principal.ID,
		ports.ClaimUsername: principal.Username,
		ports.ClaimRole:     principal.Role,
	}, s.cfg.TokenTTL)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to sign token", "principal", principal.ID, "error", err)
		return core.Failed(fmt.Errorf("failed to create access token: %w", err))
	}

	s.logger.InfoContext(ctx, "login succeeded", "principal", principal.ID, "source", core.AnonymizeIP(source))
	s.publish(ctx, ports.SecurityEvent{
		Type:      ports.EventLoginSucceeded,
		Source:    core.AnonymizeIP(source),
		Principal: principal.ID,
	})

	public := principal.Public()
	return core.Outcome{Kind: core.OutcomeSuccess, Token: token, Principal: &public}
}

// reject records a failure and returns kind, or a block when this failure
// reached the threshold
func (s *AuthService) reject(ctx context.Context, source string, kind core.OutcomeKind) core.Outcome {
	blocked, failures := s.failures.RecordFailure(ctx, source)
	if !blocked {
		outcome := core.Rejected(kind, failures)
		outcome.Err = core.ErrSecretMismatch
		return outcome
	}

	s.publish(ctx, ports.SecurityEvent{
		Type:     ports.EventSourceBlocked,
		Source:   core.AnonymizeIP(source),
		Failures: failures,
	})
	outcome := core.Rejected(core.OutcomeRejectedBlocked, failures)
	outcome.RetryAfter = s.failures.RetryAfter(ctx, source)
	outcome.Err = core.ErrSourceBlocked
	return outcome
}

func (s *AuthService) publish(ctx context.Context, event ports.SecurityEvent) {
	if s.events == nil {
		return
	}
	event.OccurredAt = s.now().UTC()
	if err := s.events.PublishSecurityEvent(ctx, event); err != nil {
		// The decision is already made, delivery is best effort
		s.logger.WarnContext(ctx, "failed to publish security event", "type", event.Type, "error", err)
	}
}

// Register creates a principal with the user role
func (s *AuthService) Register(ctx context.Context, username, secret, email string) (*core.Principal, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	switch {
	case len(username) < s.cfg.MinUsernameLength:
		return nil, fmt.Errorf("%w: username must be at least %d characters", core.ErrValidation, s.cfg.MinUsernameLength)
	case len(secret) < s.cfg.MinSecretLength:
		return nil, fmt.Errorf("%w: password must be at least %d characters", core.ErrValidation, s.cfg.MinSecretLength)
	}
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return nil, fmt.Errorf("%w: invalid email", core.ErrValidation)
		}
	}

	hash, err := s.hasher.Hash(secret)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	principal := &core.Principal{
		Username:     username,
		Email:        email,
		Role:         core.RoleUser,
		PasswordHash: hash,
	}
	if err := s.credentials.Create(ctx, principal); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "principal registered", "principal", principal.ID)
	public := principal.Public()
	return &public, nil
}

// ValidateAccessToken verifies an access token and returns its claims
func (s *AuthService) ValidateAccessToken(ctx context.Context, accessToken string) (ports.Claims, error) {
	claims, err := s.tokens.Verify(accessToken)
	if err != nil {
		return nil, fmt.Errorf("invalid access token: %w", err)
	}
	return claims, nil
}
