package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/loginguard/core"
	"github.com/layer-3/loginguard/ports"
)

const challengeKeyPrefix = "captcha:"

// solutionAlphabet leaves out 0 O o 1 I i l L
const solutionAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZabcdefghjkmnpqrstuvwxyz23456789"

// LedgerConfig controls issued challenges
type LedgerConfig struct {
	TTL            time.Duration
	SolutionLength int
	// DebugSolutions logs plaintext solutions. Development only.
	DebugSolutions bool
}

func DefaultLedgerConfig() LedgerConfig {
	return LedgerConfig{TTL: 120 * time.Second, SolutionLength: 6}
}

// ChallengeLedger issues single-use visual challenges and verifies answers.
// Only a hash of each solution is kept in the shared store.
type ChallengeLedger struct {
	store    ports.SharedStore
	renderer ports.ChallengeRenderer
	cfg      LedgerConfig
	deps
}

func NewChallengeLedger(store ports.SharedStore, renderer ports.ChallengeRenderer, cfg LedgerConfig, opts ...Option) (*ChallengeLedger, error) {
	if store == nil {
		return nil, errors.New("shared store is required")
	}
	if renderer == nil {
		return nil, errors.New("challenge renderer is required")
	}
	if cfg.TTL <= 0 || cfg.SolutionLength <= 0 {
		return nil, fmt.Errorf("%w: challenge ttl and solution length must be positive", core.ErrConfiguration)
	}
	return &ChallengeLedger{store: store, renderer: renderer, cfg: cfg, deps: newDeps(opts)}, nil
}

// Issue creates a challenge and stores its solution hash until the TTL lapses
func (l *ChallengeLedger) Issue(ctx context.Context) (core.IssuedChallenge, error) {
	solution, err := randomSolution(l.cfg.SolutionLength)
	if err != nil {
		return core.IssuedChallenge{}, fmt.Errorf("failed to generate solution: %w", err)
	}

	payload, err := l.renderer.Render(solution)
	if err != nil {
		return core.IssuedChallenge{}, fmt.Errorf("failed to render challenge: %w", err)
	}

	now := l.now()
	challenge := core.Challenge{
		ID:           uuid.NewString(),
		SolutionHash: hashSolution(solution),
		IssuedAt:     now,
		ExpiresAt:    now.Add(l.cfg.TTL),
	}

	storeCtx, cancel := l.withStoreTimeout(ctx)
	defer cancel()
	if err := l.store.SetWithTTL(storeCtx, challengeKey(challenge.ID), challenge.SolutionHash, l.cfg.TTL); err != nil {
		l.logger.ErrorContext(ctx, "failed to store challenge", "challenge_id", challenge.ID, "error", err)
		return core.IssuedChallenge{}, fmt.Errorf("failed to store challenge: %w", err)
	}

	if l.cfg.DebugSolutions {
		l.logger.DebugContext(ctx, "challenge solution", "challenge_id", challenge.ID, "solution", solution)
	}
	l.logger.InfoContext(ctx, "challenge issued", "challenge_id", challenge.ID, "ttl", l.cfg.TTL)
	l.metrics.ChallengeIssued()

	return core.IssuedChallenge{
		ID:        challenge.ID,
		Payload:   payload,
		ExpiresAt: challenge.ExpiresAt,
	}, nil
}

// Verify consumes the challenge and reports whether candidate solves it.
// Whatever the answer, the challenge cannot be verified again. Store
// failures return false with an error wrapping core.ErrStoreUnavailable.
func (l *ChallengeLedger) Verify(ctx context.Context, id, candidate string) (bool, error) {
	id = strings.TrimSpace(id)
	if id == "" || strings.TrimSpace(candidate) == "" {
		l.metrics.ChallengeVerified("missing")
		return false, nil
	}
	if _, err := uuid.Parse(id); err != nil {
		l.metrics.ChallengeVerified("missing")
		return false, nil
	}

	storeCtx, cancel := l.withStoreTimeout(ctx)
	defer cancel()
	stored, err := l.store.GetDel(storeCtx, challengeKey(id))
	if errors.Is(err, core.ErrNotFound) {
		l.logger.DebugContext(ctx, "challenge not found or expired", "challenge_id", id)
		l.metrics.ChallengeVerified("missing")
		return false, nil
	}
	if err != nil {
		l.logger.WarnContext(ctx, "challenge verification unavailable", "challenge_id", id, "error", err, "degraded", true)
		l.metrics.StoreDegraded("challenge_ledger", "fail_closed")
		return false, fmt.Errorf("failed to consume challenge: %w", err)
	}

	candidateHash := hashSolution(candidate)
	if subtle.ConstantTimeCompare([]byte(candidateHash), []byte(stored)) != 1 {
		l.metrics.ChallengeVerified("invalid")
		return false, nil
	}
	l.metrics.ChallengeVerified("valid")
	return true, nil
}

func challengeKey(id string) string {
	return challengeKeyPrefix + id
}

// normalizeSolution makes answers case and whitespace insensitive
func normalizeSolution(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func hashSolution(s string) string {
	sum := sha256.Sum256([]byte(normalizeSolution(s)))
	return hex.EncodeToString(sum[:])
}

func randomSolution(length int) (string, error) {
	size := big.NewInt(int64(len(solutionAlphabet)))
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", err
		}
		out[i] = solutionAlphabet[n.Int64()]
	}
	return string(out), nil
}
