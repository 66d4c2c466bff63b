package loginguard

import (
	"context"

	"github.com/layer-3/loginguard/core"
	"github.com/layer-3/loginguard/ports"
)

// Gate is the public interface of the login gate
type Gate interface {
	// Challenge issues a visual challenge
	Challenge(ctx context.Context) (core.IssuedChallenge, error)

	// Login runs one attempt through the block check, the challenge and the
	// credential check
	Login(ctx context.Context, attempt core.Attempt) core.Outcome

	// Register creates a user account
	Register(ctx context.Context, username, password, email string) (*core.Principal, error)

	// VerifyToken returns the claims of a valid access token
	VerifyToken(ctx context.Context, token string) (ports.Claims, error)
}
