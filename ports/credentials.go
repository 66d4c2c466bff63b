//go:generate mockgen -source=credentials.go -destination=../mocks/mock_credentials.go -package=mocks

package ports

import (
	"context"

	"github.com/layer-3/loginguard/core"
)

// CredentialStore looks up and maintains principals.
// FindByIdentity returns (nil, nil) when the identity is unknown.
type CredentialStore interface {
	FindByIdentity(ctx context.Context, identity string) (*core.Principal, error)
	TouchLastAuthenticated(ctx context.Context, id string) error
	Create(ctx context.Context, principal *core.Principal) error
}

// SecretHasher hashes and compares secrets with an adaptive, salted algorithm
type SecretHasher interface {
	Hash(plaintext string) (string, error)
	Compare(hash, plaintext string) bool
}
