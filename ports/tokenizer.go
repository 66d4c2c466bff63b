//go:generate mockgen -source=tokenizer.go -destination=../mocks/mock_tokenizer.go -package=mocks

package ports

import "time"

// Claims carried by an access token
type Claims map[string]any

// Claim names set on access tokens
const (
	ClaimSubject  = "sub"
	ClaimUserID   = "uid"
	ClaimUsername = "username"
	ClaimRole     = "role"
)

// TokenIssuer signs and verifies access tokens
type TokenIssuer interface {
	Sign(claims Claims, ttl time.Duration) (string, error)
	Verify(token string) (Claims, error)
}
