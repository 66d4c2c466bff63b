package tokenizer

import "github.com/golang-jwt/jwt/v5"

// reserved claims are set by the tokenizer and never taken from the caller
var reserved = map[string]struct{}{
	"iss": {},
	"aud": {},
	"exp": {},
	"iat": {},
	"nbf": {},
	"jti": {},
}

// AccessClaims combines standard claims with the principal fields of an access token
type AccessClaims struct {
	jwt.RegisteredClaims
	UserID   string `json:"uid,omitempty"`
	Username string `json:"username,omitempty"`
	Role     string `json:"role,omitempty"`
}
