package tokenizer

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/layer-3/loginguard/core"
	"github.com/layer-3/loginguard/ports"
)

const AudienceAccess = "session:access"

// DefaultIssuer is written into the iss claim unless overridden
const DefaultIssuer = "loginguard"

// JWTTokenizer implements ports.TokenIssuer with HMAC-SHA256 signed JWTs
type JWTTokenizer struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewJWTTokenizer creates a tokenizer signing with secret. An empty secret
// is a configuration error.
func NewJWTTokenizer(secret []byte, issuer string) (*JWTTokenizer, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("%w: jwt secret is required", core.ErrConfiguration)
	}
	if issuer == "" {
		issuer = DefaultIssuer
	}
	return &JWTTokenizer{secret: secret, issuer: issuer, now: time.Now}, nil
}

// Sign issues a token carrying claims that expires after ttl
func (j *JWTTokenizer) Sign(claims ports.Claims, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", fmt.Errorf("%w: token ttl must be positive", core.ErrConfiguration)
	}

	now := j.now()
	mapClaims := jwt.MapClaims{}
	for k, v := range claims {
		if _, ok := reserved[k]; ok {
			continue
		}
		mapClaims[k] = v
	}
	mapClaims["iss"] = j.issuer
	mapClaims["aud"] = AudienceAccess
	mapClaims["jti"] = uuid.NewString()
	mapClaims["iat"] = jwt.NewNumericDate(now)
	mapClaims["exp"] = jwt.NewNumericDate(now.Add(ttl))

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, mapClaims)

	signedToken, err := token.SignedString(j.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}

	return signedToken, nil
}

// Verify parses an access token and returns its claims. Any failure,
// including expiry, wraps core.ErrInvalidToken.
func (j *JWTTokenizer) Verify(tokenStr string) (ports.Claims, error) {
	claims := &AccessClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secret, nil
	},
		jwt.WithAudience(AudienceAccess),
		jwt.WithIssuer(j.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: token expired", core.ErrInvalidToken)
		}
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, core.ErrInvalidToken
	}

	out := ports.Claims{
		ports.ClaimSubject:  claims.Subject,
		ports.ClaimUserID:   claims.UserID,
		ports.ClaimUsername: claims.Username,
		ports.ClaimRole:     claims.Role,
		"jti":               claims.ID,
	}
	if claims.ExpiresAt != nil {
		out["exp"] = claims.ExpiresAt.Unix()
	}
	if claims.IssuedAt != nil {
		out["iat"] = claims.IssuedAt.Unix()
	}
	return out, nil
}
