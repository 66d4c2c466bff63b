package core

import "time"

// Roles
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Principal is an account that can authenticate against the gate
type Principal struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email,omitempty"`
	Role         string     `json:"role"`
	PasswordHash string     `json:"-"`
	LastLoginAt  *time.Time `json:"lastLogin,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// Public returns a copy without the credential hash
func (p Principal) Public() Principal {
	p.PasswordHash = ""
	return p
}
