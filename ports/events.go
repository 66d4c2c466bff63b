package ports

import (
	"context"
	"time"
)

// Security event types
const (
	EventSourceBlocked  = "source_blocked"
	EventLoginSucceeded = "login_succeeded"
)

// SecurityEvent is broadcast to other instances and to audit consumers
type SecurityEvent struct {
	Type       string    `json:"type"`
	Source     string    `json:"source"` // Anonymized source address
	Principal  string    `json:"principal,omitempty"`
	Failures   int       `json:"failures,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EventPublisher publishes security events to notify other instances
type EventPublisher interface {
	PublishSecurityEvent(ctx context.Context, event SecurityEvent) error
}
