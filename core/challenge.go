package core

import "time"

// Challenge represents a visual challenge as recorded in the shared store
type Challenge struct {
	ID           string    // Unique, unguessable identifier (UUID v4)
	SolutionHash string    // Hex sha256 of the normalized solution
	IssuedAt     time.Time // When the challenge was created
	ExpiresAt    time.Time // When the store drops the entry
}

// IssuedChallenge is what the caller of Issue receives
type IssuedChallenge struct {
	ID        string
	Payload   string // Renderable image, e.g. a data URL
	ExpiresAt time.Time
}

// FailureCounter is the per-source failure record. The count and the block
// state live in one TTL'd value so they always expire together.
type FailureCounter struct {
	Count     int
	Threshold int
	TTL       time.Duration // Remaining lifetime, zero when the counter is absent
}

// Blocked reports whether the counter has reached its threshold
func (f FailureCounter) Blocked() bool {
	return f.Threshold > 0 && f.Count >= f.Threshold
}

// RateWindow is the result of one fixed-window admission check
type RateWindow struct {
	Allowed   bool
	Limit     int
	Count     int
	Remaining int
	ResetAt   time.Time
	Degraded  bool // Decided by the in-process fallback because the shared store failed
}

// RetryAfter returns how long the caller should wait before the window resets
func (w RateWindow) RetryAfter(now time.Time) time.Duration {
	if w.ResetAt.Before(now) {
		return 0
	}
	return w.ResetAt.Sub(now)
}
