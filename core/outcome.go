package core

import (
	"fmt"
	"strings"
	"time"
)

// OutcomeKind tags the result of one authentication attempt
type OutcomeKind string

const (
	OutcomeSuccess                    OutcomeKind = "success"
	OutcomeRejectedBlocked            OutcomeKind = "rejected_blocked"
	OutcomeRejectedInvalidChallenge   OutcomeKind = "rejected_invalid_challenge"
	OutcomeRejectedInvalidCredentials OutcomeKind = "rejected_invalid_credentials"
	OutcomeRejectedRateLimited        OutcomeKind = "rejected_rate_limited"
	OutcomeError                      OutcomeKind = "error"
)

// Attempt is one login submission
type Attempt struct {
	Identity          string
	Secret            string
	ChallengeID       string
	ChallengeResponse string
	Source            string // Source identifier, usually the client IP
}

// Validate checks the attempt carries every field the gate needs
func (a Attempt) Validate() error {
	var missing []string
	if strings.TrimSpace(a.Identity) == "" {
		missing = append(missing, "identity")
	}
	if a.Secret == "" {
		missing = append(missing, "secret")
	}
	if strings.TrimSpace(a.ChallengeID) == "" {
		missing = append(missing, "challenge id")
	}
	if strings.TrimSpace(a.ChallengeResponse) == "" {
		missing = append(missing, "challenge response")
	}
	if strings.TrimSpace(a.Source) == "" {
		missing = append(missing, "source")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrValidation, strings.Join(missing, ", "))
	}
	return nil
}

// Outcome is the single structured result of Authenticate
type Outcome struct {
	Kind       OutcomeKind
	Token      string
	Principal  *Principal
	Failures   int           // Failure count after this attempt, when known
	RetryAfter time.Duration // Set for blocked and rate limited outcomes
	Err        error         // Set for OutcomeError
}

// Succeeded reports whether the attempt produced a token
func (o Outcome) Succeeded() bool {
	return o.Kind == OutcomeSuccess
}

// Rejected builds a rejection outcome of the given kind
func Rejected(kind OutcomeKind, failures int) Outcome {
	return Outcome{Kind: kind, Failures: failures}
}

// Failed builds an error outcome
func Failed(err error) Outcome {
	return Outcome{Kind: OutcomeError, Err: err}
}
