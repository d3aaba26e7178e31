package kaggle

import "time"

// Phase is where a single remote call stands in its retry life cycle
type Phase uint8

// Phases
const (
	PhaseAttempting Phase = iota
	PhaseBackoff
	PhaseSucceeded
	PhaseFailedFinal
)

func (p Phase) String() string {
	switch p {
	case PhaseAttempting:
		return "attempting"
	case PhaseBackoff:
		return "backoff"
	case PhaseSucceeded:
		return "succeeded"
	case PhaseFailedFinal:
		return "failed_final"
	default:
		return "unknown"
	}
}

// Outcome classifies one attempt
type Outcome uint8

// Outcomes
const (
	OutcomeOK Outcome = iota
	OutcomeTransient
	OutcomeRateLimited
	OutcomeFinal // auth, forbidden, not found, unexpected status
)

// Event is the observed result of an attempt
type Event struct {
	Outcome    Outcome
	RetryAfter time.Duration // server hint on 429, zero when absent
}

// RetryState is the per-call state. Attempts counts transient failures and
// RateLimited counts 429s; the two budgets are independent
type RetryState struct {
	Phase       Phase
	Attempts    int
	RateLimited int
	Wait        time.Duration
	Exhausted   bool
}

// Policy holds the fixed retry limits
type Policy struct {
	MaxRetries          int
	MaxRateLimitRetries int
	Base                time.Duration
	Cap                 time.Duration
	RateLimitWait       time.Duration
}

// Next is the transition function. It is pure: same state and event, same result
func (p Policy) Next(s RetryState, ev Event) RetryState {
	switch ev.Outcome {
	case OutcomeOK:
		return RetryState{Phase: PhaseSucceeded, Attempts: s.Attempts, RateLimited: s.RateLimited}
	case OutcomeTransient:
		if s.Attempts >= p.MaxRetries {
			return RetryState{Phase: PhaseFailedFinal, Attempts: s.Attempts, RateLimited: s.RateLimited, Exhausted: true}
		}
		return RetryState{
			Phase:       PhaseBackoff,
			Attempts:    s.Attempts + 1,
			RateLimited: s.RateLimited,
			Wait:        p.Backoff(s.Attempts),
		}
	case OutcomeRateLimited:
		if s.RateLimited >= p.MaxRateLimitRetries {
			return RetryState{Phase: PhaseFailedFinal, Attempts: s.Attempts, RateLimited: s.RateLimited, Exhausted: true}
		}
		wait := ev.RetryAfter
		if wait <= 0 {
			wait = p.RateLimitWait
		}
		return RetryState{
			Phase:       PhaseBackoff,
			Attempts:    s.Attempts,
			RateLimited: s.RateLimited + 1,
			Wait:        wait,
		}
	default:
		return RetryState{Phase: PhaseFailedFinal, Attempts: s.Attempts, RateLimited: s.RateLimited}
	}
}

// Backoff returns base << attempt capped at Cap
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	limit := p.Cap
	if limit <= 0 {
		limit = defaultRetryCap
	}
	d := p.Base
	for range attempt {
		d <<= 1
		if d >= limit || d <= 0 {
			return limit
		}
	}
	if d > limit {
		return limit
	}
	return d
}
