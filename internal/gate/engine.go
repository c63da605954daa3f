package gate

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalidPolicy = errors.New("invalid verification policy")

// Outcome is the result class of a single verification.
type Outcome int

const (
	Accepted Outcome = iota + 1
	Rejected
	Locked
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	case Locked:
		return "locked"
	default:
		return "unknown"
	}
}

// Decision is returned by Engine.Decide.
//
// AttemptsRemaining is only meaningful for Rejected. A Rejected decision with
// zero attempts remaining means the next attempt inside the window is Locked.
// RetryAfter is the end of the lockout for Locked and the time the failure
// count resets for Rejected.
type Decision struct {
	Outcome           Outcome
	AttemptsRemaining int
	RetryAfter        time.Time
}

// Policy is fixed for the lifetime of an Engine.
type Policy struct {
	SecretCode     string
	SessionTimeout time.Duration
	MaxAttempts    int
}

func (p Policy) Validate() error {
	var errs []error
	if strings.TrimSpace(p.SecretCode) == "" {
		errs = append(errs, errors.New("secret code is empty"))
	}
	if p.SessionTimeout <= 0 {
		errs = append(errs, fmt.Errorf("session timeout must be positive, got %s", p.SessionTimeout))
	}
	if p.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("max attempts must be positive, got %d", p.MaxAttempts))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidPolicy, errors.Join(errs...))
	}
	return nil
}

// Engine decides verification requests against a Policy and a Ledger.
type Engine struct {
	policy Policy
	secret []byte
	ledger *Ledger
}

func NewEngine(policy Policy, ledger *Ledger) (*Engine, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if ledger == nil {
		return nil, fmt.Errorf("%w: ledger is nil", ErrInvalidPolicy)
	}
	if ledger.Timeout() != policy.SessionTimeout {
		return nil, fmt.Errorf("%w: ledger timeout %s differs from session timeout %s",
			ErrInvalidPolicy, ledger.Timeout(), policy.SessionTimeout)
	}

	return &Engine{
		policy: policy,
		secret: []byte(normalizeCode(policy.SecretCode)),
		ledger: ledger,
	}, nil
}

func (e *Engine) Policy() Policy {
	return e.policy
}

func (e *Engine) Ledger() *Ledger {
	return e.ledger
}

// Decide runs one verification for identity. The whole decision happens
// under the identity's ledger lock.
func (e *Engine) Decide(identity, submittedCode string, now time.Time) Decision {
	var d Decision

	e.ledger.Update(identity, func(tx *Txn) {
		rec := tx.Get()
		if now.Sub(rec.LastAttemptAt) <= e.policy.SessionTimeout && rec.Attempts >= e.policy.MaxAttempts {
			d = Decision{
				Outcome:    Locked,
				RetryAfter: rec.LastAttemptAt.Add(e.policy.SessionTimeout),
			}
			return
		}

		rec = tx.RecordAttempt(now)

		if e.matches(submittedCode) {
			tx.Clear()
			d = Decision{Outcome: Accepted}
			return
		}

		d = Decision{
			Outcome:           Rejected,
			AttemptsRemaining: max(e.policy.MaxAttempts-rec.Attempts, 0),
			RetryAfter:        rec.LastAttemptAt.Add(e.policy.SessionTimeout),
		}
	})

	return d
}

func (e *Engine) matches(submitted string) bool {
	return subtle.ConstantTimeCompare([]byte(normalizeCode(submitted)), e.secret) == 1
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
