package models

import (
	"time"

	"github.com/google/uuid"

	"verify-gate/internal/gate"
)

// VerificationEvent records one decision made for a client.
type VerificationEvent struct {
	EventID           uuid.UUID    `json:"event_id"`
	RequestID         string       `json:"request_id,omitempty"`
	Identity          string       `json:"identity"`
	Outcome           gate.Outcome `json:"-"`
	OutcomeName       string       `json:"outcome"`
	AttemptsRemaining int          `json:"attempts_remaining"`
	RetryAfter        time.Time    `json:"retry_after,omitempty"`
	EventDate         string       `json:"event_date"`
	EventTime         time.Time    `json:"event_time"`
}

func NewVerificationEvent(requestID, identity string, d gate.Decision, at time.Time) *VerificationEvent {
	return &VerificationEvent{
		EventID:           uuid.New(),
		RequestID:         requestID,
		Identity:          identity,
		Outcome:           d.Outcome,
		OutcomeName:       d.Outcome.String(),
		AttemptsRemaining: d.AttemptsRemaining,
		RetryAfter:        d.RetryAfter,
		EventDate:         at.UTC().Format("2006-01-02"),
		EventTime:         at,
	}
}
