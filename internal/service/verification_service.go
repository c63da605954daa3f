package service

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"verify-gate/internal/gate"
	"verify-gate/internal/models"
	"verify-gate/internal/util"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

var ErrServiceUnavailable = errors.New("verification service unavailable")

// VerificationService runs gate decisions for the HTTP layer and keeps
// per-outcome counters.
type VerificationService struct {
	engine        *gate.Engine
	destination   string
	sweepInterval time.Duration
	clock         func() time.Time
	logger        *zap.Logger

	accepted atomic.Int64
	rejected atomic.Int64
	locked   atomic.Int64
	swept    atomic.Int64
}

type Option func(*VerificationService)

// WithClock replaces time.Now as the source of decision timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *VerificationService) {
		s.clock = clock
	}
}

// NewVerificationService creates a new verification service
func NewVerificationService(
	engine *gate.Engine,
	destination string,
	sweepInterval time.Duration,
	logger *zap.Logger,
	opts ...Option,
) *VerificationService {
	s := &VerificationService{
		engine:        engine,
		destination:   destination,
		sweepInterval: sweepInterval,
		clock:         time.Now,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Verify decides one submission and logs the resulting event.
func (s *VerificationService) Verify(ctx context.Context, identity, code string) *models.VerificationEvent {
	now := s.clock()
	decision := s.engine.Decide(identity, code, now)
	event := models.NewVerificationEvent(middleware.GetReqID(ctx), identity, decision, now)

	fields := []zap.Field{
		util.String("event_id", event.EventID.String()),
		util.String("request_id", event.RequestID),
		util.String("identity", util.SanitizeInput(identity, 128)),
		util.String("outcome", event.OutcomeName),
	}

	switch decision.Outcome {
	case gate.Accepted:
		s.accepted.Add(1)
		s.logger.Info("Verification accepted", fields...)
	case gate.Rejected:
		s.rejected.Add(1)
		fields = append(fields, util.Int("attempts_remaining", decision.AttemptsRemaining))
		s.logger.Info("Verification rejected", fields...)
	case gate.Locked:
		s.locked.Add(1)
		fields = append(fields, util.Time("retry_after", decision.RetryAfter))
		s.logger.Warn("Verification locked out", fields...)
	}

	return event
}

func (s *VerificationService) Destination() string {
	return s.destination
}

func (s *VerificationService) Policy() gate.Policy {
	return s.engine.Policy()
}

// RunSweeper removes expired ledger records every sweep interval until ctx
// is cancelled.
func (s *VerificationService) RunSweeper(ctx context.Context) error {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Sweep runs one ledger sweep and returns the number of removed records.
func (s *VerificationService) Sweep() int {
	removed := s.engine.Ledger().Sweep(s.clock())
	if removed > 0 {
		s.swept.Add(int64(removed))
		s.logger.Debug("Swept expired attempt records",
			util.Int("removed", removed),
			util.Int("remaining", s.engine.Ledger().Len()),
		)
	}
	return removed
}

// HealthCheck performs service health check
func (s *VerificationService) HealthCheck(ctx context.Context) error {
	if s.engine == nil || s.destination == "" {
		return ErrServiceUnavailable
	}
	return ctx.Err()
}

// GetServiceStats returns service statistics
func (s *VerificationService) GetServiceStats(ctx context.Context) (map[string]interface{}, error) {
	if err := s.HealthCheck(ctx); err != nil {
		return nil, err
	}

	policy := s.engine.Policy()
	stats := map[string]interface{}{
		"tracked_clients": s.engine.Ledger().Len(),
		"accepted":        s.accepted.Load(),
		"rejected":        s.rejected.Load(),
		"locked":          s.locked.Load(),
		"swept":           s.swept.Load(),
		"max_attempts":    policy.MaxAttempts,
		"session_timeout": policy.SessionTimeout.String(),
		"timestamp":       s.clock().UTC(),
	}

	return stats, nil
}
