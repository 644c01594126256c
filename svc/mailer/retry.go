package mailer

import (
	"context"
	"log/slog"
	"time"

	"github.com/launchpilot/launchpilot/pkg/backoff"
)

// RetrySender wraps an EmailSender and retries transient provider failures.
// Permanent failures (4xx validation errors, bad recipients) are returned
// immediately so the caller can release its ledger reservation.
type RetrySender struct {
	next     EmailSender
	strategy backoff.Strategy
	attempts int
	log      *slog.Logger
}

func NewRetrySender(next EmailSender, attempts int, strategy backoff.Strategy, log *slog.Logger) *RetrySender {
	if attempts < 1 {
		attempts = 3
	}
	if strategy == nil {
		strategy = backoff.Default()
	}
	return &RetrySender{
		next:     next,
		strategy: strategy,
		attempts: attempts,
		log:      log,
	}
}

func (s *RetrySender) SendEmail(ctx context.Context, params SendEmailParams) error {
	var lastErr error
	for attempt := 0; attempt < s.attempts; attempt++ {
		if attempt > 0 {
			s.log.Warn("retrying email send",
				slog.String("to", params.SendTo),
				slog.Int("attempt", attempt+1),
				slog.Any("error", lastErr))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.strategy.NextInterval(attempt)):
			}
		}

		lastErr = s.next.SendEmail(ctx, params)
		if lastErr == nil {
			return nil
		}
		if !IsTransient(lastErr) {
			return lastErr
		}
	}
	return lastErr
}
