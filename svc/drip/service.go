package drip

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/launchpilot/launchpilot/pkg/logger"
	"github.com/launchpilot/launchpilot/svc/billing"
	"github.com/launchpilot/launchpilot/svc/mailer"
)

// Service creates drip schedules and runs the periodic delivery sweep.
type Service struct {
	store      Store
	directory  UserDirectory
	resolver   *billing.Resolver
	dispatcher *mailer.Dispatcher
	log        *slog.Logger
	now        func() time.Time
}

type Option func(*Service)

// WithClock overrides the time source in tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, directory UserDirectory, resolver *billing.Resolver, dispatcher *mailer.Dispatcher, log *slog.Logger, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if directory == nil {
		return nil, ErrDirectoryRequired
	}
	if resolver == nil {
		return nil, ErrResolverRequired
	}
	if dispatcher == nil {
		return nil, ErrDispatcherRequired
	}
	if log == nil {
		log = slog.Default()
	}

	s := &Service{
		store:      store,
		directory:  directory,
		resolver:   resolver,
		dispatcher: dispatcher,
		log:        log,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CreateSchedule bulk-inserts one pending entry per fixed offset, anchored
// to the given time (normally account creation). A user gets exactly one
// schedule: redelivered creation events find the existing entries and leave
// them alone.
func (s *Service) CreateSchedule(ctx context.Context, userID string, anchor time.Time) error {
	if userID == "" {
		return ErrMissingUserID
	}

	existing, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("check drip schedule: %w", err)
	}
	if len(existing) > 0 {
		s.log.InfoContext(ctx, "drip schedule already exists, skipping",
			logger.UserID(userID))
		return nil
	}

	now := s.now().UTC()
	entries := make([]Entry, 0, len(Offsets))
	for _, day := range Offsets {
		entries = append(entries, Entry{
			ID:           uuid.New(),
			UserID:       userID,
			DayOffset:    day,
			Template:     mailer.DripTemplate(day),
			ScheduledFor: anchor.UTC().AddDate(0, 0, day),
			CreatedAt:    now,
		})
	}

	if err := s.store.BulkInsert(ctx, entries); err != nil {
		return fmt.Errorf("create drip schedule: %w", err)
	}
	s.log.InfoContext(ctx, "drip schedule created",
		logger.UserID(userID),
		slog.Int("entries", len(entries)))
	return nil
}

// RunReport summarizes one sweep.
type RunReport struct {
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// RunDue delivers every pending entry scheduled at or before now, up to
// limit (DefaultRunLimit when non-positive). The user's tier is resolved at
// send time so content reflects access as of delivery, not scheduling.
//
// Each entry is isolated: one failure is logged and counted, the sweep
// continues. A skipped duplicate still marks the entry sent — that is the
// recovery path for a crash that landed the ledger row but not the SentAt
// update.
func (s *Service) RunDue(ctx context.Context, limit int) (RunReport, error) {
	if limit <= 0 {
		limit = DefaultRunLimit
	}
	now := s.now().UTC()

	due, err := s.store.ListDue(ctx, now, limit)
	if err != nil {
		return RunReport{}, fmt.Errorf("list due drip entries: %w", err)
	}

	report := RunReport{Processed: len(due)}
	for _, entry := range due {
		if err := s.deliver(ctx, entry, now, &report); err != nil {
			report.Failed++
			s.log.ErrorContext(ctx, "drip entry delivery failed",
				logger.UserID(entry.UserID),
				slog.Int("day", entry.DayOffset),
				logger.Error(err))
		}
	}

	s.log.InfoContext(ctx, "drip sweep finished",
		slog.Int("processed", report.Processed),
		slog.Int("sent", report.Sent),
		slog.Int("skipped", report.Skipped),
		slog.Int("failed", report.Failed))
	return report, nil
}

func (s *Service) deliver(ctx context.Context, entry Entry, now time.Time, report *RunReport) error {
	recipient, err := s.directory.Recipient(ctx, entry.UserID)
	if err != nil {
		return fmt.Errorf("resolve recipient: %w", err)
	}

	tier := s.resolver.Resolve(ctx, entry.UserID).Tier

	res, err := s.dispatcher.Send(ctx, mailer.SendInput{
		Key:       fmt.Sprintf("drip_%d_%s", entry.DayOffset, recipient.Email),
		Recipient: recipient.Email,
		Template:  entry.Template,
		UserID:    entry.UserID,
		Context: mailer.RenderContext{
			Name:  recipient.Name,
			Email: recipient.Email,
			Tier:  tier,
			Day:   entry.DayOffset,
		},
	})
	if err != nil {
		return err
	}

	if err := s.store.MarkSent(ctx, entry.ID, now); err != nil {
		return fmt.Errorf("mark entry sent: %w", err)
	}
	if res.Sent {
		report.Sent++
	} else {
		report.Skipped++
	}
	return nil
}
