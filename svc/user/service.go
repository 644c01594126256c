package user

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/launchpilot/launchpilot/pkg/logger"
	"github.com/launchpilot/launchpilot/svc/billing"
	"github.com/launchpilot/launchpilot/svc/drip"
	"github.com/launchpilot/launchpilot/svc/mailer"
)

// Service syncs auth-provider account events into the local mirror and runs
// the onboarding pipeline for new accounts.
type Service struct {
	store      Store
	subs       billing.Store
	dispatcher *mailer.Dispatcher
	drip       *drip.Service
	log        *slog.Logger
	now        func() time.Time
}

type Option func(*Service)

// WithClock overrides the time source in tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, subs billing.Store, dispatcher *mailer.Dispatcher, dripSvc *drip.Service, log *slog.Logger, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if subs == nil {
		return nil, ErrBillingStoreRequired
	}
	if dispatcher == nil {
		return nil, ErrDispatcherRequired
	}
	if dripSvc == nil {
		return nil, ErrDripRequired
	}
	if log == nil {
		log = slog.Default()
	}

	s := &Service{
		store:      store,
		subs:       subs,
		dispatcher: dispatcher,
		drip:       dripSvc,
		log:        log,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// HandleEvent routes an auth-provider webhook event. Unknown event types
// are logged and ignored so a new upstream event can never break the sync.
func (s *Service) HandleEvent(ctx context.Context, ev Event) error {
	switch ev.Type {
	case EventUserCreated:
		return s.created(ctx, ev.Data)
	case EventUserUpdated:
		return s.updated(ctx, ev.Data)
	case EventUserDeleted:
		return s.deleted(ctx, ev.Data)
	default:
		s.log.InfoContext(ctx, "ignoring unknown auth event",
			logger.EventType(ev.Type))
		return nil
	}
}

// created mirrors the account, grants the free tier, sends the welcome
// email and creates the drip schedule. The welcome key and the free
// subscription upsert make redelivery of the same event harmless.
func (s *Service) created(ctx context.Context, data EventData) error {
	if data.ID == "" || data.Email == "" {
		return fmt.Errorf("%w: user id and email are required", ErrInvalidEvent)
	}

	now := s.now().UTC()
	if err := s.store.Upsert(ctx, User{
		ID:        data.ID,
		Email:     data.Email,
		Name:      data.Name,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		return fmt.Errorf("mirror user: %w", err)
	}

	if err := s.subs.Upsert(ctx, billing.NewFreeRecord(data.ID, now)); err != nil {
		return fmt.Errorf("create free subscription: %w", err)
	}

	if _, err := s.dispatcher.Send(ctx, mailer.SendInput{
		Key:       fmt.Sprintf("welcome_%s", data.Email),
		Recipient: data.Email,
		Template:  mailer.TemplateWelcome,
		UserID:    data.ID,
		Context: mailer.RenderContext{
			Name:  data.Name,
			Email: data.Email,
			Tier:  billing.TierFree,
		},
	}); err != nil {
		return fmt.Errorf("send welcome email: %w", err)
	}

	if err := s.drip.CreateSchedule(ctx, data.ID, now); err != nil {
		return err
	}

	s.log.InfoContext(ctx, "user onboarded",
		logger.UserID(data.ID),
		slog.String("email", data.Email))
	return nil
}

func (s *Service) updated(ctx context.Context, data EventData) error {
	if data.ID == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidEvent)
	}

	existing, err := s.store.GetByID(ctx, data.ID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}

	// A partial payload must not blank the address every notification and
	// drip send relies on. An empty name is a deliberate clear; an empty
	// email never is.
	if data.Email != "" {
		existing.Email = data.Email
	}
	existing.Name = data.Name
	existing.UpdatedAt = s.now().UTC()
	if err := s.store.Upsert(ctx, *existing); err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}

// deleted removes the mirror row; subscriptions, usage events and drip
// entries go with it via storage-level cascades.
func (s *Service) deleted(ctx context.Context, data EventData) error {
	if data.ID == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidEvent)
	}
	if err := s.store.Delete(ctx, data.ID); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	s.log.InfoContext(ctx, "user deleted", logger.UserID(data.ID))
	return nil
}

// Directory adapts a Store to the drip sweep's recipient lookup. It wraps
// the store rather than the service so the drip service can be constructed
// first.
type Directory struct {
	store Store
}

func NewDirectory(store Store) Directory {
	return Directory{store: store}
}

func (d Directory) Recipient(ctx context.Context, userID string) (drip.Recipient, error) {
	u, err := d.store.GetByID(ctx, userID)
	if err != nil {
		return drip.Recipient{}, err
	}
	return drip.Recipient{ID: u.ID, Email: u.Email, Name: u.Name}, nil
}
