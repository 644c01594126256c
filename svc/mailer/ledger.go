package mailer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/launchpilot/launchpilot/pkg/logger"
)

// Dispatcher sends notifications at most once per idempotency key. The key
// is reserved in the ledger before any dispatch happens; losing the
// reservation race means another delivery of the same logical notification
// already went (or is going) out, so the send is skipped as a success.
type Dispatcher struct {
	store    LedgerStore
	sender   EmailSender
	renderer *Renderer
	log      *slog.Logger
	now      func() time.Time
}

// SendInput describes one logical notification.
type SendInput struct {
	// Key is the caller-constructed idempotency key. Deterministic keys
	// derived from stable identifiers are what make webhook redelivery
	// safe.
	Key       string
	Recipient string
	Template  string
	UserID    string
	Context   RenderContext
	Meta      map[string]string
}

// SendResult reports what happened to a Send call. Exactly one of Sent and
// Skipped is true on success.
type SendResult struct {
	Sent    bool   `json:"sent"`
	Skipped bool   `json:"skipped"`
	Reason  string `json:"reason,omitempty"`
}

type DispatcherOption func(*Dispatcher)

// WithDispatcherClock overrides the ledger timestamp source in tests.
func WithDispatcherClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) { d.now = now }
}

func NewDispatcher(store LedgerStore, sender EmailSender, renderer *Renderer, log *slog.Logger, opts ...DispatcherOption) (*Dispatcher, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if sender == nil {
		return nil, ErrSenderRequired
	}
	if renderer == nil {
		return nil, ErrRendererRequired
	}
	if log == nil {
		log = slog.Default()
	}

	d := &Dispatcher{
		store:    store,
		sender:   sender,
		renderer: renderer,
		log:      log,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Send delivers the notification unless its key was already recorded.
// Duplicate keys resolve to a skipped success, never an error. A dispatch
// failure releases the reservation so a later retry of the same key can go
// through.
func (d *Dispatcher) Send(ctx context.Context, in SendInput) (SendResult, error) {
	if in.Key == "" {
		return SendResult{}, ErrMissingKey
	}
	if in.Template == "" {
		return SendResult{}, fmt.Errorf("%w: template is required", ErrInvalidParams)
	}

	reserved, err := d.store.Reserve(ctx, LedgerEntry{
		Key:       in.Key,
		UserID:    in.UserID,
		Recipient: in.Recipient,
		Template:  in.Template,
		Meta:      in.Meta,
		CreatedAt: d.now().UTC(),
	})
	if err != nil {
		return SendResult{}, errors.Join(ErrSendFailed, err)
	}
	if !reserved {
		d.log.Info("notification already sent, skipping",
			logger.IdempotencyKey(in.Key),
			logger.Template(in.Template))
		return SendResult{Skipped: true, Reason: "duplicate"}, nil
	}

	msg, err := d.renderer.Render(in.Template, in.Context)
	if err != nil {
		d.release(ctx, in.Key)
		return SendResult{}, err
	}

	err = d.sender.SendEmail(ctx, SendEmailParams{
		SendTo:   in.Recipient,
		Subject:  msg.Subject,
		BodyHTML: msg.HTML,
		BodyText: msg.Text,
		Tag:      in.Template,
	})
	if err != nil {
		d.release(ctx, in.Key)
		return SendResult{}, err
	}

	d.log.Info("notification sent",
		logger.IdempotencyKey(in.Key),
		logger.Template(in.Template),
		slog.String("to", in.Recipient))
	return SendResult{Sent: true}, nil
}

// release drops a reservation after a failed dispatch. A failed release is
// logged but not surfaced: the row then blocks retries of that key, which
// errs on the side of not sending twice.
func (d *Dispatcher) release(ctx context.Context, key string) {
	if err := d.store.Release(ctx, key); err != nil {
		d.log.Error("failed to release notification reservation",
			logger.IdempotencyKey(key),
			logger.Error(err))
	}
}
