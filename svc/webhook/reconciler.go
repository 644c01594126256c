package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/launchpilot/launchpilot/pkg/logger"
	"github.com/launchpilot/launchpilot/svc/billing"
	"github.com/launchpilot/launchpilot/svc/mailer"
	"github.com/launchpilot/launchpilot/svc/user"
)

// notice is one notification a transition decided to send. Keys are
// deterministic functions of stable identifiers so webhook redelivery can
// never duplicate a send.
type notice struct {
	key      string
	template string
	internal bool
	context  mailer.RenderContext
}

// Reconciler applies normalized billing events to subscription state and
// queues the notifications each transition calls for. Decisions are made by
// pure functions; Process only loads state, persists and sends.
type Reconciler struct {
	users         user.Store
	subs          billing.Store
	classifier    *billing.Classifier
	dispatcher    *mailer.Dispatcher
	internalEmail string
	log           *slog.Logger
	now           func() time.Time
}

type ReconcilerOption func(*Reconciler)

// WithClock overrides the time source in tests.
func WithClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) { r.now = now }
}

func NewReconciler(users user.Store, subs billing.Store, classifier *billing.Classifier, dispatcher *mailer.Dispatcher, internalEmail string, log *slog.Logger, opts ...ReconcilerOption) (*Reconciler, error) {
	if users == nil || subs == nil {
		return nil, ErrStoreRequired
	}
	if classifier == nil {
		return nil, ErrClassifierRequired
	}
	if dispatcher == nil {
		return nil, ErrDispatcherRequired
	}
	if internalEmail == "" {
		return nil, fmt.Errorf("%w: internal notice email is required", ErrInvalidConfig)
	}
	if log == nil {
		log = slog.Default()
	}

	r := &Reconciler{
		users:         users,
		subs:          subs,
		classifier:    classifier,
		dispatcher:    dispatcher,
		internalEmail: internalEmail,
		log:           log,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Process routes one verified event to its transition. Unrecognized event
// types are logged and ignored; they must never fail the webhook response.
func (r *Reconciler) Process(ctx context.Context, ev *WebhookEvent) error {
	log := r.log.With(
		logger.EventType(string(ev.Type)),
		slog.String("provider_event", ev.ProviderEvent))

	switch ev.Type {
	case EventCheckoutCompleted:
		return r.checkoutCompleted(ctx, ev, log)
	case EventSubscriptionCreated, EventSubscriptionUpdated:
		return r.subscriptionUpserted(ctx, ev, log)
	case EventSubscriptionDeleted:
		return r.subscriptionDeleted(ctx, ev, log)
	case EventPaymentSucceeded, EventPaymentFailed:
		return r.invoicePayment(ctx, ev, log)
	case EventCustomerCreated:
		log.InfoContext(ctx, "customer created",
			slog.String("customer_id", ev.CustomerID))
		return nil
	case EventPaymentIntentSettled:
		log.InfoContext(ctx, "payment intent settled",
			slog.String("receipt_email", ev.Email),
			slog.String("amount", ev.Amount))
		return nil
	default:
		log.InfoContext(ctx, "ignoring unrecognized event")
		return nil
	}
}

// checkoutCompleted links the provider customer to the internal user. The
// link is created only when absent, so redelivery is a no-op. One-time
// purchases never touch entitlement.
func (r *Reconciler) checkoutCompleted(ctx context.Context, ev *WebhookEvent, log *slog.Logger) error {
	if ev.Mode != ModeSubscription {
		u, err := r.users.GetByCustomerID(ctx, ev.CustomerID)
		if err != nil {
			log.InfoContext(ctx, "one-time checkout for unknown customer",
				slog.String("customer_id", ev.CustomerID))
			return nil
		}
		log.InfoContext(ctx, "one-time checkout completed",
			logger.UserID(u.ID),
			slog.String("amount", ev.Amount))
		return nil
	}

	if ev.CustomerID == "" || ev.UserID == "" {
		log.WarnContext(ctx, "checkout completed without link metadata",
			slog.String("customer_id", ev.CustomerID),
			logger.UserID(ev.UserID))
		return nil
	}

	u, err := r.users.GetByID(ctx, ev.UserID)
	if err != nil {
		return fmt.Errorf("load user %s: %w", ev.UserID, err)
	}
	if u.CustomerID != "" {
		return nil // already linked
	}
	if err := r.users.LinkCustomer(ctx, ev.UserID, ev.CustomerID); err != nil {
		return fmt.Errorf("link customer: %w", err)
	}
	log.InfoContext(ctx, "customer linked",
		logger.UserID(ev.UserID),
		slog.String("customer_id", ev.CustomerID))
	return nil
}

// subscriptionUpserted is the create/update transition: the free record is
// superseded, the subscription record upserted, and a tier change notifies
// the user and the internal address.
func (r *Reconciler) subscriptionUpserted(ctx context.Context, ev *WebhookEvent, log *slog.Logger) error {
	u, err := r.resolveUser(ctx, ev)
	if err != nil {
		return err
	}

	existing, err := r.subs.GetBySubscriptionID(ctx, ev.SubscriptionID)
	if err != nil && !errors.Is(err, billing.ErrRecordNotFound) {
		return fmt.Errorf("load subscription %s: %w", ev.SubscriptionID, err)
	}

	rec, notices := decideSubscriptionUpsert(ev, u, existing, r.classifier.Classify, r.now().UTC())

	if err := r.subs.DeleteFreeByUser(ctx, u.ID); err != nil {
		return fmt.Errorf("delete free record: %w", err)
	}
	if err := r.subs.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return r.send(ctx, u, notices, log)
}

// decideSubscriptionUpsert is the pure create/update decision. A plan
// change is only reported when a record for this subscription id already
// existed; a brand-new subscription announces itself through the invoice
// payment notification instead.
func decideSubscriptionUpsert(ev *WebhookEvent, u *user.User, existing *billing.Record, classify func(string) billing.Tier, now time.Time) (billing.Record, []notice) {
	rec := billing.Record{
		ID:               uuid.New(),
		UserID:           u.ID,
		CustomerID:       ev.CustomerID,
		SubscriptionID:   ev.SubscriptionID,
		PriceID:          ev.PriceID,
		Status:           billing.Status(ev.Status),
		CurrentPeriodEnd: ev.PeriodEnd,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	newTier := classify(ev.PriceID)
	if existing == nil {
		return rec, nil
	}

	rec.ID = existing.ID
	rec.CreatedAt = existing.CreatedAt

	oldTier := classify(existing.PriceID)
	if oldTier == newTier {
		return rec, nil
	}

	keyBase := fmt.Sprintf("sub_%s_planchange_%s_%s", ev.SubscriptionID, oldTier, newTier)
	renderCtx := mailer.RenderContext{
		Name:    u.Name,
		Email:   u.Email,
		Tier:    newTier,
		OldTier: oldTier,
		NewTier: newTier,
	}
	return rec, []notice{
		{key: keyBase + "_user", template: mailer.TemplatePlanChanged, context: renderCtx},
		{key: keyBase + "_internal", template: mailer.TemplateInternalNotice, internal: true, context: mailer.RenderContext{
			Email: u.Email,
			Note:  fmt.Sprintf("plan changed %s -> %s", oldTier, newTier),
		}},
	}
}

// subscriptionDeleted removes the record and notifies both sides. The
// record is loaded first because it is the most reliable path back to the
// user once the provider stops sending metadata.
func (r *Reconciler) subscriptionDeleted(ctx context.Context, ev *WebhookEvent, log *slog.Logger) error {
	if existing, err := r.subs.GetBySubscriptionID(ctx, ev.SubscriptionID); err == nil && ev.UserID == "" {
		ev.UserID = existing.UserID
	}
	u, err := r.resolveUser(ctx, ev)
	if err != nil {
		return err
	}

	if err := r.subs.DeleteBySubscriptionID(ctx, ev.SubscriptionID); err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}

	keyBase := fmt.Sprintf("sub_%s_canceled", ev.SubscriptionID)
	notices := []notice{
		{key: keyBase + "_user", template: mailer.TemplateSubscriptionCanceled, context: mailer.RenderContext{
			Name:  u.Name,
			Email: u.Email,
			Tier:  billing.TierFree,
		}},
		{key: keyBase + "_internal", template: mailer.TemplateInternalNotice, internal: true, context: mailer.RenderContext{
			Email: u.Email,
			Note:  "subscription canceled",
		}},
	}
	return r.send(ctx, u, notices, log)
}

// invoicePayment handles both payment outcomes; they differ only in
// template and key suffix.
func (r *Reconciler) invoicePayment(ctx context.Context, ev *WebhookEvent, log *slog.Logger) error {
	if existing, err := r.subs.GetBySubscriptionID(ctx, ev.SubscriptionID); err == nil && ev.UserID == "" {
		ev.UserID = existing.UserID
	}
	u, err := r.resolveUser(ctx, ev)
	if err != nil {
		return err
	}

	tier := r.classifier.Classify(ev.PriceID)

	var notices []notice
	if ev.Type == EventPaymentSucceeded {
		keyBase := fmt.Sprintf("invoice_%s_payment_succeeded", ev.InvoiceID)
		notices = []notice{
			{key: keyBase + "_user", template: mailer.TemplateSubscriptionActive, context: mailer.RenderContext{
				Name:   u.Name,
				Email:  u.Email,
				Tier:   tier,
				Amount: ev.Amount,
			}},
			{key: keyBase + "_internal", template: mailer.TemplateInternalNotice, internal: true, context: mailer.RenderContext{
				Email:  u.Email,
				Amount: ev.Amount,
				Note:   "new sale",
			}},
		}
	} else {
		keyBase := fmt.Sprintf("invoice_%s_payment_failed", ev.InvoiceID)
		reason := ev.Reason
		if reason == "" {
			reason = ev.Status
		}
		notices = []notice{
			{key: keyBase + "_user", template: mailer.TemplatePaymentFailed, context: mailer.RenderContext{
				Name:   u.Name,
				Email:  u.Email,
				Tier:   tier,
				Reason: reason,
			}},
			{key: keyBase + "_internal", template: mailer.TemplateInternalNotice, internal: true, context: mailer.RenderContext{
				Email:  u.Email,
				Reason: reason,
				Note:   "payment failed",
			}},
		}
	}
	return r.send(ctx, u, notices, log)
}

// resolveUser finds the internal user for an event, preferring explicit
// checkout metadata over the customer link.
func (r *Reconciler) resolveUser(ctx context.Context, ev *WebhookEvent) (*user.User, error) {
	if ev.UserID != "" {
		u, err := r.users.GetByID(ctx, ev.UserID)
		if err == nil {
			return u, nil
		}
	}
	if ev.CustomerID != "" {
		u, err := r.users.GetByCustomerID(ctx, ev.CustomerID)
		if err == nil {
			return u, nil
		}
	}
	return nil, fmt.Errorf("%w: user_id=%q customer_id=%q", ErrUserNotResolved, ev.UserID, ev.CustomerID)
}

func (r *Reconciler) send(ctx context.Context, u *user.User, notices []notice, log *slog.Logger) error {
	for _, n := range notices {
		recipient := u.Email
		userID := u.ID
		if n.internal {
			recipient = r.internalEmail
			userID = ""
		}
		res, err := r.dispatcher.Send(ctx, mailer.SendInput{
			Key:       n.key,
			Recipient: recipient,
			Template:  n.template,
			UserID:    userID,
			Context:   n.context,
		})
		if err != nil {
			return fmt.Errorf("send %s: %w", n.key, err)
		}
		if res.Skipped {
			log.InfoContext(ctx, "notification suppressed by ledger",
				logger.IdempotencyKey(n.key))
		}
	}
	return nil
}
