package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
)

// PaddleConfig holds the webhook-side Paddle configuration.
type PaddleConfig struct {
	WebhookSecret string `env:"PADDLE_WEBHOOK_SECRET,required"`
	Environment   string `env:"PADDLE_ENVIRONMENT" envDefault:"production"`
}

// PaddleProvider implements BillingProvider for Paddle.
type PaddleProvider struct {
	verifier *paddle.WebhookVerifier
}

func NewPaddleProvider(cfg PaddleConfig) (*PaddleProvider, error) {
	if cfg.WebhookSecret == "" {
		return nil, fmt.Errorf("%w: webhook secret is required", ErrInvalidConfig)
	}
	return &PaddleProvider{
		verifier: paddle.NewWebhookVerifier(cfg.WebhookSecret),
	}, nil
}

// ParseWebhook verifies the Paddle-Signature header and normalizes the
// event payload.
func (p *PaddleProvider) ParseWebhook(ctx context.Context, payload []byte, signature string) (*WebhookEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/webhook", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build verification request: %w", err)
	}
	req.Header.Set("Paddle-Signature", signature)

	valid, err := p.verifier.Verify(req)
	if err != nil {
		return nil, errors.Join(ErrSignatureVerification, err)
	}
	if !valid {
		return nil, ErrSignatureVerification
	}

	var raw struct {
		EventID    string         `json:"event_id"`
		EventType  string         `json:"event_type"`
		OccurredAt string         `json:"occurred_at"`
		Data       map[string]any `json:"data"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, errors.Join(ErrMalformedPayload, err)
	}

	ev := &WebhookEvent{
		Type:          mapPaddleEventType(raw.EventType),
		ProviderEvent: raw.EventType,
		EventID:       raw.EventID,
		Raw:           raw.Data,
	}
	if t, err := time.Parse(time.RFC3339, raw.OccurredAt); err == nil {
		ev.OccurredAt = t
	}

	switch {
	case strings.HasPrefix(raw.EventType, "subscription."):
		p.fillSubscription(ev, raw.Data)
	case strings.HasPrefix(raw.EventType, "transaction."):
		p.fillTransaction(ev, raw.Data)
	case strings.HasPrefix(raw.EventType, "customer."):
		ev.CustomerID, _ = raw.Data["id"].(string)
		ev.Email, _ = raw.Data["email"].(string)
	}

	return ev, nil
}

func (p *PaddleProvider) fillSubscription(ev *WebhookEvent, data map[string]any) {
	ev.SubscriptionID, _ = data["id"].(string)
	ev.CustomerID, _ = data["customer_id"].(string)
	ev.Status, _ = data["status"].(string)
	ev.UserID = customDataString(data, "user_id")
	ev.PriceID = firstItemPriceID(data)

	if period, ok := data["current_billing_period"].(map[string]any); ok {
		if ends, ok := period["ends_at"].(string); ok {
			if t, err := time.Parse(time.RFC3339, ends); err == nil {
				ev.PeriodEnd = &t
			}
		}
	}
}

func (p *PaddleProvider) fillTransaction(ev *WebhookEvent, data map[string]any) {
	ev.InvoiceID, _ = data["id"].(string)
	if invoiceID, ok := data["invoice_id"].(string); ok && invoiceID != "" {
		ev.InvoiceID = invoiceID
	}
	ev.SubscriptionID, _ = data["subscription_id"].(string)
	ev.CustomerID, _ = data["customer_id"].(string)
	ev.Status, _ = data["status"].(string)
	ev.UserID = customDataString(data, "user_id")
	ev.Email = customDataString(data, "email")
	ev.PriceID = firstItemPriceID(data)
	ev.Amount = transactionAmount(data)
	ev.Reason = paymentFailureReason(data)

	if ev.Type == EventCheckoutCompleted {
		if ev.SubscriptionID != "" {
			ev.Mode = ModeSubscription
		} else {
			ev.Mode = ModeOneTime
		}
	}
}

func mapPaddleEventType(providerEvent string) EventType {
	switch providerEvent {
	case "transaction.completed":
		return EventCheckoutCompleted
	case "subscription.created":
		return EventSubscriptionCreated
	case "subscription.updated", "subscription.resumed":
		return EventSubscriptionUpdated
	case "subscription.canceled":
		return EventSubscriptionDeleted
	case "transaction.payment_succeeded":
		return EventPaymentSucceeded
	case "transaction.payment_failed":
		return EventPaymentFailed
	case "customer.created":
		return EventCustomerCreated
	case "transaction.paid":
		return EventPaymentIntentSettled
	default:
		return EventUnknown
	}
}

func customDataString(data map[string]any, key string) string {
	custom, ok := data["custom_data"].(map[string]any)
	if !ok {
		return ""
	}
	v, _ := custom[key].(string)
	return v
}

// firstItemPriceID pulls the price id of the first line item. Multi-item
// subscriptions are not sold; the first item is the plan.
func firstItemPriceID(data map[string]any) string {
	items, ok := data["items"].([]any)
	if !ok || len(items) == 0 {
		return ""
	}
	item, ok := items[0].(map[string]any)
	if !ok {
		return ""
	}
	if price, ok := item["price"].(map[string]any); ok {
		if id, ok := price["id"].(string); ok {
			return id
		}
	}
	id, _ := item["price_id"].(string)
	return id
}

// transactionAmount formats the grand total. Paddle reports totals in the
// currency's smallest unit as a string.
func transactionAmount(data map[string]any) string {
	details, ok := data["details"].(map[string]any)
	if !ok {
		return ""
	}
	totals, ok := details["totals"].(map[string]any)
	if !ok {
		return ""
	}
	raw, _ := totals["grand_total"].(string)
	if raw == "" {
		raw, _ = totals["total"].(string)
	}
	currency, _ := totals["currency_code"].(string)
	if currency == "" {
		currency, _ = data["currency_code"].(string)
	}

	cents, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return strings.TrimSpace(currency + " " + raw)
	}
	return strings.TrimSpace(fmt.Sprintf("%s %.2f", currency, float64(cents)/100))
}

func paymentFailureReason(data map[string]any) string {
	payments, ok := data["payments"].([]any)
	if !ok {
		return ""
	}
	for i := len(payments) - 1; i >= 0; i-- {
		payment, ok := payments[i].(map[string]any)
		if !ok {
			continue
		}
		if detail, ok := payment["error_code"].(string); ok && detail != "" {
			return detail
		}
	}
	return ""
}
