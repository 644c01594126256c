package api_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/launchpilot/launchpilot/modules/api"
	"github.com/launchpilot/launchpilot/svc/billing"
	"github.com/launchpilot/launchpilot/svc/drip"
	"github.com/launchpilot/launchpilot/svc/mailer"
	"github.com/launchpilot/launchpilot/svc/usage"
	"github.com/launchpilot/launchpilot/svc/user"
	"github.com/launchpilot/launchpilot/svc/webhook"
)

const adminSecret = "test-admin-secret"

type recordingSender struct {
	mu   sync.Mutex
	sent []mailer.SendEmailParams
}

func (s *recordingSender) SendEmail(_ context.Context, params mailer.SendEmailParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, params)
	return nil
}

// fakeProvider accepts any payload carrying the magic signature and decodes
// the body as an already-normalized event.
type fakeProvider struct{}

func (fakeProvider) ParseWebhook(_ context.Context, payload []byte, signature string) (*webhook.WebhookEvent, error) {
	if signature != "valid" {
		return nil, webhook.ErrSignatureVerification
	}
	var ev webhook.WebhookEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, webhook.ErrMalformedPayload
	}
	return &ev, nil
}

type fixture struct {
	server *httptest.Server
	users  *user.MemoryStore
	subs   *billing.MemoryStore
	sender *recordingSender
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	prices := billing.PriceConfig{StarterMonthly: "pri_starter_m", ProMonthly: "pri_pro_m"}

	f := &fixture{
		users:  user.NewMemoryStore(),
		subs:   billing.NewMemoryStore(),
		sender: &recordingSender{},
	}

	classifier := billing.NewClassifier(prices, log)
	resolver, err := billing.NewResolver(f.subs, classifier, billing.DefaultCatalog(), log)
	require.NoError(t, err)

	usageSvc, err := usage.NewService(usage.NewMemoryStore(), resolver, log)
	require.NoError(t, err)

	renderer, err := mailer.NewRenderer("https://launchpilot.example", prices)
	require.NoError(t, err)
	dispatcher, err := mailer.NewDispatcher(mailer.NewMemoryLedgerStore(), f.sender, renderer, log)
	require.NoError(t, err)

	dripSvc, err := drip.NewService(drip.NewMemoryStore(), user.NewDirectory(f.users), resolver, dispatcher, log)
	require.NoError(t, err)

	userSvc, err := user.NewService(f.users, f.subs, dispatcher, dripSvc, log)
	require.NoError(t, err)

	reconciler, err := webhook.NewReconciler(f.users, f.subs, classifier, dispatcher,
		"ops@launchpilot.example", log)
	require.NoError(t, err)

	router, err := api.Router(api.Config{AdminSecret: adminSecret}, api.Deps{
		Resolver:   resolver,
		Usage:      usageSvc,
		Users:      userSvc,
		Drip:       dripSvc,
		Provider:   fakeProvider{},
		Reconciler: reconciler,
		Renderer:   renderer,
		Sender:     f.sender,
		Log:        log,
	})
	require.NoError(t, err)

	f.server = httptest.NewServer(router)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, f.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func TestEntitlementEndpoint(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	resp, _ := f.do(t, http.MethodGet, "/entitlement", "", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := f.do(t, http.MethodGet, "/entitlement?userId=user-1", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var ent struct {
		Tier      string `json:"tier"`
		IsActive  bool   `json:"isActive"`
		IsPaid    bool   `json:"isPaid"`
		Limit     int    `json:"limit"`
		CanExport bool   `json:"canExport"`
	}
	require.NoError(t, json.Unmarshal(body, &ent))
	require.Equal(t, "free", ent.Tier)
	require.False(t, ent.IsActive)
	require.False(t, ent.IsPaid)
	require.Equal(t, 2, ent.Limit)
	require.False(t, ent.CanExport)
}

func TestUsageRoundTrip(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	resp, body := f.do(t, http.MethodPost, "/usage",
		`{"userId":"user-1","problem":"cold start","strategy":"content"}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var rec struct {
		Used int `json:"used"`
	}
	require.NoError(t, json.Unmarshal(body, &rec))
	require.Equal(t, 1, rec.Used)

	resp, body = f.do(t, http.MethodGet, "/usage?userId=user-1", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats struct {
		Used  int    `json:"used"`
		Limit int    `json:"limit"`
		Tier  string `json:"tier"`
	}
	require.NoError(t, json.Unmarshal(body, &stats))
	require.Equal(t, 1, stats.Used)
	require.Equal(t, 2, stats.Limit)
	require.Equal(t, "free", stats.Tier)
}

func TestUsageValidation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	resp, _ := f.do(t, http.MethodPost, "/usage", `{"problem":"x"}`, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/usage", `not json`, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/usage", `{"userId":"u","tier":"platinum"}`, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUsageTestTierNotPersisted(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	resp, body := f.do(t, http.MethodPost, "/usage",
		`{"userId":"user-1","problem":"qa","strategy":"qa","tier":"test"}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var rec struct {
		Used int `json:"used"`
	}
	require.NoError(t, json.Unmarshal(body, &rec))
	require.Zero(t, rec.Used)
}

func TestPaymentWebhook(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	require.NoError(t, f.users.Upsert(context.Background(), user.User{
		ID: "user-1", Email: "founder@example.com",
	}))
	require.NoError(t, f.users.LinkCustomer(context.Background(), "user-1", "ctm_1"))

	event := `{"Type":"subscription_created","SubscriptionID":"sub_1","CustomerID":"ctm_1","PriceID":"pri_pro_m","Status":"active"}`

	// Bad signature: rejected before any processing.
	resp, _ := f.do(t, http.MethodPost, "/webhooks/payment-provider", event,
		map[string]string{"Paddle-Signature": "bogus"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	records, err := f.subs.ListByUser(context.Background(), "user-1")
	require.NoError(t, err)
	require.Empty(t, records)

	resp, body := f.do(t, http.MethodPost, "/webhooks/payment-provider", event,
		map[string]string{"Paddle-Signature": "valid"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"received":true}`, string(body))

	records, err = f.subs.ListByUser(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, records, 1)

	// Unresolvable user: 500 so the provider redelivers.
	orphan := `{"Type":"subscription_created","SubscriptionID":"sub_2","CustomerID":"ctm_ghost","PriceID":"pri_pro_m"}`
	resp, _ = f.do(t, http.MethodPost, "/webhooks/payment-provider", orphan,
		map[string]string{"Paddle-Signature": "valid"})
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestAuthWebhook(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	resp, body := f.do(t, http.MethodPost, "/webhooks/auth-provider",
		`{"type":"user.created","data":{"id":"user-1","email":"founder@example.com"}}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"received":true}`, string(body))

	u, err := f.users.GetByID(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, "founder@example.com", u.Email)

	// Missing email on creation is a validation error.
	resp, _ = f.do(t, http.MethodPost, "/webhooks/auth-provider",
		`{"type":"user.created","data":{"id":"user-2"}}`, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAdminEndpointsRequireSecret(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	resp, _ := f.do(t, http.MethodPost, "/admin/drip/run", "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/admin/drip/run", "",
		map[string]string{api.AdminSecretHeader: "wrong"})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body := f.do(t, http.MethodPost, "/admin/drip/run", "",
		map[string]string{api.AdminSecretHeader: adminSecret})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var report struct {
		Processed int `json:"processed"`
	}
	require.NoError(t, json.Unmarshal(body, &report))
	require.Zero(t, report.Processed)
}

func TestSendTestMailBypassesLedger(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	headers := map[string]string{api.AdminSecretHeader: adminSecret}
	body := `{"to":"qa@example.com","template":"welcome","name":"QA","tier":"free"}`

	resp, _ := f.do(t, http.MethodPost, "/admin/mail/send-test", body, headers)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = f.do(t, http.MethodPost, "/admin/mail/send-test", body, headers)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Repeat sends are the point of the QA endpoint.
	require.Len(t, f.sender.sent, 2)

	resp, _ = f.do(t, http.MethodPost, "/admin/mail/send-test",
		`{"to":"qa@example.com","template":"nope"}`, headers)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
