package drip_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/launchpilot/launchpilot/svc/billing"
	"github.com/launchpilot/launchpilot/svc/drip"
	"github.com/launchpilot/launchpilot/svc/mailer"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []mailer.SendEmailParams
	fail map[string]error // keyed by recipient
}

func (s *recordingSender) SendEmail(_ context.Context, params mailer.SendEmailParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[params.SendTo]; err != nil {
		return err
	}
	s.sent = append(s.sent, params)
	return nil
}

type staticDirectory map[string]drip.Recipient

func (d staticDirectory) Recipient(_ context.Context, userID string) (drip.Recipient, error) {
	r, ok := d[userID]
	if !ok {
		return drip.Recipient{}, errors.New("unknown user")
	}
	return r, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	svc    *drip.Service
	store  *drip.MemoryStore
	sender *recordingSender
	ledger *mailer.MemoryLedgerStore
	now    *time.Time
}

func newFixture(t *testing.T, dir staticDirectory) *fixture {
	t.Helper()

	log := testLogger()
	resolver, err := billing.NewResolver(
		billing.NewMemoryStore(),
		billing.NewClassifier(billing.PriceConfig{}, log),
		billing.DefaultCatalog(),
		log)
	require.NoError(t, err)

	renderer, err := mailer.NewRenderer("https://launchpilot.example", billing.PriceConfig{})
	require.NoError(t, err)

	sender := &recordingSender{fail: map[string]error{}}
	ledger := mailer.NewMemoryLedgerStore()
	dispatcher, err := mailer.NewDispatcher(ledger, sender, renderer, log)
	require.NoError(t, err)

	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	f := &fixture{store: drip.NewMemoryStore(), sender: sender, ledger: ledger, now: &now}

	f.svc, err = drip.NewService(f.store, dir, resolver, dispatcher, log,
		drip.WithClock(func() time.Time { return *f.now }))
	require.NoError(t, err)
	return f
}

func TestCreateScheduleOffsets(t *testing.T) {
	t.Parallel()

	f := newFixture(t, staticDirectory{})
	anchor := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	require.NoError(t, f.svc.CreateSchedule(context.Background(), "user-1", anchor))

	entries, err := f.store.ListByUser(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, entries, 11)

	var offsets []int
	for _, e := range entries {
		offsets = append(offsets, e.DayOffset)
		require.True(t, e.Pending())
		require.Equal(t, anchor.AddDate(0, 0, e.DayOffset), e.ScheduledFor)
	}
	require.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 9, 11, 13}, offsets)

	// A second creation for the same user must not duplicate the schedule.
	require.NoError(t, f.svc.CreateSchedule(context.Background(), "user-1", anchor))
	entries, err = f.store.ListByUser(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, entries, 11)
}

func TestRunDueSendsOnlyElapsedOffsets(t *testing.T) {
	t.Parallel()

	f := newFixture(t, staticDirectory{
		"user-1": {ID: "user-1", Email: "founder@example.com", Name: "Ada"},
	})

	anchor := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, f.svc.CreateSchedule(context.Background(), "user-1", anchor))

	// Eight days after the anchor, offsets 0 through 7 are due.
	*f.now = anchor.AddDate(0, 0, 8)
	report, err := f.svc.RunDue(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, 8, report.Processed)
	require.Equal(t, 8, report.Sent)
	require.Zero(t, report.Failed)
	require.Len(t, f.sender.sent, 8)

	entries, err := f.store.ListByUser(context.Background(), "user-1")
	require.NoError(t, err)
	var pending []int
	for _, e := range entries {
		if e.Pending() {
			pending = append(pending, e.DayOffset)
		}
	}
	require.Equal(t, []int{9, 11, 13}, pending)

	// A second sweep at the same time has nothing left to do.
	report, err = f.svc.RunDue(context.Background(), 0)
	require.NoError(t, err)
	require.Zero(t, report.Processed)
	require.Len(t, f.sender.sent, 8)
}

func TestRunDueFarFutureSendsAllOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t, staticDirectory{
		"user-1": {ID: "user-1", Email: "founder@example.com"},
	})

	anchor := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, f.svc.CreateSchedule(context.Background(), "user-1", anchor))

	*f.now = anchor.AddDate(1, 0, 0)
	report, err := f.svc.RunDue(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, 11, report.Sent)

	report, err = f.svc.RunDue(context.Background(), 0)
	require.NoError(t, err)
	require.Zero(t, report.Processed)
	require.Len(t, f.sender.sent, 11)
}

func TestRunDueIsolatesPerItemFailures(t *testing.T) {
	t.Parallel()

	f := newFixture(t, staticDirectory{
		"user-ok":  {ID: "user-ok", Email: "ok@example.com"},
		"user-bad": {ID: "user-bad", Email: "bad@example.com"},
	})
	f.sender.fail["bad@example.com"] = &mailer.SendError{StatusCode: 500, Message: "down"}

	anchor := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, f.svc.CreateSchedule(context.Background(), "user-ok", anchor))
	require.NoError(t, f.svc.CreateSchedule(context.Background(), "user-bad", anchor))

	*f.now = anchor.AddDate(0, 0, 1)
	report, err := f.svc.RunDue(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, 4, report.Processed)
	require.Equal(t, 2, report.Sent)
	require.Equal(t, 2, report.Failed)

	// Failed entries stay pending and their reservations were released, so
	// they go out once the transport recovers.
	delete(f.sender.fail, "bad@example.com")
	report, err = f.svc.RunDue(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, 2, report.Sent)
}

func TestRunDueRespectsLimit(t *testing.T) {
	t.Parallel()

	f := newFixture(t, staticDirectory{
		"user-1": {ID: "user-1", Email: "founder@example.com"},
	})

	anchor := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, f.svc.CreateSchedule(context.Background(), "user-1", anchor))

	*f.now = anchor.AddDate(1, 0, 0)
	report, err := f.svc.RunDue(context.Background(), 5)
	require.NoError(t, err)
	require.Equal(t, 5, report.Processed)
	require.Equal(t, 5, report.Sent)
}

func TestRunDueMarksSentOnDuplicateKey(t *testing.T) {
	t.Parallel()

	f := newFixture(t, staticDirectory{
		"user-1": {ID: "user-1", Email: "founder@example.com"},
	})

	anchor := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, f.svc.CreateSchedule(context.Background(), "user-1", anchor))

	// Simulate a crash after the ledger row landed but before the entry was
	// marked: the key exists, the entry is still pending.
	reserved, err := f.ledger.Reserve(context.Background(), mailer.LedgerEntry{
		Key: "drip_0_founder@example.com",
	})
	require.NoError(t, err)
	require.True(t, reserved)

	*f.now = anchor.AddDate(0, 0, 1)
	report, err := f.svc.RunDue(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, 1, report.Skipped)
	require.Equal(t, 1, report.Sent) // the day-1 entry

	entries, err := f.store.ListByUser(context.Background(), "user-1")
	require.NoError(t, err)
	for _, e := range entries {
		if e.DayOffset <= 1 {
			require.False(t, e.Pending(), "offset %d must converge to sent", e.DayOffset)
		}
	}
	// Only the day-1 email physically went out.
	require.Len(t, f.sender.sent, 1)
}
