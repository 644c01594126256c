package mailer_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/launchpilot/launchpilot/pkg/backoff"
	"github.com/launchpilot/launchpilot/svc/mailer"
)

type flakySender struct {
	failures int
	calls    int
	err      error
}

func (s *flakySender) SendEmail(context.Context, mailer.SendEmailParams) error {
	s.calls++
	if s.calls <= s.failures {
		return s.err
	}
	return nil
}

func validParams() mailer.SendEmailParams {
	return mailer.SendEmailParams{
		SendTo:   "founder@example.com",
		Subject:  "hello",
		BodyHTML: "<p>hi</p>",
	}
}

func TestRetrySender_RecoversFromTransient(t *testing.T) {
	t.Parallel()

	inner := &flakySender{failures: 2, err: &mailer.SendError{StatusCode: 503}}
	s := mailer.NewRetrySender(inner, 3, backoff.Fixed{Interval: time.Millisecond}, testLogger())

	require.NoError(t, s.SendEmail(context.Background(), validParams()))
	require.Equal(t, 3, inner.calls)
}

func TestRetrySender_GivesUpAfterCap(t *testing.T) {
	t.Parallel()

	inner := &flakySender{failures: 10, err: &mailer.SendError{StatusCode: 429}}
	s := mailer.NewRetrySender(inner, 3, backoff.Fixed{Interval: time.Millisecond}, testLogger())

	err := s.SendEmail(context.Background(), validParams())
	require.ErrorIs(t, err, mailer.ErrSendFailed)
	require.Equal(t, 3, inner.calls)
}

func TestRetrySender_PermanentFailureNotRetried(t *testing.T) {
	t.Parallel()

	inner := &flakySender{failures: 10, err: &mailer.SendError{StatusCode: 422, ErrorCode: 300}}
	s := mailer.NewRetrySender(inner, 5, backoff.Fixed{Interval: time.Millisecond}, testLogger())

	err := s.SendEmail(context.Background(), validParams())
	require.Error(t, err)
	require.Equal(t, 1, inner.calls)
}

func TestRetrySender_ContextCancellation(t *testing.T) {
	t.Parallel()

	inner := &flakySender{failures: 10, err: &mailer.SendError{StatusCode: 500}}
	s := mailer.NewRetrySender(inner, 5, backoff.Fixed{Interval: time.Hour}, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := s.SendEmail(ctx, validParams())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 1, inner.calls)
}
