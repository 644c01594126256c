package main

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/launchpilot/launchpilot/svc/mailer"
)

func TestBuildSender(t *testing.T) {
	t.Parallel()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	base := mailer.Config{
		SenderEmail:   "hello@launchpilot.example",
		SupportEmail:  "support@launchpilot.example",
		InternalEmail: "ops@launchpilot.example",
	}

	t.Run("production without postmark token refuses to start", func(t *testing.T) {
		t.Parallel()

		cfg := base
		cfg.DevMailDir = t.TempDir()
		_, err := buildSender(appConfig{Env: "production"}, cfg, log)
		assert.ErrorIs(t, err, mailer.ErrInvalidConfig)
	})

	t.Run("production with tokens uses retrying postmark sender", func(t *testing.T) {
		t.Parallel()

		cfg := base
		cfg.PostmarkServerToken = "server-token"
		cfg.PostmarkAccountToken = "account-token"
		sender, err := buildSender(appConfig{Env: "production", MailRetryAttempts: 3}, cfg, log)
		require.NoError(t, err)
		assert.IsType(t, &mailer.RetrySender{}, sender)
	})

	t.Run("development writes mail to local files", func(t *testing.T) {
		t.Parallel()

		cfg := base
		cfg.DevMailDir = t.TempDir()
		sender, err := buildSender(appConfig{Env: "development"}, cfg, log)
		require.NoError(t, err)
		assert.IsType(t, &mailer.DevSender{}, sender)
	})
}
