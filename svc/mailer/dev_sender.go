package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DevSender writes outgoing mail to local files instead of dispatching it.
// Used in development so the full pipeline, templates included, can be
// exercised without a Postmark account.
type DevSender struct {
	dir string
	log *slog.Logger
}

func NewDevSender(dir string, log *slog.Logger) (*DevSender, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: DevMailDir is required", ErrInvalidConfig)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create mail dir: %v", ErrInvalidConfig, err)
	}
	return &DevSender{dir: dir, log: log}, nil
}

func (s *DevSender) SendEmail(_ context.Context, params SendEmailParams) error {
	if err := params.Validate(); err != nil {
		return err
	}

	name := fmt.Sprintf("%s_%s.html",
		time.Now().UTC().Format("20060102T150405.000"),
		sanitizeFilename(params.SendTo))
	path := filepath.Join(s.dir, name)

	var b strings.Builder
	fmt.Fprintf(&b, "<!-- To: %s -->\n", params.SendTo)
	fmt.Fprintf(&b, "<!-- Subject: %s -->\n", params.Subject)
	fmt.Fprintf(&b, "<!-- Tag: %s -->\n", params.Tag)
	b.WriteString(params.BodyHTML)

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return &SendError{Message: fmt.Sprintf("write mail file: %v", err)}
	}

	s.log.Info("mail written to file",
		slog.String("to", params.SendTo),
		slog.String("subject", params.Subject),
		slog.String("path", path))
	return nil
}

func sanitizeFilename(email string) string {
	r := strings.NewReplacer("@", "_at_", "/", "_", "\\", "_", ":", "_", " ", "_")
	return r.Replace(email)
}
