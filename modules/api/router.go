// Package api exposes the HTTP surface: entitlement and usage queries,
// payment and auth provider webhooks, and secret-protected admin triggers.
package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/launchpilot/launchpilot/svc/billing"
	"github.com/launchpilot/launchpilot/svc/drip"
	"github.com/launchpilot/launchpilot/svc/mailer"
	"github.com/launchpilot/launchpilot/svc/usage"
	"github.com/launchpilot/launchpilot/svc/user"
	"github.com/launchpilot/launchpilot/svc/webhook"
)

var (
	ErrMissingDependency = errors.New("api: missing dependency")
	ErrInvalidConfig     = errors.New("api: invalid configuration")
)

// Config holds router-level configuration.
type Config struct {
	AdminSecret string `env:"ADMIN_API_SECRET,required"`
}

// Deps are the services the router exposes. RateLimit is optional; when set
// it wraps the usage-recording endpoint.
type Deps struct {
	Resolver   *billing.Resolver
	Usage      *usage.Service
	Users      *user.Service
	Drip       *drip.Service
	Provider   webhook.BillingProvider
	Reconciler *webhook.Reconciler
	Renderer   *mailer.Renderer
	Sender     mailer.EmailSender
	RateLimit  func(http.Handler) http.Handler
	Log        *slog.Logger
}

func (d Deps) validate() error {
	if d.Resolver == nil || d.Usage == nil || d.Users == nil || d.Drip == nil ||
		d.Provider == nil || d.Reconciler == nil || d.Renderer == nil || d.Sender == nil {
		return ErrMissingDependency
	}
	return nil
}

// Router assembles the HTTP surface.
func Router(cfg Config, deps Deps) (chi.Router, error) {
	if cfg.AdminSecret == "" {
		return nil, errors.Join(ErrInvalidConfig, errors.New("admin secret is required"))
	}
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if deps.Log == nil {
		deps.Log = slog.Default()
	}

	h := &handlers{deps: deps}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/entitlement", h.entitlement)
	r.Get("/usage", h.usageStats)

	if deps.RateLimit != nil {
		r.With(deps.RateLimit).Post("/usage", h.recordUsage)
	} else {
		r.Post("/usage", h.recordUsage)
	}

	r.Route("/webhooks", func(r chi.Router) {
		r.Post("/payment-provider", h.paymentWebhook)
		r.Post("/auth-provider", h.authWebhook)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(adminOnly(cfg.AdminSecret))
		r.Post("/drip/run", h.runDrip)
		r.Post("/mail/send-test", h.sendTestMail)
	})

	return r, nil
}
