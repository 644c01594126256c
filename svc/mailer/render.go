package mailer

import (
	"fmt"
	html "html/template"
	"net/url"
	"strings"
	text "text/template"

	"github.com/launchpilot/launchpilot/svc/billing"
)

// Template names used across the notification pipeline. Drip templates are
// derived from the day offset via DripTemplate.
const (
	TemplateWelcome              = "welcome"
	TemplatePlanChanged          = "plan_changed"
	TemplateSubscriptionActive   = "subscription_active"
	TemplateSubscriptionCanceled = "subscription_canceled"
	TemplatePaymentFailed        = "payment_failed"
	TemplateInternalNotice       = "internal_notice"
)

// DripTemplate returns the template name for a drip day offset.
func DripTemplate(day int) string {
	return fmt.Sprintf("drip_day_%d", day)
}

// Message is a fully rendered email.
type Message struct {
	Subject string
	HTML    string
	Text    string
}

// RenderContext carries everything a template may reference. Templates are
// pure functions of this record; rendering never touches storage.
type RenderContext struct {
	Name    string
	Email   string
	Tier    billing.Tier
	OldTier billing.Tier
	NewTier billing.Tier
	Amount  string
	Reason  string
	Day     int
	Note    string
}

// UpgradeOption is one upsell link rendered into user-facing templates.
type UpgradeOption struct {
	Tier  billing.Tier
	Label string
	URL   string
}

// Renderer renders named email templates. Deterministic given its inputs:
// the same name and context always produce the same message.
type Renderer struct {
	baseURL string
	prices  billing.PriceConfig
	htmls   map[string]*html.Template
	texts   map[string]*text.Template
}

// renderData is the value handed to every template.
type renderData struct {
	RenderContext
	Upsell  []UpgradeOption
	BaseURL string
}

type templateDef struct {
	subject string // text/template source, context-aware
	body    string // shared source for html and text variants
}

const upsellHTML = `{{if .Upsell}}<hr><p>Get more out of LaunchPilot:</p><ul>{{range .Upsell}}<li><a href="{{.URL}}">{{.Label}}</a></li>{{end}}</ul>{{end}}`

var templateDefs = map[string]templateDef{
	TemplateWelcome: {
		subject: `Welcome to LaunchPilot, {{or .Name "founder"}}!`,
		body: `<p>Hi {{or .Name "there"}},</p>
<p>Your account is ready. Describe the problem you are solving and LaunchPilot will draft your first go-to-market strategy in minutes.</p>
<p><a href="{{.BaseURL}}/app">Open your dashboard</a></p>` + upsellHTML,
	},
	TemplatePlanChanged: {
		subject: `Your plan is now {{.NewTier}}`,
		body: `<p>Hi {{or .Name "there"}},</p>
<p>Your subscription changed from <b>{{.OldTier}}</b> to <b>{{.NewTier}}</b>. The new limits apply immediately.</p>` + upsellHTML,
	},
	TemplateSubscriptionActive: {
		subject: `Payment received — you're all set`,
		body: `<p>Hi {{or .Name "there"}},</p>
<p>We received your payment{{if .Amount}} of {{.Amount}}{{end}}. Your subscription is active.</p>
<p><a href="{{.BaseURL}}/app">Back to your strategies</a></p>`,
	},
	TemplateSubscriptionCanceled: {
		subject: `Your subscription was canceled`,
		body: `<p>Hi {{or .Name "there"}},</p>
<p>Your subscription has been canceled. You keep free-tier access, and you can come back any time.</p>` + upsellHTML,
	},
	TemplatePaymentFailed: {
		subject: `Payment failed — action needed`,
		body: `<p>Hi {{or .Name "there"}},</p>
<p>We could not process your payment{{if .Reason}} ({{.Reason}}){{end}}. Please update your payment method to keep your plan.</p>
<p><a href="{{.BaseURL}}/app/billing">Update payment method</a></p>`,
	},
	TemplateInternalNotice: {
		subject: `[launchpilot] {{or .Note "event notice"}}`,
		body: `<p>{{or .Note "Event notice"}}</p>
<p>User: {{or .Email "n/a"}}{{if .Amount}} · Amount: {{.Amount}}{{end}}{{if .Reason}} · Reason: {{.Reason}}{{end}}</p>`,
	},
}

// dripDefs holds the fixed day-indexed onboarding sequence. Missing days
// fall back to a generic one-liner at render time instead of erroring.
var dripDefs = map[int]templateDef{
	0: {
		subject: `Day 1: your first strategy`,
		body: `<p>Hi {{or .Name "there"}},</p>
<p>The fastest way to get value from LaunchPilot: paste your elevator pitch and generate a strategy. It takes under two minutes.</p>`,
	},
	1: {
		subject: `Day 2: sharpen the problem statement`,
		body:    `<p>A vague problem makes a vague strategy. Rewrite yours as "X struggles with Y when Z" and regenerate — the difference is usually dramatic.</p>`,
	},
	2: {
		subject: `Day 3: pick one channel`,
		body:    `<p>Your strategy lists several acquisition channels. Commit to the single cheapest one to test this week and ignore the rest for now.</p>`,
	},
	3: {
		subject: `Day 4: talk to five people`,
		body:    `<p>Strategies are hypotheses. Five short conversations with people who have the problem will validate or kill yours faster than any dashboard.</p>`,
	},
	5: {
		subject: `Day 6: the follow-up review`,
		body:    `<p>It has been a few days since your first strategy. Open it again and mark what you actually tried — LaunchPilot will suggest the next move.</p>` + upsellHTML,
	},
	7: {
		subject: `Day 8: one week in`,
		body:    `<p>A week of signal beats a month of planning. If your channel test produced anything, feed the numbers back into a fresh strategy.</p>` + upsellHTML,
	},
	13: {
		subject: `Two weeks with LaunchPilot`,
		body: `<p>Hi {{or .Name "there"}},</p>
<p>Two weeks in. If LaunchPilot helped you move, a paid plan removes the monthly cap and unlocks follow-up strategies.</p>` + upsellHTML,
	},
}

const dripFallbackSubject = `A tip from LaunchPilot (day {{.Day}})`
const dripFallbackBody = `<p>Keep the momentum going — open LaunchPilot and generate your next strategy: <a href="{{.BaseURL}}/app">{{.BaseURL}}/app</a></p>`

// NewRenderer parses all templates up front so a malformed template fails at
// startup, not on the first send.
func NewRenderer(baseURL string, prices billing.PriceConfig) (*Renderer, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("%w: base URL is required", ErrInvalidConfig)
	}

	r := &Renderer{
		baseURL: strings.TrimRight(baseURL, "/"),
		prices:  prices,
		htmls:   make(map[string]*html.Template),
		texts:   make(map[string]*text.Template),
	}

	add := func(name string, def templateDef) error {
		h, err := html.New(name).Parse(def.body)
		if err != nil {
			return fmt.Errorf("parse template %s: %w", name, err)
		}
		t, err := text.New(name + "_subject").Parse(def.subject)
		if err != nil {
			return fmt.Errorf("parse subject %s: %w", name, err)
		}
		r.htmls[name] = h
		r.texts[name] = t
		return nil
	}

	for name, def := range templateDefs {
		if err := add(name, def); err != nil {
			return nil, err
		}
	}
	for day, def := range dripDefs {
		if err := add(DripTemplate(day), def); err != nil {
			return nil, err
		}
	}
	if err := add("drip_fallback", templateDef{subject: dripFallbackSubject, body: dripFallbackBody}); err != nil {
		return nil, err
	}

	return r, nil
}

// Render produces a message for the named template. Unknown drip day indexes
// resolve to the generic fallback; any other unknown name is an error.
func (r *Renderer) Render(name string, ctx RenderContext) (Message, error) {
	resolved := name
	if _, ok := r.htmls[resolved]; !ok {
		if strings.HasPrefix(name, "drip_day_") {
			resolved = "drip_fallback"
		} else {
			return Message{}, fmt.Errorf("%w: %q", ErrUnknownTemplate, name)
		}
	}

	data := renderData{
		RenderContext: ctx,
		Upsell:        r.upsellFor(ctx.Tier),
		BaseURL:       r.baseURL,
	}

	var subject strings.Builder
	if err := r.texts[resolved].Execute(&subject, data); err != nil {
		return Message{}, fmt.Errorf("render subject %s: %w", resolved, err)
	}
	var body strings.Builder
	if err := r.htmls[resolved].Execute(&body, data); err != nil {
		return Message{}, fmt.Errorf("render body %s: %w", resolved, err)
	}

	return Message{
		Subject: subject.String(),
		HTML:    body.String(),
		Text:    htmlToText(body.String()),
	}, nil
}

// upsellFor builds the tier-dependent upgrade links. Free users see both
// upgrade paths, starter users see only pro, paid pro users see none.
func (r *Renderer) upsellFor(tier billing.Tier) []UpgradeOption {
	switch tier {
	case billing.TierFree:
		return []UpgradeOption{
			r.upgradeOption(billing.TierStarter, r.prices.StarterMonthly, "Upgrade to Starter"),
			r.upgradeOption(billing.TierPro, r.prices.ProMonthly, "Upgrade to Pro"),
		}
	case billing.TierStarter:
		return []UpgradeOption{
			r.upgradeOption(billing.TierPro, r.prices.ProMonthly, "Upgrade to Pro"),
		}
	default:
		return nil
	}
}

func (r *Renderer) upgradeOption(tier billing.Tier, priceID, label string) UpgradeOption {
	q := url.Values{}
	q.Set("tier", string(tier))
	if priceID != "" {
		q.Set("price_id", priceID)
	}
	return UpgradeOption{
		Tier:  tier,
		Label: label,
		URL:   r.baseURL + "/upgrade?" + q.Encode(),
	}
}

var htmlReplacer = strings.NewReplacer(
	"</p>", "\n\n", "<br>", "\n", "<br/>", "\n", "<br />", "\n",
	"</li>", "\n", "<hr>", "\n---\n", "</ul>", "\n",
)

// htmlToText derives the plain-text alternative from the rendered HTML. This
// keeps the two bodies from drifting apart.
func htmlToText(s string) string {
	s = htmlReplacer.Replace(s)
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
