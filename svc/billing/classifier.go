package billing

import (
	"log/slog"
	"strings"

	"github.com/launchpilot/launchpilot/pkg/logger"
)

// PriceConfig maps the payment provider's opaque price identifiers to tiers.
// Injected once at process start so tests can substitute fake maps.
type PriceConfig struct {
	StarterMonthly string `env:"STARTER_PRICE_ID_MONTHLY"`
	StarterYearly  string `env:"STARTER_PRICE_ID_YEARLY"`
	StarterTest    string `env:"STARTER_PRICE_ID_TEST"`
	ProMonthly     string `env:"PRO_PRICE_ID_MONTHLY"`
	ProYearly      string `env:"PRO_PRICE_ID_YEARLY"`
	ProTest        string `env:"PRO_PRICE_ID_TEST"`
}

func (c PriceConfig) starterIDs() []string {
	return []string{c.StarterMonthly, c.StarterYearly, c.StarterTest}
}

func (c PriceConfig) proIDs() []string {
	return []string{c.ProMonthly, c.ProYearly, c.ProTest}
}

// Classifier maps price identifiers to tiers. It is total: any input,
// including the empty string, yields a tier without an error.
type Classifier struct {
	prices PriceConfig
	log    *slog.Logger
}

// NewClassifier creates a price classifier. A nil logger falls back to
// slog.Default; the fallback classification path must stay observable.
func NewClassifier(prices PriceConfig, log *slog.Logger) *Classifier {
	if log == nil {
		log = slog.Default()
	}
	return &Classifier{prices: prices, log: log}
}

// Classify resolves a price identifier to a tier. Absent identifiers and the
// reserved sentinel mean free. Unknown identifiers fall through a substring
// heuristic and are logged, since reaching it means the configured price maps
// are out of date.
func (c *Classifier) Classify(priceID string) Tier {
	if priceID == "" || priceID == FreePriceID {
		return TierFree
	}

	for _, id := range c.prices.starterIDs() {
		if id != "" && priceID == id {
			return TierStarter
		}
	}
	for _, id := range c.prices.proIDs() {
		if id != "" && priceID == id {
			return TierPro
		}
	}

	lower := strings.ToLower(priceID)
	switch {
	case strings.Contains(lower, "starter"), strings.Contains(lower, "basic"):
		c.log.Warn("price id matched by substring fallback, update price config",
			slog.String("price_id", priceID), logger.Tier(string(TierStarter)))
		return TierStarter
	case strings.Contains(lower, "pro"), strings.Contains(lower, "premium"):
		c.log.Warn("price id matched by substring fallback, update price config",
			slog.String("price_id", priceID), logger.Tier(string(TierPro)))
		return TierPro
	}

	c.log.Warn("unrecognized price id, defaulting to free tier",
		slog.String("price_id", priceID))
	return TierFree
}
