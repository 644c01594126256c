package billing

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Feature represents a plan-specific capability flag.
type Feature string

const (
	FeatureFollowups       Feature = "followups"
	FeatureExport          Feature = "export"
	FeaturePrioritySupport Feature = "priority_support"
)

// Plan describes what a tier is entitled to.
type Plan struct {
	Tier         Tier      `yaml:"tier"`
	Name         string    `yaml:"name"`
	MonthlyQuota int       `yaml:"monthly_quota"`
	ChatRooms    []string  `yaml:"chat_rooms"`
	Features     []Feature `yaml:"features"`
}

// HasFeature reports whether the plan includes the given capability.
func (p Plan) HasFeature(f Feature) bool {
	for _, have := range p.Features {
		if have == f {
			return true
		}
	}
	return false
}

// Catalog holds the static plan configuration per tier.
type Catalog map[Tier]Plan

// CatalogSource loads the plan catalog at startup.
type CatalogSource interface {
	Load(ctx context.Context) (Catalog, error)
}

// LoadCatalog loads and validates the catalog from a source. This is the
// startup entry point; a nil source is a wiring bug and fails loudly.
func LoadCatalog(ctx context.Context, src CatalogSource) (Catalog, error) {
	if src == nil {
		return nil, ErrCatalogSourceRequired
	}
	return src.Load(ctx)
}

// ValidateCatalog ensures every tier is configured. A missing plan must stop
// the process at startup instead of silently defaulting at resolution time.
func ValidateCatalog(c Catalog) error {
	for _, tier := range AllTiers {
		plan, ok := c[tier]
		if !ok {
			return errors.Join(ErrInvalidCatalog,
				fmt.Errorf("%w: %s", ErrPlanNotConfigured, tier))
		}
		if plan.Tier != tier {
			return errors.Join(ErrInvalidCatalog,
				fmt.Errorf("catalog key %s does not match plan tier %s", tier, plan.Tier))
		}
		if plan.MonthlyQuota < 0 {
			return errors.Join(ErrInvalidCatalog,
				fmt.Errorf("plan %s has negative monthly quota", tier))
		}
	}
	return nil
}

// YAMLCatalogSource loads the catalog from a YAML file on disk.
type YAMLCatalogSource struct {
	Path string
}

func (s YAMLCatalogSource) Load(_ context.Context) (Catalog, error) {
	raw, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadCatalog, err)
	}

	var plans []Plan
	if err := yaml.Unmarshal(raw, &plans); err != nil {
		return nil, errors.Join(ErrFailedToLoadCatalog, err)
	}

	catalog := make(Catalog, len(plans))
	for _, p := range plans {
		catalog[p.Tier] = p
	}
	if err := ValidateCatalog(catalog); err != nil {
		return nil, err
	}
	return catalog, nil
}

// StaticCatalogSource serves a fixed catalog, used by tests and as the
// fallback when no catalog file is configured.
type StaticCatalogSource struct {
	Plans Catalog
}

func (s StaticCatalogSource) Load(_ context.Context) (Catalog, error) {
	if err := ValidateCatalog(s.Plans); err != nil {
		return nil, err
	}
	return s.Plans, nil
}

// DefaultCatalog returns the built-in plan configuration.
func DefaultCatalog() Catalog {
	return Catalog{
		TierFree: {
			Tier:         TierFree,
			Name:         "Free",
			MonthlyQuota: 2,
			ChatRooms:    []string{"general"},
		},
		TierStarter: {
			Tier:         TierStarter,
			Name:         "Starter",
			MonthlyQuota: 15,
			ChatRooms:    []string{"general", "founders"},
			Features:     []Feature{FeatureFollowups, FeatureExport},
		},
		TierPro: {
			Tier:         TierPro,
			Name:         "Pro",
			MonthlyQuota: 60,
			ChatRooms:    []string{"general", "founders", "pro-lounge"},
			Features:     []Feature{FeatureFollowups, FeatureExport, FeaturePrioritySupport},
		},
		TierTest: {
			Tier:         TierTest,
			Name:         "Internal QA",
			MonthlyQuota: 1000,
			ChatRooms:    []string{"general"},
		},
	}
}
