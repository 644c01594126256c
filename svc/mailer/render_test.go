package mailer_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/launchpilot/launchpilot/svc/billing"
	"github.com/launchpilot/launchpilot/svc/mailer"
)

func TestRenderer_UpsellByTier(t *testing.T) {
	t.Parallel()

	r := testRenderer(t)

	free, err := r.Render(mailer.TemplateWelcome, mailer.RenderContext{Tier: billing.TierFree})
	require.NoError(t, err)
	require.Contains(t, free.HTML, "tier=starter")
	require.Contains(t, free.HTML, "tier=pro")
	require.Contains(t, free.HTML, "price_id=pri_starter_m")
	require.Contains(t, free.HTML, "price_id=pri_pro_m")

	starter, err := r.Render(mailer.TemplateWelcome, mailer.RenderContext{Tier: billing.TierStarter})
	require.NoError(t, err)
	require.NotContains(t, starter.HTML, "tier=starter")
	require.Contains(t, starter.HTML, "tier=pro")

	pro, err := r.Render(mailer.TemplateWelcome, mailer.RenderContext{Tier: billing.TierPro})
	require.NoError(t, err)
	require.NotContains(t, pro.HTML, "/upgrade?")
}

func TestRenderer_Deterministic(t *testing.T) {
	t.Parallel()

	r := testRenderer(t)
	ctx := mailer.RenderContext{Name: "Grace", Tier: billing.TierStarter}

	a, err := r.Render(mailer.TemplatePlanChanged, mailer.RenderContext{
		Name: ctx.Name, Tier: ctx.Tier,
		OldTier: billing.TierStarter, NewTier: billing.TierPro,
	})
	require.NoError(t, err)
	b, err := r.Render(mailer.TemplatePlanChanged, mailer.RenderContext{
		Name: ctx.Name, Tier: ctx.Tier,
		OldTier: billing.TierStarter, NewTier: billing.TierPro,
	})
	require.NoError(t, err)

	require.Equal(t, a, b)
	require.Contains(t, a.Subject, "pro")
	require.Contains(t, a.HTML, "starter")
}

func TestRenderer_DripFallback(t *testing.T) {
	t.Parallel()

	r := testRenderer(t)

	// Day 4 has no dedicated content; the generic tip must render instead.
	msg, err := r.Render(mailer.DripTemplate(4), mailer.RenderContext{Day: 4})
	require.NoError(t, err)
	require.Contains(t, msg.Subject, "day 4")
	require.NotEmpty(t, msg.HTML)
	require.NotEmpty(t, msg.Text)

	// Day 0 has dedicated content and must not fall back.
	day0, err := r.Render(mailer.DripTemplate(0), mailer.RenderContext{Day: 0})
	require.NoError(t, err)
	require.Contains(t, day0.Subject, "first strategy")
}

func TestRenderer_UnknownTemplate(t *testing.T) {
	t.Parallel()

	r := testRenderer(t)
	_, err := r.Render("newsletter", mailer.RenderContext{})
	require.ErrorIs(t, err, mailer.ErrUnknownTemplate)
}

func TestRenderer_TextAlternative(t *testing.T) {
	t.Parallel()

	r := testRenderer(t)
	msg, err := r.Render(mailer.TemplateSubscriptionActive, mailer.RenderContext{
		Name: "Grace", Amount: "$29.00", Tier: billing.TierPro,
	})
	require.NoError(t, err)
	require.Contains(t, msg.Text, "$29.00")
	require.NotContains(t, msg.Text, "<p>")
	require.NotContains(t, msg.Text, "<a")
}
