package rule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexus-promotion/internal/service/promotion/domain"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func activeOffer(rules *domain.RuleGroup) *domain.Offer {
	return &domain.Offer{
		ID:     "o1",
		Name:   "Spend more",
		Type:   domain.OfferTypePercentDiscount,
		Scope:  domain.ScopeCart,
		Status: domain.OfferStatusActive,
		CurrentVersion: &domain.OfferVersion{
			ID:      "o1-v1",
			Version: 1,
			Benefit: domain.Benefit{Percent: &domain.PercentBenefit{Percent: 10}},
			Rules:   rules,
		},
	}
}

func cartOf(lines ...domain.LineItem) *domain.Cart {
	return &domain.Cart{ID: "cart-1", Lines: lines}
}

func TestEvaluateEligibility_MissingConditionMentionsThresholdAndCurrent(t *testing.T) {
	rules := domain.All(domain.RuleNode{Rule: &domain.Rule{
		Field: "cart.subtotal", Operator: domain.OpGte, Value: 500, Label: "Cart subtotal",
	}})
	cart := cartOf(domain.LineItem{ID: "l1", SKU: "A", UnitPrice: 100, Quantity: 3})

	got := NewEngine().EvaluateEligibility(activeOffer(rules), cart, nil, &domain.EvalContext{Now: now})

	assert.False(t, got.Eligible)
	assert.False(t, got.Blocked)
	require.Len(t, got.MissingConditions, 1)
	assert.Contains(t, got.MissingConditions[0], "500")
	assert.Contains(t, got.MissingConditions[0], "300")
}

func TestEvaluateGroup_LogicIsCaseInsensitive(t *testing.T) {
	scope := &Scope{
		Cart: cartOf(domain.LineItem{ID: "l1", SKU: "A", UnitPrice: 100, Quantity: 1}),
		User: &domain.User{ID: "u1", Tags: []string{"vip"}},
	}
	group := &domain.RuleGroup{Logic: "any", Children: []domain.RuleNode{
		domain.Leaf("cart.subtotal", domain.OpGte, 1000),
		domain.Leaf("user.tags", domain.OpIn, []any{"vip"}),
	}}

	ok, missing := EvaluateGroup(group, scope)
	assert.True(t, ok)
	assert.Empty(t, missing)

	assert.True(t, domain.Logic(" All ").Valid())
	assert.Equal(t, domain.LogicAll, domain.Logic("").Canonical())
	assert.False(t, domain.Logic("xor").Valid())
}

func TestEvaluateGroup_AllAndAny(t *testing.T) {
	scope := &Scope{
		Cart: cartOf(domain.LineItem{ID: "l1", SKU: "A", UnitPrice: 50, Quantity: 2, Category: "Shoes"}),
		User: &domain.User{ID: "u1", Tags: []string{"vip"}},
	}

	ok, missing := EvaluateGroup(domain.All(
		domain.Leaf("cart.item_count", domain.OpGte, 2),
		domain.Nested(domain.Any(
			domain.Leaf("user.tags", domain.OpIn, []any{"gold"}),
			domain.Leaf("user.order_count", domain.OpGte, 3),
		)),
	), scope)

	assert.False(t, ok)
	require.Len(t, missing, 1)
	assert.Contains(t, missing[0], "one of: ")
	assert.Contains(t, missing[0], " or ")

	ok, missing = EvaluateGroup(domain.Any(
		domain.Leaf("user.tags", domain.OpIn, []any{"vip"}),
		domain.Leaf("cart.subtotal", domain.OpGte, 1000),
	), scope)
	assert.True(t, ok)
	assert.Empty(t, missing)

	// ALL 会评估全部子节点，收集所有失败
	ok, missing = EvaluateGroup(domain.All(
		domain.Leaf("cart.subtotal", domain.OpGte, 1000),
		domain.Leaf("user.order_count", domain.OpGte, 1),
	), scope)
	assert.False(t, ok)
	assert.Len(t, missing, 2)
}

func TestCheckBasicConstraints(t *testing.T) {
	start := now.Add(time.Hour)
	end := now.Add(-time.Hour)

	tests := []struct {
		name   string
		mutate func(o *domain.Offer)
		user   *domain.User
		want   string
	}{
		{"paused", func(o *domain.Offer) { o.Status = domain.OfferStatusPaused }, nil, "offer is paused"},
		{"no version", func(o *domain.Offer) { o.CurrentVersion = nil }, nil, "no active version"},
		{"not started", func(o *domain.Offer) { o.StartsAt = &start }, nil, "offer starts at"},
		{"ended", func(o *domain.Offer) { o.EndsAt = &end }, nil, "offer ended at"},
		{"channel", func(o *domain.Offer) { o.Channels = []string{"app"} }, nil, "channel web is not eligible"},
		{"region", func(o *domain.Offer) { o.Regions = []string{"north"} }, nil, "region south is not eligible"},
		{"usage limit", func(o *domain.Offer) { o.UsageLimit, o.UsageCount = 10, 10 }, nil, "usage limit"},
		{"per user", func(o *domain.Offer) { o.PerUserLimit = 1 }, &domain.User{ID: "u1", OfferRedemptions: map[string]int{"o1": 1}}, "per-user limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			offer := activeOffer(nil)
			tt.mutate(offer)
			reasons := CheckBasicConstraints(offer, tt.user, &domain.EvalContext{Now: now, Channel: "web", Region: "south"})
			require.NotEmpty(t, reasons)
			assert.Contains(t, reasons[0], tt.want)
		})
	}

	assert.Empty(t, CheckBasicConstraints(activeOffer(nil), nil, &domain.EvalContext{Now: now}))
}

func TestEvaluate_BlockedSkipsRules(t *testing.T) {
	offer := activeOffer(domain.All(domain.Leaf("cart.subtotal", domain.OpGte, 500)))
	offer.Status = domain.OfferStatusDraft

	got := NewEngine().EvaluateEligibility(offer, cartOf(), nil, &domain.EvalContext{Now: now})

	assert.False(t, got.Eligible)
	assert.True(t, got.Blocked)
	assert.Equal(t, []string{"offer is draft"}, got.MissingConditions)
}

func TestEvaluate_Expression(t *testing.T) {
	engine := NewEngine()
	cart := cartOf(domain.LineItem{ID: "l1", SKU: "A", UnitPrice: 60, Quantity: 2, Category: "Toys"})
	ctx := &domain.EvalContext{Now: now, Channel: "app"}

	offer := activeOffer(nil)
	offer.CurrentVersion.Expression = `cart.subtotal >= 100 && context.channel == "app" && derived.category_totals["toys"] > 50`
	got := engine.EvaluateEligibility(offer, cart, nil, ctx)
	assert.True(t, got.Eligible, got.MissingConditions)

	offer.CurrentVersion.Expression = `cart.subtotal > 1000`
	got = engine.EvaluateEligibility(offer, cart, nil, ctx)
	assert.False(t, got.Eligible)
	assert.Contains(t, got.MissingConditions[0], "expression not satisfied")

	offer.CurrentVersion.Expression = `cart.subtotal >`
	got = engine.EvaluateEligibility(offer, cart, nil, ctx)
	assert.False(t, got.Eligible)
	assert.Contains(t, got.MissingConditions[0], "could not be evaluated")

	offer.CurrentVersion.Expression = `cart.subtotal + 1`
	got = engine.EvaluateEligibility(offer, cart, nil, ctx)
	assert.False(t, got.Eligible)
}

func TestEvaluateLineItemEligibility(t *testing.T) {
	offer := activeOffer(nil)
	offer.CurrentVersion.LineRules = domain.All(domain.Leaf("line.brand", domain.OpEq, "acme"))
	cart := cartOf(
		domain.LineItem{ID: "l1", SKU: "A", UnitPrice: 10, Quantity: 1, Brand: "ACME"},
		domain.LineItem{ID: "l2", SKU: "B", UnitPrice: 10, Quantity: 1, Brand: "Other"},
	)
	engine := NewEngine()
	ctx := &domain.EvalContext{Now: now}

	assert.True(t, engine.EvaluateLineItemEligibility(offer, cart.Lines[0], cart, nil, ctx).Eligible)
	got := engine.EvaluateLineItemEligibility(offer, cart.Lines[1], cart, nil, ctx)
	assert.False(t, got.Eligible)
	assert.Equal(t, []string{"line.brand must be acme (current: Other)"}, got.MissingConditions)
}

func TestEvaluateLineItemEligibility_AppliesExpression(t *testing.T) {
	offer := activeOffer(nil)
	offer.CurrentVersion.Expression = `line.unit_price >= 50.0`
	cart := cartOf(
		domain.LineItem{ID: "l1", SKU: "A", UnitPrice: 80, Quantity: 1},
		domain.LineItem{ID: "l2", SKU: "B", UnitPrice: 20, Quantity: 1},
	)
	engine := NewEngine()
	ctx := &domain.EvalContext{Now: now}

	got := engine.EvaluateLineItemEligibility(offer, cart.Lines[0], cart, nil, ctx)
	assert.True(t, got.Eligible, got.MissingConditions)

	got = engine.EvaluateLineItemEligibility(offer, cart.Lines[1], cart, nil, ctx)
	assert.False(t, got.Eligible)
	require.Len(t, got.MissingConditions, 1)
	assert.Contains(t, got.MissingConditions[0], "expression not satisfied")
}
