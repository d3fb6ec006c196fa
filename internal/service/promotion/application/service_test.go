package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/trace/noop"

	"nexus-promotion/internal/service/promotion/domain"
	"nexus-promotion/internal/service/promotion/domain/conflict"
	"nexus-promotion/internal/service/promotion/infrastructure"
)

var fixedNow = time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)

func activeOffer(id string, priority int, typ domain.OfferType, scope domain.OfferScope, b domain.Benefit) *domain.Offer {
	return &domain.Offer{
		ID:             id,
		Name:           id,
		Type:           typ,
		Scope:          scope,
		Status:         domain.OfferStatusActive,
		Priority:       priority,
		StackingPolicy: domain.StackingStackable,
		CurrentVersion: &domain.OfferVersion{ID: id + "-v1", Version: 1, Benefit: b},
	}
}

func bogoTees() *domain.Offer {
	o := activeOffer("bogo-tees", 1, domain.OfferTypeBuyXGetY, domain.ScopeItem, domain.Benefit{
		BuyXGetY: &domain.BuyXGetYBenefit{BuyQty: 1, GetQty: 1},
	})
	o.CurrentVersion.Filters = domain.QualifyingFilters{IncludeCategories: []string{"tees"}}
	return o
}

func cartTen() *domain.Offer {
	return activeOffer("cart-10", 2, domain.OfferTypePercentDiscount, domain.ScopeCart, domain.Benefit{
		Percent: &domain.PercentBenefit{Percent: 10},
	})
}

func teeCart() *domain.Cart {
	return &domain.Cart{ID: "cart-1", Lines: []domain.LineItem{
		{ID: "l1", SKU: "TEE-1", UnitPrice: 100, Quantity: 2, Category: "tees"},
	}}
}

type fixture struct {
	svc    *PromotionService
	store  *infrastructure.MemoryAssignmentStore
	events *infrastructure.MemoryEventLog
}

func newFixture(offers []*domain.Offer, exps []*domain.Experiment, budget conflict.BudgetOptions) *fixture {
	catalog := infrastructure.NewMemoryCatalog(&infrastructure.Catalog{Offers: offers, Experiments: exps})
	store := infrastructure.NewMemoryAssignmentStore()
	events := infrastructure.NewMemoryEventLog()
	svc := NewPromotionService(catalog, catalog, store, events, budget, noop.NewTracerProvider().Tracer("test"))
	svc.now = func() time.Time { return fixedNow }
	return &fixture{svc: svc, store: store, events: events}
}

// 两个实验：exp-vip 的唯一有效分组暴露 vip-15；exp-hidden 的有效分组不暴露 hidden-20
func gatingExperiments() []*domain.Experiment {
	return []*domain.Experiment{
		{
			ID: "exp-vip", Status: domain.ExperimentRunning, TrafficPercent: 100,
			Variants: []domain.Variant{
				{ID: "control", Weight: 0, IsControl: true},
				{ID: "treatment", Weight: 1, OfferIDs: []string{"vip-15"}},
			},
		},
		{
			ID: "exp-hidden", Status: domain.ExperimentRunning, TrafficPercent: 100,
			Variants: []domain.Variant{
				{ID: "control", Weight: 1, IsControl: true},
				{ID: "treatment", Weight: 0, OfferIDs: []string{"hidden-20"}},
			},
		},
	}
}

func TestEvaluateCart_AppliesAndResolves(t *testing.T) {
	f := newFixture([]*domain.Offer{cartTen(), bogoTees()}, nil, conflict.BudgetOptions{})

	resp, err := f.svc.EvaluateCart(context.Background(), &EvaluateCartRequest{Cart: teeCart()})
	require.NoError(t, err)

	assert.Equal(t, []string{"bogo-tees", "cart-10"}, resp.Evaluation.ApplicableOffers)
	require.Len(t, resp.Resolution.Accepted, 2)
	assert.Empty(t, resp.Resolution.Rejected)
	assert.InDelta(t, 120.0, resp.Resolution.TotalDiscount, 1e-9)
	assert.InDelta(t, 80.0, resp.FinalTotal, 1e-9)
	assert.Empty(t, resp.Assignments)
}

func TestEvaluateCart_RequiresCart(t *testing.T) {
	f := newFixture(nil, nil, conflict.BudgetOptions{})
	_, err := f.svc.EvaluateCart(context.Background(), &EvaluateCartRequest{})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestEvaluateCart_RejectsOutOfRangeLines(t *testing.T) {
	f := newFixture([]*domain.Offer{bogoTees()}, nil, conflict.BudgetOptions{})

	cases := map[string]domain.LineItem{
		"huge quantity":  {ID: "l1", SKU: "TEE-1", UnitPrice: 1, Quantity: 1_000_000_000, Category: "tees"},
		"zero quantity":  {ID: "l1", SKU: "TEE-1", UnitPrice: 100, Category: "tees"},
		"negative price": {ID: "l1", SKU: "TEE-1", UnitPrice: -5, Quantity: 1, Category: "tees"},
	}
	for name, line := range cases {
		t.Run(name, func(t *testing.T) {
			cart := &domain.Cart{ID: "cart-1", Lines: []domain.LineItem{line}}
			_, err := f.svc.EvaluateCart(context.Background(), &EvaluateCartRequest{Cart: cart})
			assert.ErrorIs(t, err, domain.ErrInvalidRequest)
		})
	}
}

func TestEvaluateCart_CartLimitsAreConfigurable(t *testing.T) {
	catalog := infrastructure.NewMemoryCatalog(&infrastructure.Catalog{Offers: []*domain.Offer{bogoTees()}})
	svc := NewPromotionService(catalog, catalog, infrastructure.NewMemoryAssignmentStore(), nil,
		conflict.BudgetOptions{}, noop.NewTracerProvider().Tracer("test"), WithCartLimits(1, 2))
	svc.now = func() time.Time { return fixedNow }

	_, err := svc.EvaluateCart(context.Background(), &EvaluateCartRequest{Cart: teeCart()})
	require.NoError(t, err)

	tooMany := teeCart()
	tooMany.Lines[0].Quantity = 3
	_, err = svc.EvaluateCart(context.Background(), &EvaluateCartRequest{Cart: tooMany})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	twoLines := teeCart()
	twoLines.Lines = append(twoLines.Lines, domain.LineItem{ID: "l2", SKU: "TEE-2", UnitPrice: 50, Quantity: 1})
	_, err = svc.EvaluateCart(context.Background(), &EvaluateCartRequest{Cart: twoLines})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestEvaluateCart_RequestBudgetOverridesDefault(t *testing.T) {
	f := newFixture([]*domain.Offer{cartTen(), bogoTees()}, nil, conflict.BudgetOptions{MaxOffers: 5})

	resp, err := f.svc.EvaluateCart(context.Background(), &EvaluateCartRequest{
		Cart:   teeCart(),
		Budget: &conflict.BudgetOptions{MaxOffers: 1},
	})
	require.NoError(t, err)

	require.Len(t, resp.Resolution.Accepted, 1)
	assert.Equal(t, "bogo-tees", resp.Resolution.Accepted[0].OfferID)
	require.Len(t, resp.Resolution.Rejected, 1)
	assert.Equal(t, domain.RejectMaxOffersReached, resp.Resolution.Rejected[0].Reason)
}

func TestEvaluateCart_UpdateBudgetAppliesToLaterRequests(t *testing.T) {
	f := newFixture([]*domain.Offer{cartTen(), bogoTees()}, nil, conflict.BudgetOptions{})
	f.svc.UpdateBudget(conflict.BudgetOptions{MaxDiscountAmount: 50, Mode: conflict.BudgetReject})

	resp, err := f.svc.EvaluateCart(context.Background(), &EvaluateCartRequest{Cart: teeCart()})
	require.NoError(t, err)

	require.Len(t, resp.Resolution.Accepted, 1)
	assert.Equal(t, "cart-10", resp.Resolution.Accepted[0].OfferID)
	require.Len(t, resp.Resolution.Rejected, 1)
	assert.Equal(t, domain.RejectBudgetExceeded, resp.Resolution.Rejected[0].Reason)
	assert.InDelta(t, 20.0, resp.Resolution.TotalDiscount, 1e-9)
}

func TestEvaluateCart_ChannelFromBaggage(t *testing.T) {
	appOnly := cartTen()
	appOnly.Channels = []string{"app"}
	f := newFixture([]*domain.Offer{appOnly}, nil, conflict.BudgetOptions{})

	member, err := baggage.NewMember("channel", "app")
	require.NoError(t, err)
	bag, err := baggage.New(member)
	require.NoError(t, err)
	ctx := baggage.ContextWithBaggage(context.Background(), bag)

	resp, err := f.svc.EvaluateCart(ctx, &EvaluateCartRequest{Cart: teeCart()})
	require.NoError(t, err)
	assert.Equal(t, []string{"cart-10"}, resp.Evaluation.ApplicableOffers)

	resp, err = f.svc.EvaluateCart(context.Background(), &EvaluateCartRequest{
		Cart:    teeCart(),
		Context: &domain.EvalContext{Channel: "web"},
	})
	require.NoError(t, err)
	assert.Empty(t, resp.Evaluation.ApplicableOffers)
}

func TestEvaluateCart_ExperimentGatingAndExposure(t *testing.T) {
	vip := cartTen()
	vip.ID = "vip-15"
	vip.CurrentVersion.Benefit.Percent.Percent = 15
	hidden := cartTen()
	hidden.ID = "hidden-20"
	hidden.CurrentVersion.Benefit.Percent.Percent = 20
	f := newFixture([]*domain.Offer{vip, hidden, bogoTees()}, gatingExperiments(), conflict.BudgetOptions{})

	resp, err := f.svc.EvaluateCart(context.Background(), &EvaluateCartRequest{
		Cart: teeCart(),
		User: &domain.User{ID: "u-1"},
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"exp-vip": "treatment", "exp-hidden": "control"}, resp.Assignments)
	assert.ElementsMatch(t, []string{"bogo-tees", "vip-15"}, resp.Evaluation.ApplicableOffers)
	assert.Equal(t, 2, f.store.Len())

	exposures := f.events.Exposures()
	require.Len(t, exposures, 1, "control shows no experiment offer, so only exp-vip is exposed")
	assert.Equal(t, "exp-vip", exposures[0].ExperimentID)
	assert.Equal(t, "treatment", exposures[0].VariantID)
	assert.Equal(t, []string{"vip-15"}, exposures[0].OfferIDs)
	assert.Equal(t, "u-1", exposures[0].Identifier)

	// 第二次评估复用已有分配
	resp, err = f.svc.EvaluateCart(context.Background(), &EvaluateCartRequest{Cart: teeCart(), User: &domain.User{ID: "u-1"}})
	require.NoError(t, err)
	assert.Equal(t, "treatment", resp.Assignments["exp-vip"])
	assert.Equal(t, 2, f.store.Len())
}

func TestEvaluateCart_AnonymousWithoutSessionSkipsExperiments(t *testing.T) {
	vip := cartTen()
	vip.ID = "vip-15"
	f := newFixture([]*domain.Offer{vip}, gatingExperiments(), conflict.BudgetOptions{})

	resp, err := f.svc.EvaluateCart(context.Background(), &EvaluateCartRequest{Cart: teeCart()})
	require.NoError(t, err)

	assert.Empty(t, resp.Assignments)
	assert.Empty(t, resp.Evaluation.ApplicableOffers, "experiment offers stay hidden outside the experiment")
	assert.Empty(t, f.events.Exposures())
	assert.Zero(t, f.store.Len())
}

func TestAssignVariant(t *testing.T) {
	exps := gatingExperiments()
	paused := &domain.Experiment{ID: "exp-paused", Status: domain.ExperimentPaused, TrafficPercent: 100,
		Variants: []domain.Variant{{ID: "a", Weight: 1}}}
	f := newFixture(nil, append(exps, paused), conflict.BudgetOptions{})
	ctx := context.Background()

	resp, err := f.svc.AssignVariant(ctx, &AssignVariantRequest{ExperimentID: "exp-vip", Identifier: "s-9"})
	require.NoError(t, err)
	require.NotNil(t, resp.Variant)
	assert.Equal(t, "treatment", resp.Variant.ID)

	again, err := f.svc.AssignVariant(ctx, &AssignVariantRequest{ExperimentID: "exp-vip", Identifier: "s-9"})
	require.NoError(t, err)
	assert.Equal(t, resp.Variant.ID, again.Variant.ID)
	assert.Equal(t, 1, f.store.Len())

	resp, err = f.svc.AssignVariant(ctx, &AssignVariantRequest{ExperimentID: "exp-paused", Identifier: "s-9"})
	require.NoError(t, err)
	assert.Nil(t, resp.Variant)

	_, err = f.svc.AssignVariant(ctx, &AssignVariantRequest{ExperimentID: "missing", Identifier: "s-9"})
	assert.ErrorIs(t, err, domain.ErrExperimentNotFound)

	_, err = f.svc.AssignVariant(ctx, &AssignVariantRequest{ExperimentID: "exp-vip"})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestRecordExposure(t *testing.T) {
	f := newFixture(nil, gatingExperiments(), conflict.BudgetOptions{})
	ctx := context.Background()

	err := f.svc.RecordExposure(ctx, &RecordExposureRequest{ExperimentID: "exp-vip", Identifier: "u-2"})
	assert.ErrorIs(t, err, domain.ErrAssignmentNotFound)

	_, err = f.svc.AssignVariant(ctx, &AssignVariantRequest{ExperimentID: "exp-vip", Identifier: "u-2"})
	require.NoError(t, err)
	require.NoError(t, f.svc.RecordExposure(ctx, &RecordExposureRequest{ExperimentID: "exp-vip", Identifier: "u-2"}))

	exposures := f.events.Exposures()
	require.Len(t, exposures, 1)
	assert.Equal(t, []string{"vip-15"}, exposures[0].OfferIDs, "defaults to the variant's offers")
	assert.Equal(t, fixedNow, exposures[0].OccurredAt)
	assert.NotEmpty(t, exposures[0].ID)
}

func TestRecordConversion(t *testing.T) {
	f := newFixture(nil, gatingExperiments(), conflict.BudgetOptions{})
	ctx := context.Background()

	resp, err := f.svc.RecordConversion(ctx, &RecordConversionRequest{Identifier: "u-3", OrderID: "o-1", Revenue: 250})
	require.NoError(t, err)
	assert.Zero(t, resp.Recorded, "no assignment, nothing to attribute")

	_, err = f.svc.RecordConversion(ctx, &RecordConversionRequest{ExperimentID: "exp-vip", Identifier: "u-3"})
	assert.ErrorIs(t, err, domain.ErrAssignmentNotFound)

	for _, exp := range []string{"exp-vip", "exp-hidden"} {
		_, err := f.svc.AssignVariant(ctx, &AssignVariantRequest{ExperimentID: exp, Identifier: "u-3"})
		require.NoError(t, err)
	}
	resp, err = f.svc.RecordConversion(ctx, &RecordConversionRequest{Identifier: "u-3", OrderID: "o-2", Revenue: 250})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Recorded)

	conversions := f.events.Conversions()
	require.Len(t, conversions, 2)
	for _, c := range conversions {
		assert.Equal(t, "o-2", c.OrderID)
		assert.Equal(t, 250.0, c.Revenue)
	}
}
