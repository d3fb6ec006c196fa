package rule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"nexus-promotion/internal/service/promotion/domain"
	"nexus-promotion/internal/service/promotion/domain/derived"
)

func TestResolve(t *testing.T) {
	first := time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)
	cart := &domain.Cart{ID: "c1", Fees: 5, Lines: []domain.LineItem{
		{ID: "l1", SKU: "A", UnitPrice: 20, Quantity: 2, Category: "Snacks", Brand: "Acme"},
		{ID: "l2", SKU: "B", UnitPrice: 10, Quantity: 1, Category: "Drinks", Attributes: map[string]any{"origin": "IT"}},
	}}
	scope := &Scope{
		Cart: cart,
		User: &domain.User{
			ID: "u1", OrderCount: 0, FirstOrderAt: &first,
			Attributes: map[string]any{"loyalty": map[string]any{"tier": "gold"}},
		},
		Context: &domain.EvalContext{Now: now, Channel: "app", Attributes: map[string]any{"campaign": "spring"}},
		Line:    &cart.Lines[1],
		Derived: derived.Compute(cart, domain.QualifyingFilters{}),
	}

	tests := []struct {
		path string
		want any
	}{
		{"cart.subtotal", 50.0},
		{"cart.grand_total", 55.0},
		{"cart.item_count", 3},
		{"cart.skus", []string{"A", "B"}},
		{"cart.unknown", nil},
		{"cart.subtotal.deeper", nil},
		{"user.is_new", true},
		{"user.first_order_at", first},
		{"user.attributes.loyalty.tier", "gold"},
		{"user.loyalty.tier", "gold"},
		{"user.attributes.missing.tier", nil},
		{"context.channel", "app"},
		{"context.campaign", "spring"},
		{"line.sku", "B"},
		{"line.extended_price", 10.0},
		{"derived.total_quantity", 3},
		{"derived.category_totals.snacks", 40.0},
		{"derived.category_totals.Snacks", 40.0},
		{"derived.category_quantities.drinks", 1},
		{"derived.category_totals.toys", nil},
		{"current_time", now},
		{"origin", "IT"},
		{"", nil},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(tt.path, scope))
		})
	}
}

func TestResolve_NilScopeParts(t *testing.T) {
	scope := &Scope{}
	assert.Nil(t, Resolve("cart.subtotal", scope))
	assert.Nil(t, Resolve("user.id", scope))
	assert.Nil(t, Resolve("line.sku", scope))
	assert.Nil(t, Resolve("derived.total_quantity", scope))
	assert.Nil(t, Resolve("whatever", scope))
	assert.Nil(t, Resolve("cart.subtotal", nil))
}
