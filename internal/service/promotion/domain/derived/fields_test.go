package derived

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexus-promotion/internal/service/promotion/domain"
)

func sampleCart() *domain.Cart {
	return &domain.Cart{ID: "c1", Lines: []domain.LineItem{
		{ID: "l1", SKU: "MILK", UnitPrice: 2, Quantity: 3, Category: "Dairy", Brand: "Farm", Tags: []string{"Organic", "organic"}, TemperatureZone: "chilled"},
		{ID: "l2", SKU: "ICE", UnitPrice: 5, Quantity: 1, Category: "Frozen", Brand: "Polar", TemperatureZone: "frozen"},
		{ID: "l3", SKU: "BREAD", UnitPrice: 3, Quantity: 2, Category: "Bakery", Brand: "Farm", Tags: []string{"organic"}},
		{ID: "l4", SKU: "MILK", UnitPrice: 2, Quantity: 1, Category: "Dairy", Brand: "Farm"},
	}}
}

func TestCompute_NoFiltersIncludesEverything(t *testing.T) {
	f := Compute(sampleCart(), domain.QualifyingFilters{})

	assert.Equal(t, 4, f.EligibleItemCount)
	assert.Equal(t, 7, f.TotalQuantity)
	assert.Equal(t, 3, f.DistinctSKUCount)
	assert.InDelta(t, 19.0, f.QualifyingSubtotal, 1e-9)
	assert.InDelta(t, 8.0, f.CategoryTotals["dairy"], 1e-9)
	assert.Equal(t, 4, f.CategoryQuantities["dairy"])
	assert.InDelta(t, 14.0, f.BrandTotals["farm"], 1e-9)
	assert.InDelta(t, 12.0, f.TagTotals["organic"], 1e-9)
	assert.Equal(t, 5, f.TagQuantities["organic"])
}

func TestCompute_ExclusionsWinAndInclusionsAreOr(t *testing.T) {
	filters := domain.QualifyingFilters{
		IncludeCategories:       []string{"dairy"},
		IncludeBrands:           []string{"polar"},
		ExcludeTemperatureZones: []string{"FROZEN"},
	}
	f := Compute(sampleCart(), filters)

	require.Len(t, f.QualifyingItems, 2)
	assert.Equal(t, "l1", f.QualifyingItems[0].ID)
	assert.Equal(t, "l4", f.QualifyingItems[1].ID)
	assert.Equal(t, 4, f.TotalQuantity)
}

func TestCompute_NilCart(t *testing.T) {
	f := Compute(nil, domain.QualifyingFilters{})
	assert.Zero(t, f.EligibleItemCount)
	assert.NotNil(t, f.CategoryTotals)
}

func TestUnitHelpers(t *testing.T) {
	units := ExpandUnits([]domain.LineItem{
		{ID: "a", UnitPrice: 30, Quantity: 1},
		{ID: "b", UnitPrice: 10, Quantity: 2},
		{ID: "c", UnitPrice: 20, Quantity: 1},
	})
	require.Len(t, units, 4)

	low := LowestPriced(units, 2)
	assert.Equal(t, []string{"b", "b"}, []string{low[0].LineID, low[1].LineID})

	high := HighestPriced(units, 1)
	assert.Equal(t, "a", high[0].LineID)
	assert.Len(t, HighestPriced(units, 10), 4)

	nth, ok := NthItem(units, 3)
	require.True(t, ok)
	assert.Equal(t, "c", nth.LineID)
	_, ok = NthItem(units, 5)
	assert.False(t, ok)

	buckets := GroupByPriceBuckets(units, 3)
	require.Len(t, buckets, 1)
	assert.Equal(t, []float64{30, 20, 10}, []float64{buckets[0][0].Price, buckets[0][1].Price, buckets[0][2].Price})

	// 原切片不被排序修改
	assert.Equal(t, "a", units[0].LineID)
}
