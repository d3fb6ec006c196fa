// internal/service/promotion/domain/derived/fields.go
package derived

import (
	"strings"

	"nexus-promotion/internal/service/promotion/domain"
)

// Fields 是按优惠的 QualifyingFilters 在购物车上预先算好的聚合值，
// 规则和策略都从这里读，不再重复扫描购物车。它只在一次评估里存在。
type Fields struct {
	EligibleItemCount  int
	TotalQuantity      int
	DistinctSKUCount   int
	QualifyingSubtotal float64

	// map 的 key 都是小写
	CategoryTotals     map[string]float64
	BrandTotals        map[string]float64
	TagTotals          map[string]float64
	CategoryQuantities map[string]int
	BrandQuantities    map[string]int
	TagQuantities      map[string]int

	QualifyingItems []domain.LineItem
}

// Compute 先按过滤条件选出合格行，再在合格行上算出全部派生字段。cart 为 nil 时返回全零值。
func Compute(cart *domain.Cart, filters domain.QualifyingFilters) *Fields {
	f := &Fields{
		CategoryTotals:     map[string]float64{},
		BrandTotals:        map[string]float64{},
		TagTotals:          map[string]float64{},
		CategoryQuantities: map[string]int{},
		BrandQuantities:    map[string]int{},
		TagQuantities:      map[string]int{},
	}
	if cart == nil {
		return f
	}

	skus := make(map[string]struct{})
	f.QualifyingItems = Filter(cart.Lines, filters)
	for _, line := range f.QualifyingItems {
		total := line.Total()
		f.EligibleItemCount++
		f.TotalQuantity += line.Quantity
		f.QualifyingSubtotal += total
		skus[strings.ToLower(line.SKU)] = struct{}{}

		if line.Category != "" {
			k := strings.ToLower(line.Category)
			f.CategoryTotals[k] += total
			f.CategoryQuantities[k] += line.Quantity
		}
		if line.Brand != "" {
			k := strings.ToLower(line.Brand)
			f.BrandTotals[k] += total
			f.BrandQuantities[k] += line.Quantity
		}
		for _, tag := range uniqueLower(line.Tags) {
			f.TagTotals[tag] += total
			f.TagQuantities[tag] += line.Quantity
		}
	}
	f.DistinctSKUCount = len(skus)
	return f
}

// Matches 判断一行是否满足过滤条件：排除条件优先；没有任何包含条件时默认包含；
// 多个包含维度之间是“或”的关系。比较不区分大小写。
func Matches(line domain.LineItem, filters domain.QualifyingFilters) bool {
	if in(filters.ExcludeSKUs, line.SKU) ||
		in(filters.ExcludeCategories, line.Category) ||
		in(filters.ExcludeBrands, line.Brand) ||
		in(filters.ExcludeTemperatureZones, line.TemperatureZone) ||
		anyIn(filters.ExcludeTags, line.Tags) {
		return false
	}
	if !filters.HasInclusions() {
		return true
	}
	return in(filters.IncludeSKUs, line.SKU) ||
		in(filters.IncludeCategories, line.Category) ||
		in(filters.IncludeBrands, line.Brand) ||
		in(filters.IncludeTemperatureZones, line.TemperatureZone) ||
		anyIn(filters.IncludeTags, line.Tags)
}

// Filter 返回满足过滤条件的行，保持原顺序。
func Filter(lines []domain.LineItem, filters domain.QualifyingFilters) []domain.LineItem {
	var out []domain.LineItem
	for _, l := range lines {
		if Matches(l, filters) {
			out = append(out, l)
		}
	}
	return out
}

func in(list []string, v string) bool {
	if v == "" {
		return false
	}
	for _, x := range list {
		if strings.EqualFold(x, v) {
			return true
		}
	}
	return false
}

func anyIn(list, values []string) bool {
	for _, v := range values {
		if in(list, v) {
			return true
		}
	}
	return false
}

func uniqueLower(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		k := strings.ToLower(v)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
