// internal/service/promotion/domain/benefit/mixmatch.go
package benefit

import (
	"fmt"
	"math"

	"nexus-promotion/internal/service/promotion/domain"
	"nexus-promotion/internal/service/promotion/domain/derived"
)

// mixAndMatchStrategy 从每个分组各取规定件数组成一个组合，组合数取各组能凑出的最小值。
// 每件商品只归属第一个匹配的分组；组合优先使用价格最高的商品。
type mixAndMatchStrategy struct{}

func (mixAndMatchStrategy) Compute(offer *domain.Offer, qualifying []domain.LineItem, _ *domain.Cart, _ *derived.Fields) (Result, error) {
	v, err := version(offer)
	if err != nil {
		return Result{}, err
	}
	m := v.Benefit.MixAndMatch
	if m == nil || len(m.Groups) == 0 {
		return Result{}, invalid("mix_and_match requires at least one group")
	}
	kinds := 0
	for _, x := range []float64{m.ComboPrice, m.DiscountPercent, m.DiscountAmount} {
		if x > 0 {
			kinds++
		}
	}
	if kinds != 1 {
		return Result{}, invalid("mix_and_match must set exactly one of combo_price, discount_percent, discount_amount")
	}
	text := mixText(m)

	pools := make([][]derived.Unit, len(m.Groups))
	for _, l := range qualifying {
		for gi, g := range m.Groups {
			if derived.Matches(l, g.Filters) {
				pools[gi] = append(pools[gi], derived.ExpandUnits([]domain.LineItem{l})...)
				break
			}
		}
	}

	// 每组按价格从高到低切成若干份，第 k 个组合取每组的第 k 份
	buckets := make([][][]derived.Unit, len(m.Groups))
	combos := math.MaxInt
	for gi, g := range m.Groups {
		buckets[gi] = derived.GroupByPriceBuckets(pools[gi], groupQty(g))
		combos = min(combos, len(buckets[gi]))
	}
	if m.MaxCombos > 0 {
		combos = min(combos, m.MaxCombos)
	}
	if combos == 0 {
		return Result{DisplayText: text}, nil
	}

	byKey := make(map[string]domain.LineItem, len(qualifying))
	for _, l := range qualifying {
		byKey[l.Key()] = l
	}

	var drafts []draft
	for k := 0; k < combos; k++ {
		var units []derived.Unit
		for gi := range m.Groups {
			units = append(units, buckets[gi][k]...)
		}

		var value float64
		for _, u := range units {
			value += u.Price
		}
		discount := comboDiscount(m, value)
		if discount <= 0 || value <= 0 {
			continue
		}
		for _, u := range units {
			drafts = append(drafts, draft{line: byKey[u.LineID], amount: discount * u.Price / value, text: text})
		}
	}
	return finalize(v, drafts, text), nil
}

func groupQty(g domain.MixGroup) int {
	if g.Quantity <= 0 {
		return 1
	}
	return g.Quantity
}

func comboDiscount(m *domain.MixAndMatchBenefit, value float64) float64 {
	switch {
	case m.ComboPrice > 0:
		return math.Max(0, value-m.ComboPrice)
	case m.DiscountPercent > 0:
		return value * math.Min(m.DiscountPercent, 100) / 100
	default:
		return math.Min(m.DiscountAmount, value)
	}
}

func mixText(m *domain.MixAndMatchBenefit) string {
	switch {
	case m.ComboPrice > 0:
		return fmt.Sprintf("Combo for %s", formatAmount(m.ComboPrice))
	case m.DiscountPercent > 0:
		return fmt.Sprintf("%s%% off the combo", formatAmount(m.DiscountPercent))
	default:
		return fmt.Sprintf("%s off the combo", formatAmount(m.DiscountAmount))
	}
}
