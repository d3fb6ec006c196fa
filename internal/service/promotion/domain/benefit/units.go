// internal/service/promotion/domain/benefit/units.go
package benefit

import (
	"fmt"
	"math"

	"nexus-promotion/internal/service/promotion/domain"
	"nexus-promotion/internal/service/promotion/domain/derived"
)

// buyXGetYStrategy：每 buy+get 件为一组，按选择方式排序后，前 sets*get 件享受折扣。
type buyXGetYStrategy struct{}

func (buyXGetYStrategy) Compute(offer *domain.Offer, qualifying []domain.LineItem, _ *domain.Cart, _ *derived.Fields) (Result, error) {
	v, err := version(offer)
	if err != nil {
		return Result{}, err
	}
	b := v.Benefit.BuyXGetY
	if b == nil || b.BuyQty < 1 || b.GetQty < 1 {
		return Result{}, invalid("buy_x_get_y requires buy_qty >= 1 and get_qty >= 1")
	}
	pct := percentOrDefault(b.GetDiscountPercent)

	text := fmt.Sprintf("Buy %d get %d free", b.BuyQty, b.GetQty)
	if pct < 100 {
		text = fmt.Sprintf("Buy %d get %d at %s%% off", b.BuyQty, b.GetQty, formatAmount(pct))
	}

	units := derived.ExpandUnits(qualifying)
	sets := len(units) / (b.BuyQty + b.GetQty)
	if b.MaxSets > 0 && sets > b.MaxSets {
		sets = b.MaxSets
	}
	if sets == 0 {
		return Result{DisplayText: text}, nil
	}

	free := derived.LowestPriced(units, sets*b.GetQty)
	if b.Selection == domain.SelectHighestPriced {
		free = derived.HighestPriced(units, sets*b.GetQty)
	}
	return finalize(v, unitDrafts(free, qualifying, pct, text), text), nil
}

// cheapestItemStrategy：合格件数达到 MinItems 后，最便宜的 N 件打折。
type cheapestItemStrategy struct{}

func (cheapestItemStrategy) Compute(offer *domain.Offer, qualifying []domain.LineItem, _ *domain.Cart, _ *derived.Fields) (Result, error) {
	v, err := version(offer)
	if err != nil {
		return Result{}, err
	}
	c := v.Benefit.CheapestItem
	if c == nil {
		c = &domain.CheapestItemBenefit{}
	}
	minItems := c.MinItems
	if minItems <= 0 {
		minItems = 2
	}
	count := c.DiscountCount
	if count <= 0 {
		count = 1
	}
	pct := percentOrDefault(c.DiscountPercent)

	text := "Cheapest item free"
	if pct < 100 {
		text = fmt.Sprintf("%s%% off the cheapest item", formatAmount(pct))
	}

	units := derived.ExpandUnits(qualifying)
	if _, ok := derived.NthItem(units, minItems); !ok {
		return Result{DisplayText: text}, nil
	}
	picked := derived.LowestPriced(units, count)
	return finalize(v, unitDrafts(picked, qualifying, pct, text), text), nil
}

// unitDrafts 把选中的单件折扣汇总回所在的行。
func unitDrafts(units []derived.Unit, lines []domain.LineItem, pct float64, text string) []draft {
	byKey := make(map[string]domain.LineItem, len(lines))
	for _, l := range lines {
		byKey[l.Key()] = l
	}
	out := make([]draft, 0, len(units))
	for _, u := range units {
		out = append(out, draft{line: byKey[u.LineID], amount: u.Price * pct / 100, text: text})
	}
	return out
}

// percentOrDefault 缺省 100%，并限制在 [0, 100]。
func percentOrDefault(p *float64) float64 {
	if p == nil {
		return 100
	}
	return math.Max(0, math.Min(*p, 100))
}
