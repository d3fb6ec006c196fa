// internal/service/promotion/domain/benefit/tiered.go
package benefit

import (
	"fmt"
	"math"

	"github.com/pkg/errors"

	"nexus-promotion/internal/service/promotion/domain"
	"nexus-promotion/internal/service/promotion/domain/derived"
)

// tieredStrategy 按数量阶梯打折。命中多个阶梯时取 MinQty 最大的那个。
// PerItem 为 true 时每行用自己的数量选阶梯，否则用合格行的总数量。
type tieredStrategy struct{}

func (tieredStrategy) Compute(offer *domain.Offer, qualifying []domain.LineItem, _ *domain.Cart, _ *derived.Fields) (Result, error) {
	v, err := version(offer)
	if err != nil {
		return Result{}, err
	}
	t := v.Benefit.Tiered
	if t == nil {
		return Result{}, errors.Wrap(domain.ErrMalformedTiers, "tiered_discount has no tier configuration")
	}
	if err := validateTiers(t.Tiers); err != nil {
		return Result{}, err
	}

	var drafts []draft
	if t.PerItem {
		for _, l := range qualifying {
			tier := selectTier(t.Tiers, l.Quantity)
			if tier == nil {
				continue
			}
			drafts = append(drafts, applyTier(tier, []domain.LineItem{l})...)
		}
		return finalize(v, drafts, "Volume discount"), nil
	}

	qty := 0
	for _, l := range qualifying {
		qty += l.Quantity
	}
	tier := selectTier(t.Tiers, qty)
	if tier == nil {
		return Result{}, nil
	}
	drafts = applyTier(tier, qualifying)
	return finalize(v, drafts, tierText(tier)), nil
}

func validateTiers(tiers []domain.Tier) error {
	if len(tiers) == 0 {
		return errors.Wrap(domain.ErrMalformedTiers, "tier list is empty")
	}
	for i, t := range tiers {
		if t.MinQty < 1 {
			return errors.Wrapf(domain.ErrMalformedTiers, "tier %d has min_qty %d", i, t.MinQty)
		}
		if t.MaxQty != 0 && t.MaxQty < t.MinQty {
			return errors.Wrapf(domain.ErrMalformedTiers, "tier %d has max_qty %d below min_qty %d", i, t.MaxQty, t.MinQty)
		}
		kinds := 0
		for _, x := range []float64{t.DiscountPercent, t.DiscountAmount, t.PricePerUnit} {
			if x > 0 {
				kinds++
			}
		}
		if kinds != 1 {
			return errors.Wrapf(domain.ErrMalformedTiers, "tier %d must set exactly one of discount_percent, discount_amount, price_per_unit", i)
		}
	}
	return nil
}

func selectTier(tiers []domain.Tier, qty int) *domain.Tier {
	var best *domain.Tier
	for i := range tiers {
		t := &tiers[i]
		if qty < t.MinQty || (t.MaxQty != 0 && qty > t.MaxQty) {
			continue
		}
		if best == nil || t.MinQty > best.MinQty {
			best = t
		}
	}
	return best
}

func applyTier(t *domain.Tier, lines []domain.LineItem) []draft {
	text := tierText(t)
	switch {
	case t.DiscountPercent > 0:
		pct := math.Min(t.DiscountPercent, 100)
		out := make([]draft, 0, len(lines))
		for _, l := range lines {
			out = append(out, draft{line: l, amount: l.Total() * pct / 100, text: text})
		}
		return out
	case t.DiscountAmount > 0:
		return allocateDrafts(math.Min(t.DiscountAmount, lineBase(lines)), lines, text)
	default:
		out := make([]draft, 0, len(lines))
		for _, l := range lines {
			unit := l.EffectiveUnitPrice()
			if unit <= t.PricePerUnit {
				continue
			}
			out = append(out, draft{line: l, amount: (unit - t.PricePerUnit) * float64(l.Quantity), text: text})
		}
		return out
	}
}

func tierText(t *domain.Tier) string {
	switch {
	case t.DiscountPercent > 0:
		return fmt.Sprintf("Buy %d+, get %s%% off", t.MinQty, formatAmount(t.DiscountPercent))
	case t.DiscountAmount > 0:
		return fmt.Sprintf("Buy %d+, get %s off", t.MinQty, formatAmount(t.DiscountAmount))
	default:
		return fmt.Sprintf("Buy %d+, pay %s each", t.MinQty, formatAmount(t.PricePerUnit))
	}
}
