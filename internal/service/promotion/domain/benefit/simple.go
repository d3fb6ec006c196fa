// internal/service/promotion/domain/benefit/simple.go
package benefit

import (
	"fmt"
	"math"

	"nexus-promotion/internal/service/promotion/domain"
	"nexus-promotion/internal/service/promotion/domain/derived"
)

// percentStrategy：行级按行打折；整单级先对合计打折，再按比例分摊。
type percentStrategy struct{}

func (percentStrategy) Compute(offer *domain.Offer, qualifying []domain.LineItem, _ *domain.Cart, _ *derived.Fields) (Result, error) {
	v, err := version(offer)
	if err != nil {
		return Result{}, err
	}
	p := v.Benefit.Percent
	if p == nil || p.Percent <= 0 {
		return Result{}, invalid("percent_discount requires a positive percent")
	}
	pct := math.Min(p.Percent, 100)
	text := fmt.Sprintf("%s%% off", formatAmount(pct))

	if offer.Scope.IsCartLevel() {
		discount := Round(lineBase(qualifying)*pct/100, v.Caps.Rounding)
		return finalize(v, allocateDrafts(discount, qualifying, text), text), nil
	}

	drafts := make([]draft, 0, len(qualifying))
	for _, l := range qualifying {
		drafts = append(drafts, draft{line: l, amount: l.Total() * pct / 100, text: text})
	}
	return finalize(v, drafts, text), nil
}

// flatStrategy：行级时 Amount 是每件减免；整单级时是一次性减免。
type flatStrategy struct{}

func (flatStrategy) Compute(offer *domain.Offer, qualifying []domain.LineItem, _ *domain.Cart, _ *derived.Fields) (Result, error) {
	v, err := version(offer)
	if err != nil {
		return Result{}, err
	}
	f := v.Benefit.Flat
	if f == nil || f.Amount <= 0 {
		return Result{}, invalid("flat_discount requires a positive amount")
	}

	if offer.Scope.IsCartLevel() {
		text := fmt.Sprintf("%s off your order", formatAmount(f.Amount))
		discount := math.Min(f.Amount, lineBase(qualifying))
		return finalize(v, allocateDrafts(discount, qualifying, text), text), nil
	}

	text := fmt.Sprintf("%s off each item", formatAmount(f.Amount))
	drafts := make([]draft, 0, len(qualifying))
	for _, l := range qualifying {
		drafts = append(drafts, draft{line: l, amount: f.Amount * float64(l.Quantity), text: text})
	}
	return finalize(v, drafts, text), nil
}

// priceOverrideStrategy：行级时 Price 是新单价；整单级时是所有合格行的打包价。
type priceOverrideStrategy struct{}

func (priceOverrideStrategy) Compute(offer *domain.Offer, qualifying []domain.LineItem, _ *domain.Cart, _ *derived.Fields) (Result, error) {
	v, err := version(offer)
	if err != nil {
		return Result{}, err
	}
	p := v.Benefit.PriceOverride
	if p == nil || p.Price < 0 {
		return Result{}, invalid("price_override requires a non-negative price")
	}

	if offer.Scope.IsCartLevel() {
		text := fmt.Sprintf("Bundle price %s", formatAmount(p.Price))
		discount := lineBase(qualifying) - p.Price
		if discount <= 0 {
			return Result{DisplayText: text}, nil
		}
		return finalize(v, allocateDrafts(discount, qualifying, text), text), nil
	}

	text := fmt.Sprintf("Now %s each", formatAmount(p.Price))
	drafts := make([]draft, 0, len(qualifying))
	for _, l := range qualifying {
		unit := l.EffectiveUnitPrice()
		if unit <= p.Price {
			continue
		}
		drafts = append(drafts, draft{line: l, amount: (unit - p.Price) * float64(l.Quantity), text: text})
	}
	return finalize(v, drafts, text), nil
}
