// internal/service/promotion/domain/benefit/deferred.go
package benefit

import (
	"fmt"
	"math"
	"strings"

	"nexus-promotion/internal/service/promotion/domain"
	"nexus-promotion/internal/service/promotion/domain/derived"
)

// freeGiftStrategy 只对购物车里已经存在的赠品行减免，不会往购物车里加东西。
// 赠品不在购物车里时结果为 0，但优惠仍然有效（用于提示）。
type freeGiftStrategy struct{}

func (freeGiftStrategy) Compute(offer *domain.Offer, _ []domain.LineItem, cart *domain.Cart, _ *derived.Fields) (Result, error) {
	v, err := version(offer)
	if err != nil {
		return Result{}, err
	}
	g := v.Benefit.FreeGift
	if g == nil || len(g.GiftSKUs) == 0 {
		return Result{}, invalid("free_gift requires at least one gift sku")
	}
	remaining := g.MaxFreeQty
	if remaining <= 0 {
		remaining = 1
	}

	text := fmt.Sprintf("Free gift: %s", strings.Join(g.GiftSKUs, ", "))
	if cart == nil {
		return Result{DisplayText: text}, nil
	}

	var drafts []draft
	for _, l := range cart.Lines {
		if remaining == 0 {
			break
		}
		if !containsFold(g.GiftSKUs, l.SKU) || l.Quantity <= 0 {
			continue
		}
		n := min(remaining, l.Quantity)
		remaining -= n
		drafts = append(drafts, draft{line: l, amount: l.EffectiveUnitPrice() * float64(n), text: text})
	}
	if len(drafts) == 0 {
		return Result{DisplayText: fmt.Sprintf("Add %s to your cart to claim your free gift", strings.Join(g.GiftSKUs, " or "))}, nil
	}
	return finalize(v, drafts, text), nil
}

// cashbackStrategy 不减少本单金额，返现在下单后入账。
type cashbackStrategy struct{}

func (cashbackStrategy) Compute(offer *domain.Offer, qualifying []domain.LineItem, _ *domain.Cart, _ *derived.Fields) (Result, error) {
	v, err := version(offer)
	if err != nil {
		return Result{}, err
	}
	c := v.Benefit.Cashback
	if c == nil || (c.Percent <= 0 && c.Amount <= 0) {
		return Result{}, invalid("cashback requires a percent or an amount")
	}

	base := lineBase(qualifying)
	value := c.Amount
	if c.Percent > 0 {
		value = base * math.Min(c.Percent, 100) / 100
	}
	if c.MaxCashback > 0 {
		value = math.Min(value, c.MaxCashback)
	}
	if v.Caps.MaxDiscountAmount > 0 {
		value = math.Min(value, v.Caps.MaxDiscountAmount)
	}
	value = Round(value, v.Caps.Rounding)

	text := fmt.Sprintf("%s cashback after purchase", formatAmount(value))
	return deferredResult(domain.DeferredCashback, "cashback_amount", value, qualifying, text), nil
}

// loyaltyPointsStrategy：积分 = 合计 * 每单位积分 + 固定积分，再乘以倍数，向下取整。
type loyaltyPointsStrategy struct{}

func (loyaltyPointsStrategy) Compute(offer *domain.Offer, qualifying []domain.LineItem, _ *domain.Cart, _ *derived.Fields) (Result, error) {
	v, err := version(offer)
	if err != nil {
		return Result{}, err
	}
	p := v.Benefit.LoyaltyPoints
	if p == nil || (p.PointsPerUnit <= 0 && p.FixedPoints <= 0) {
		return Result{}, invalid("loyalty_points requires points_per_unit or fixed_points")
	}
	multiplier := p.Multiplier
	if multiplier <= 0 {
		multiplier = 1
	}
	points := math.Floor((lineBase(qualifying)*p.PointsPerUnit + p.FixedPoints) * multiplier)

	text := fmt.Sprintf("Earn %s points", formatAmount(points))
	return deferredResult(domain.DeferredLoyaltyPoints, "loyalty_points", points, qualifying, text), nil
}

// deferredResult 生成金额为 0 的调整项，把延迟权益按行比例写进 metadata，供下游入账。
// 返现按分拆成 float64，积分按整数拆成 int64。
func deferredResult(kind domain.DeferredKind, key string, value float64, lines []domain.LineItem, text string) Result {
	res := Result{DisplayText: text}
	if value <= 0 {
		return res
	}
	res.Deferred = &domain.DeferredBenefit{Kind: kind, Value: value}

	points := kind == domain.DeferredLoyaltyPoints
	var shares []int64
	if points {
		shares = allocateUnits(int64(value), lines)
	} else {
		shares = allocateUnits(toCents(value), lines)
	}
	for i, l := range lines {
		if shares[i] <= 0 {
			continue
		}
		var share any = fromCents(shares[i])
		if points {
			share = shares[i]
		}
		res.Adjustments = append(res.Adjustments, domain.LineAdjustment{
			LineID:      l.Key(),
			Amount:      0,
			DisplayText: text,
			Metadata:    map[string]any{key: share},
		})
	}
	return res
}

func containsFold(list []string, v string) bool {
	for _, x := range list {
		if strings.EqualFold(x, v) {
			return true
		}
	}
	return false
}
