// internal/service/promotion/domain/benefit/strategy.go
package benefit

import (
	"github.com/pkg/errors"

	"nexus-promotion/internal/service/promotion/domain"
	"nexus-promotion/internal/service/promotion/domain/derived"
)

// Result 是一个策略的计算结果。Adjustments 已经过取整和封顶。
type Result struct {
	TotalDiscount float64
	Adjustments   []domain.LineAdjustment
	DisplayText   string
	Deferred      *domain.DeferredBenefit
}

// AffectedLineIDs 返回有调整项的行。
func (r Result) AffectedLineIDs() []string {
	ids := make([]string, 0, len(r.Adjustments))
	for _, a := range r.Adjustments {
		ids = append(ids, a.LineID)
	}
	return ids
}

// Strategy 计算一种优惠类型的权益。实现必须是纯函数：不修改 cart、不依赖外部状态。
type Strategy interface {
	Compute(offer *domain.Offer, qualifying []domain.LineItem, cart *domain.Cart, fields *derived.Fields) (Result, error)
}

// For 返回优惠类型对应的策略。未知类型返回 ErrStrategyNotImplemented。
func For(t domain.OfferType) (Strategy, error) {
	switch t {
	case domain.OfferTypePercentDiscount:
		return percentStrategy{}, nil
	case domain.OfferTypeFlatDiscount:
		return flatStrategy{}, nil
	case domain.OfferTypePriceOverride:
		return priceOverrideStrategy{}, nil
	case domain.OfferTypeTieredDiscount:
		return tieredStrategy{}, nil
	case domain.OfferTypeBuyXGetY:
		return buyXGetYStrategy{}, nil
	case domain.OfferTypeMixAndMatch:
		return mixAndMatchStrategy{}, nil
	case domain.OfferTypeCheapestItem:
		return cheapestItemStrategy{}, nil
	case domain.OfferTypeFreeGift:
		return freeGiftStrategy{}, nil
	case domain.OfferTypeCashback:
		return cashbackStrategy{}, nil
	case domain.OfferTypeLoyaltyPoints:
		return loyaltyPointsStrategy{}, nil
	}
	return nil, errors.Wrapf(domain.ErrStrategyNotImplemented, "offer type %q", t)
}

func invalid(format string, args ...any) error {
	return errors.Wrapf(domain.ErrInvalidBenefit, format, args...)
}

func version(offer *domain.Offer) (*domain.OfferVersion, error) {
	if offer == nil || offer.CurrentVersion == nil {
		return nil, domain.ErrNoActiveVersion
	}
	return offer.CurrentVersion, nil
}
