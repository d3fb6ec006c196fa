// internal/service/promotion/domain/evaluator/evaluator.go
package evaluator

import (
	"fmt"
	"sort"

	zlog "github.com/rs/zerolog/log"

	"nexus-promotion/internal/service/promotion/domain"
	"nexus-promotion/internal/service/promotion/domain/benefit"
	"nexus-promotion/internal/service/promotion/domain/derived"
	"nexus-promotion/internal/service/promotion/domain/rule"
)

// maxMissingForPotential 是“差一点”的阈值：未满足条件不超过这个数才提示给用户。
const maxMissingForPotential = 2

// Evaluator 依次评估每个优惠：资格 → 计算权益 → 生成方案。
// 单个优惠的失败只会变成一条 message，不会影响其它优惠。
type Evaluator struct {
	rules *rule.Engine
}

func New(rules *rule.Engine) *Evaluator {
	if rules == nil {
		rules = rule.NewEngine()
	}
	return &Evaluator{rules: rules}
}

// Evaluate 按优先级评估全部优惠。结果中的 Plans 顺序就是冲突裁决的顺序。
func (e *Evaluator) Evaluate(offers []*domain.Offer, cart *domain.Cart, user *domain.User, ctx *domain.EvalContext) *domain.EvaluationResult {
	result := &domain.EvaluationResult{
		ApplicableOffers: []string{},
		Plans:            []domain.ApplicationPlan{},
		PotentialOffers:  []domain.PotentialOffer{},
		Messages:         []string{},
	}

	for _, offer := range SortByPriority(offers) {
		e.evaluateOne(offer, cart, user, ctx, result)
	}
	return result
}

// SortByPriority 返回排好序的副本，不修改入参。
func SortByPriority(offers []*domain.Offer) []*domain.Offer {
	sorted := make([]*domain.Offer, 0, len(offers))
	for _, o := range offers {
		if o != nil {
			sorted = append(sorted, o)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return domain.LessByPriority(sorted[i], sorted[j])
	})
	return sorted
}

func (e *Evaluator) evaluateOne(offer *domain.Offer, cart *domain.Cart, user *domain.User, ctx *domain.EvalContext, result *domain.EvaluationResult) {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Str("offer_id", offer.ID).Interface("panic", r).Msg("offer evaluation panicked")
			result.Messages = append(result.Messages, fmt.Sprintf("offer %s: evaluation failed: %v", offer.ID, r))
		}
	}()

	strategy, err := benefit.For(offer.Type)
	if err != nil {
		result.Messages = append(result.Messages, fmt.Sprintf("offer %s: %v", offer.ID, err))
		return
	}
	version := offer.CurrentVersion
	if version == nil {
		result.Messages = append(result.Messages, fmt.Sprintf("offer %s: %v", offer.ID, domain.ErrNoActiveVersion))
		return
	}

	fields := derived.Compute(cart, version.Filters)
	scope := &rule.Scope{Cart: cart, User: user, Context: ctx, Derived: fields}

	eligibility := e.rules.Evaluate(offer, scope)
	if !eligibility.Eligible {
		n := len(eligibility.MissingConditions)
		if !eligibility.Blocked && n > 0 && n <= maxMissingForPotential {
			result.PotentialOffers = append(result.PotentialOffers, domain.PotentialOffer{
				OfferID:           offer.ID,
				OfferName:         offer.Name,
				MissingConditions: eligibility.MissingConditions,
			})
		}
		zlog.Debug().Str("offer_id", offer.ID).Strs("missing", eligibility.MissingConditions).Msg("offer not eligible")
		return
	}

	qualifying := fields.QualifyingItems
	if version.LineRules != nil {
		var kept []domain.LineItem
		for _, l := range qualifying {
			if e.rules.LineQualifies(version.LineRules, scope, l) {
				kept = append(kept, l)
			}
		}
		qualifying = kept
	}
	if len(qualifying) == 0 && offer.Type != domain.OfferTypeFreeGift {
		result.Messages = append(result.Messages, fmt.Sprintf("offer %s: no qualifying items in cart", offer.ID))
		return
	}

	res, err := strategy.Compute(offer, qualifying, cart, fields)
	if err != nil {
		zlog.Warn().Err(err).Str("offer_id", offer.ID).Msg("benefit computation failed")
		result.Messages = append(result.Messages, fmt.Sprintf("offer %s: %v", offer.ID, err))
		return
	}

	if !worthApplying(offer, res) {
		zlog.Info().Str("offer_id", offer.ID).Msg("offer eligible but produced no discount")
		result.Messages = append(result.Messages, fmt.Sprintf("offer %s: eligible but produced no discount", offer.ID))
		return
	}

	result.ApplicableOffers = append(result.ApplicableOffers, offer.ID)
	result.Plans = append(result.Plans, buildPlan(offer, res))
}

// worthApplying：有减免、或是赠品、或有延迟权益的结果才生成方案。
func worthApplying(offer *domain.Offer, res benefit.Result) bool {
	if res.TotalDiscount > 0 || offer.Type == domain.OfferTypeFreeGift {
		return true
	}
	return res.Deferred != nil && res.Deferred.Value > 0
}

func buildPlan(offer *domain.Offer, res benefit.Result) domain.ApplicationPlan {
	adjustments := res.Adjustments
	if adjustments == nil {
		adjustments = []domain.LineAdjustment{}
	}
	return domain.ApplicationPlan{
		OfferID:         offer.ID,
		OfferName:       offer.Name,
		OfferType:       offer.Type,
		Scope:           offer.Scope,
		Priority:        offer.Priority,
		StackingPolicy:  offer.Policy(),
		StackGroup:      offer.StackGroup,
		VersionID:       offer.CurrentVersion.ID,
		TotalDiscount:   res.TotalDiscount,
		Adjustments:     adjustments,
		AffectedLineIDs: res.AffectedLineIDs(),
		DisplayText:     res.DisplayText,
		Funding:         offer.Funding,
		Deferred:        res.Deferred,
	}
}
