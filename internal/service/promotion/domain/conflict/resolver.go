// internal/service/promotion/domain/conflict/resolver.go
package conflict

import (
	"fmt"
	"math"
	"strconv"

	zlog "github.com/rs/zerolog/log"

	"nexus-promotion/internal/service/promotion/domain"
)

// BudgetMode 决定一个方案超出剩余预算时怎么处理。
type BudgetMode string

const (
	// BudgetReject 整个方案被拒绝（默认）。
	BudgetReject BudgetMode = "reject"
	// BudgetClamp 方案按比例缩减到剩余预算。
	BudgetClamp BudgetMode = "clamp"
)

// BudgetOptions 是一次裁决的全局约束，零值表示不限制。
type BudgetOptions struct {
	MaxOffers          int        `json:"max_offers,omitempty" yaml:"max_offers"`
	MaxDiscountAmount  float64    `json:"max_discount_amount,omitempty" yaml:"max_discount_amount"`
	MaxDiscountPercent float64    `json:"max_discount_percent,omitempty" yaml:"max_discount_percent"`
	Mode               BudgetMode `json:"mode,omitempty" yaml:"mode"`
	// CartSubtotal 用于把 MaxDiscountPercent 换算成金额
	CartSubtotal float64 `json:"-" yaml:"-"`
	// LineLimits 是每行累计减免的上限（通常是行价），为空时不检查
	LineLimits map[string]float64 `json:"-" yaml:"-"`
}

// Limit 返回预算金额上限，没有上限时 ok=false。
func (o BudgetOptions) Limit() (float64, bool) {
	limit := math.Inf(1)
	if o.MaxDiscountAmount > 0 {
		limit = o.MaxDiscountAmount
	}
	if o.MaxDiscountPercent > 0 && o.CartSubtotal > 0 {
		limit = math.Min(limit, o.CartSubtotal*o.MaxDiscountPercent/100)
	}
	if math.IsInf(limit, 1) {
		return 0, false
	}
	return toCents(limit), true
}

// LineLimitsFor 用购物车的行价生成 LineLimits。
func LineLimitsFor(cart *domain.Cart) map[string]float64 {
	if cart == nil {
		return nil
	}
	limits := make(map[string]float64, len(cart.Lines))
	for _, l := range cart.Lines {
		limits[l.Key()] += l.Total()
	}
	return limits
}

type state struct {
	accepted          int
	total             float64
	exclusiveAccepted string
	groups            map[string]struct{}
	lineUsed          map[string]float64
}

// Resolve 按 plans 的顺序（即评估优先级）逐个裁决。检查顺序固定：
// 数量上限 → 预算 → 已有互斥 → 本方案互斥 → 叠加组 → 单行上限。
func Resolve(plans []domain.ApplicationPlan, opts BudgetOptions) *domain.Resolution {
	res := &domain.Resolution{
		Accepted:      []domain.ApplicationPlan{},
		Rejected:      []domain.RejectedPlan{},
		RejectionLogs: []domain.RejectionLog{},
	}
	st := &state{groups: map[string]struct{}{}, lineUsed: map[string]float64{}}
	limit, hasLimit := opts.Limit()

	for _, plan := range plans {
		reason, msg, clampTo := check(plan, st, opts, limit, hasLimit)
		if reason != "" {
			zlog.Debug().Str("offer_id", plan.OfferID).Str("reason", string(reason)).Msg(msg)
			res.Rejected = append(res.Rejected, domain.RejectedPlan{Plan: plan, Reason: reason, Message: msg})
			res.RejectionLogs = append(res.RejectionLogs, domain.RejectionLog{OfferID: plan.OfferID, Reason: reason, Message: msg})
			continue
		}
		if clampTo >= 0 {
			plan = ScalePlan(plan, clampTo)
		}
		accept(plan, st)
		res.Accepted = append(res.Accepted, plan)
	}

	res.TotalDiscount = toCents(st.total)
	return res
}

// check 返回拒绝原因；clampTo >= 0 表示需要把方案缩减到该金额后再接受。
func check(plan domain.ApplicationPlan, st *state, opts BudgetOptions, limit float64, hasLimit bool) (domain.RejectionReason, string, float64) {
	clampTo := -1.0

	if opts.MaxOffers > 0 && st.accepted >= opts.MaxOffers {
		return domain.RejectMaxOffersReached, fmt.Sprintf("maximum of %d offers already applied", opts.MaxOffers), clampTo
	}

	if hasLimit && st.total+plan.TotalDiscount > limit+1e-9 {
		remaining := toCents(limit - st.total)
		if opts.Mode != BudgetClamp || remaining <= 0 {
			return domain.RejectBudgetExceeded, fmt.Sprintf("discount %s would exceed the remaining budget %s (limit %s)",
				money(plan.TotalDiscount), money(math.Max(remaining, 0)), money(limit)), clampTo
		}
		clampTo = remaining
	}

	if st.exclusiveAccepted != "" {
		return domain.RejectExclusiveConflict, fmt.Sprintf("exclusive offer %s is already applied", st.exclusiveAccepted), clampTo
	}

	policy, group := effectivePolicy(plan)
	if policy == domain.StackingExclusive && st.accepted > 0 {
		return domain.RejectExclusiveConflict, fmt.Sprintf("exclusive offer cannot combine with %d already applied offer(s)", st.accepted), clampTo
	}

	if policy == domain.StackingStackGroup && len(st.groups) > 0 {
		if _, ok := st.groups[group]; !ok {
			return domain.RejectStackGroupConflict, fmt.Sprintf("stack group %q conflicts with applied group %q", group, anyKey(st.groups)), clampTo
		}
	}

	if opts.LineLimits != nil {
		scale := 1.0
		if clampTo >= 0 && plan.TotalDiscount > 0 {
			scale = clampTo / plan.TotalDiscount
		}
		for _, adj := range plan.Adjustments {
			lim, ok := opts.LineLimits[adj.LineID]
			if !ok {
				continue
			}
			if st.lineUsed[adj.LineID]+adj.Amount*scale > lim+1e-9 {
				return domain.RejectLineLimitExceeded, fmt.Sprintf("line %s would be discounted beyond its price %s", adj.LineID, money(lim)), clampTo
			}
		}
	}

	return "", "", clampTo
}

func accept(plan domain.ApplicationPlan, st *state) {
	st.accepted++
	st.total = toCents(st.total + plan.TotalDiscount)
	policy, group := effectivePolicy(plan)
	switch policy {
	case domain.StackingExclusive:
		st.exclusiveAccepted = plan.OfferID
	case domain.StackingStackGroup:
		st.groups[group] = struct{}{}
	}
	for _, adj := range plan.Adjustments {
		st.lineUsed[adj.LineID] += adj.Amount
	}
}

// effectivePolicy：没有组名的 stack_group 按互斥处理。
func effectivePolicy(plan domain.ApplicationPlan) (domain.StackingPolicy, string) {
	policy := plan.StackingPolicy
	if policy == "" {
		policy = domain.StackingStackable
	}
	if policy == domain.StackingStackGroup && plan.StackGroup == "" {
		return domain.StackingExclusive, ""
	}
	return policy, plan.StackGroup
}

// ScalePlan 把方案按比例缩减到 target，各行以分为单位向下取整，余数从第一行开始补齐。
func ScalePlan(plan domain.ApplicationPlan, target float64) domain.ApplicationPlan {
	if plan.TotalDiscount <= 0 || target >= plan.TotalDiscount {
		return plan
	}
	ratio := target / plan.TotalDiscount
	targetCents := int64(math.Round(target * 100))

	adjustments := make([]domain.LineAdjustment, len(plan.Adjustments))
	originals := make([]int64, len(plan.Adjustments))
	var sum int64
	for i, adj := range plan.Adjustments {
		originals[i] = int64(math.Round(adj.Amount * 100))
		c := int64(math.Floor(float64(originals[i]) * ratio))
		adjustments[i] = adj
		adjustments[i].Amount = float64(c) / 100
		sum += c
	}
	for i := range adjustments {
		if sum >= targetCents {
			break
		}
		c := int64(math.Round(adjustments[i].Amount * 100))
		if c < originals[i] {
			adjustments[i].Amount = float64(c+1) / 100
			sum++
		}
	}

	plan.Adjustments = adjustments
	plan.TotalDiscount = float64(sum) / 100
	plan.DisplayText = plan.DisplayText + " (limited by budget)"
	return plan
}

func toCents(x float64) float64 {
	return math.Round(x*100) / 100
}

func money(x float64) string {
	return strconv.FormatFloat(toCents(x), 'f', -1, 64)
}

func anyKey(m map[string]struct{}) string {
	for k := range m {
		return k
	}
	return ""
}
