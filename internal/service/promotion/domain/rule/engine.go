// internal/service/promotion/domain/rule/engine.go
package rule

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	zlog "github.com/rs/zerolog/log"

	"nexus-promotion/internal/service/promotion/domain"
	"nexus-promotion/internal/service/promotion/domain/derived"
)

// Engine 判断一个优惠是否可用，并给出未满足的条件。
// Engine 不持有可变状态（CEL 缓存除外，它是并发安全的），可以被多个 goroutine 共享。
type Engine struct {
	expressions *ExpressionGuard
}

func NewEngine() *Engine {
	guard, err := NewExpressionGuard()
	if err != nil {
		// 只影响带 Expression 的优惠，它们会因为 guard 为 nil 而失败关闭
		zlog.Error().Err(err).Msg("failed to build CEL environment, expression rules will fail closed")
	}
	return &Engine{expressions: guard}
}

// EvaluateEligibility 评估优惠在整单层面的资格。
func (e *Engine) EvaluateEligibility(offer *domain.Offer, cart *domain.Cart, user *domain.User, ctx *domain.EvalContext) domain.Eligibility {
	var filters domain.QualifyingFilters
	if offer != nil && offer.CurrentVersion != nil {
		filters = offer.CurrentVersion.Filters
	}
	return e.Evaluate(offer, &Scope{
		Cart:    cart,
		User:    user,
		Context: ctx,
		Derived: derived.Compute(cart, filters),
	})
}

// EvaluateLineItemEligibility 把某一行注入作用域后评估。
// 版本配置了 LineRules 时评估 LineRules，否则评估 Rules。Expression 同样生效，表达式里可以读 line。
func (e *Engine) EvaluateLineItemEligibility(offer *domain.Offer, line domain.LineItem, cart *domain.Cart, user *domain.User, ctx *domain.EvalContext) domain.Eligibility {
	var filters domain.QualifyingFilters
	if offer != nil && offer.CurrentVersion != nil {
		filters = offer.CurrentVersion.Filters
	}
	scope := &Scope{
		Cart:    cart,
		User:    user,
		Context: ctx,
		Line:    &line,
		Derived: derived.Compute(cart, filters),
	}
	if reasons := CheckBasicConstraints(offer, user, ctx); len(reasons) > 0 {
		return domain.Eligibility{MissingConditions: reasons, Blocked: true}
	}
	group := offer.CurrentVersion.LineRules
	if group == nil {
		group = offer.CurrentVersion.Rules
	}
	ok, missing := EvaluateGroup(group, scope)
	ok, missing = e.applyExpression(offer.CurrentVersion, scope, ok, missing)
	return domain.Eligibility{Eligible: ok, MissingConditions: missing}
}

// LineQualifies 在已经算好的作用域上按行检查 LineRules，供 evaluator 过滤参与计算的行。
func (e *Engine) LineQualifies(group *domain.RuleGroup, base *Scope, line domain.LineItem) bool {
	if group == nil {
		return true
	}
	scope := *base
	scope.Line = &line
	ok, _ := EvaluateGroup(group, &scope)
	return ok
}

// Evaluate 在给定作用域上评估：先检查基础约束，全部通过后再评估规则树和 CEL 表达式。
func (e *Engine) Evaluate(offer *domain.Offer, scope *Scope) domain.Eligibility {
	var (
		user *domain.User
		ctx  *domain.EvalContext
	)
	if scope != nil {
		user, ctx = scope.User, scope.Context
	}
	if reasons := CheckBasicConstraints(offer, user, ctx); len(reasons) > 0 {
		return domain.Eligibility{MissingConditions: reasons, Blocked: true}
	}

	ok, missing := EvaluateGroup(offer.CurrentVersion.Rules, scope)
	ok, missing = e.applyExpression(offer.CurrentVersion, scope, ok, missing)
	return domain.Eligibility{Eligible: ok, MissingConditions: missing}
}

// applyExpression 在规则树结果上叠加版本的 CEL 表达式，表达式失败或出错都算不满足。
func (e *Engine) applyExpression(version *domain.OfferVersion, scope *Scope, ok bool, missing []string) (bool, []string) {
	expr := strings.TrimSpace(version.Expression)
	if expr == "" {
		return ok, missing
	}
	passed, err := e.evalExpression(expr, scope)
	switch {
	case err != nil:
		return false, append(missing, fmt.Sprintf("expression could not be evaluated: %v", err))
	case !passed:
		return false, append(missing, fmt.Sprintf("expression not satisfied: %s", expr))
	}
	return ok, missing
}

func (e *Engine) evalExpression(expr string, scope *Scope) (bool, error) {
	if e.expressions == nil {
		return false, errors.New("expression engine unavailable")
	}
	return e.expressions.Eval(expr, scope)
}

// CheckBasicConstraints 检查状态、版本、有效期、渠道、区域和使用次数，返回全部不满足的原因。
func CheckBasicConstraints(offer *domain.Offer, user *domain.User, ctx *domain.EvalContext) []string {
	if offer == nil {
		return []string{"offer is missing"}
	}
	var reasons []string

	if offer.Status != domain.OfferStatusActive {
		reasons = append(reasons, fmt.Sprintf("offer is %s", statusText(offer.Status)))
	}
	if offer.CurrentVersion == nil {
		reasons = append(reasons, "offer has no active version")
	}

	now := ctx.CurrentTime()
	if offer.StartsAt != nil && now.Before(*offer.StartsAt) {
		reasons = append(reasons, fmt.Sprintf("offer starts at %s", offer.StartsAt.Format(time.RFC3339)))
	}
	if offer.EndsAt != nil && now.After(*offer.EndsAt) {
		reasons = append(reasons, fmt.Sprintf("offer ended at %s", offer.EndsAt.Format(time.RFC3339)))
	}

	var channel, region string
	if ctx != nil {
		channel, region = ctx.Channel, ctx.Region
	}
	if len(offer.Channels) > 0 && !containsFold(offer.Channels, channel) {
		reasons = append(reasons, fmt.Sprintf("channel %s is not eligible (allowed: %s)",
			orNone(channel), strings.Join(offer.Channels, ", ")))
	}
	if len(offer.Regions) > 0 && !containsFold(offer.Regions, region) {
		reasons = append(reasons, fmt.Sprintf("region %s is not eligible (allowed: %s)",
			orNone(region), strings.Join(offer.Regions, ", ")))
	}

	if offer.UsageLimit > 0 && offer.UsageCount >= offer.UsageLimit {
		reasons = append(reasons, fmt.Sprintf("offer usage limit of %d reached", offer.UsageLimit))
	}
	if offer.PerUserLimit > 0 && user != nil && user.OfferRedemptions[offer.ID] >= offer.PerUserLimit {
		reasons = append(reasons, fmt.Sprintf("per-user limit of %d reached", offer.PerUserLimit))
	}
	return reasons
}

// EvaluateGroup 递归评估规则树。每个子节点都会被评估（不短路），以便收集完整的诊断信息。
// 空组视为通过。
func EvaluateGroup(g *domain.RuleGroup, scope *Scope) (bool, []string) {
	if g == nil || len(g.Children) == 0 {
		return true, nil
	}

	var (
		failures []string
		passed   int
	)
	for i := range g.Children {
		ok, missing := evaluateNode(&g.Children[i], scope)
		if ok {
			passed++
			continue
		}
		failures = append(failures, missing...)
	}

	if g.Logic.Canonical() == domain.LogicAny {
		if passed > 0 {
			return true, nil
		}
		if len(failures) == 0 {
			return false, nil
		}
		return false, []string{describeAny(failures)}
	}

	if passed == len(g.Children) {
		return true, nil
	}
	return false, failures
}

func evaluateNode(n *domain.RuleNode, scope *Scope) (bool, []string) {
	switch {
	case n.Group != nil:
		return EvaluateGroup(n.Group, scope)
	case n.Rule != nil:
		actual := Resolve(n.Rule.Field, scope)
		if Evaluate(n.Rule.Operator, actual, n.Rule.Value) {
			return true, nil
		}
		return false, []string{Describe(n.Rule, actual)}
	}
	// 空节点既不是规则也不是组，视为通过
	return true, nil
}

func statusText(s domain.OfferStatus) string {
	if s == "" {
		return "not active"
	}
	return string(s)
}

func containsFold(list []string, v string) bool {
	for _, x := range list {
		if strings.EqualFold(x, v) {
			return true
		}
	}
	return false
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
