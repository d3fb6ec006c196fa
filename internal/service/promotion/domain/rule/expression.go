// internal/service/promotion/domain/rule/expression.go
package rule

import (
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"

	"nexus-promotion/internal/service/promotion/domain"
)

// ExpressionGuard 编译并执行优惠版本上的 CEL 条件。
// 编译结果按表达式文本缓存；任何编译或执行错误都会让条件不成立。
type ExpressionGuard struct {
	env      *cel.Env
	programs sync.Map // expression -> cel.Program
}

func NewExpressionGuard() (*ExpressionGuard, error) {
	dynMap := cel.MapType(cel.StringType, cel.DynType)
	env, err := cel.NewEnv(
		cel.Variable("cart", dynMap),
		cel.Variable("user", dynMap),
		cel.Variable("context", dynMap),
		cel.Variable("derived", dynMap),
		cel.Variable("line", dynMap),
		cel.CrossTypeNumericComparisons(true),
	)
	if err != nil {
		return nil, err
	}
	return &ExpressionGuard{env: env}, nil
}

// Compile 解析并检查表达式，结果类型必须是 bool（或 dyn，运行时再校验）。
func (g *ExpressionGuard) Compile(expr string) (cel.Program, error) {
	if cached, ok := g.programs.Load(expr); ok {
		return cached.(cel.Program), nil
	}

	ast, iss := g.env.Parse(expr)
	if iss.Err() != nil {
		return nil, iss.Err()
	}
	checked, iss := g.env.Check(ast)
	if iss.Err() != nil {
		return nil, iss.Err()
	}
	out := checked.OutputType()
	if !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, errors.Errorf("expression must evaluate to bool, got %s", out)
	}

	prg, err := g.env.Program(checked)
	if err != nil {
		return nil, err
	}
	actual, _ := g.programs.LoadOrStore(expr, prg)
	return actual.(cel.Program), nil
}

// Eval 执行表达式。结果不是 bool 时返回错误。
func (g *ExpressionGuard) Eval(expr string, scope *Scope) (bool, error) {
	prg, err := g.Compile(expr)
	if err != nil {
		return false, err
	}
	result, _, err := prg.Eval(activation(scope))
	if err != nil {
		return false, err
	}
	b, ok := result.Value().(bool)
	if !ok {
		return false, errors.Errorf("expression returned %T, want bool", result.Value())
	}
	return b, nil
}

func activation(s *Scope) map[string]any {
	vars := map[string]any{
		"cart":    map[string]any{},
		"user":    map[string]any{},
		"context": map[string]any{},
		"derived": map[string]any{},
		"line":    map[string]any{},
	}
	if s == nil {
		return vars
	}
	if c := s.Cart; c != nil {
		vars["cart"] = map[string]any{
			"id":          c.ID,
			"currency":    c.Currency,
			"subtotal":    c.SubtotalAmount(),
			"fees":        c.Fees,
			"taxes":       c.Taxes,
			"grand_total": c.GrandTotalAmount(),
			"item_count":  c.ItemCount(),
			"line_count":  len(c.Lines),
			"skus":        collect(c.Lines, func(l domain.LineItem) string { return l.SKU }),
			"categories":  collect(c.Lines, func(l domain.LineItem) string { return l.Category }),
			"brands":      collect(c.Lines, func(l domain.LineItem) string { return l.Brand }),
		}
	}
	if u := s.User; u != nil {
		m := map[string]any{
			"id":              u.ID,
			"tags":            nonNil(u.Tags),
			"segments":        nonNil(u.Segments),
			"lifecycle_stage": u.LifecycleStage,
			"order_count":     u.OrderCount,
			"total_spent":     u.TotalSpent,
			"is_new":          u.OrderCount == 0,
			"attributes":      nonNilMap(u.Attributes),
		}
		if u.FirstOrderAt != nil {
			m["first_order_at"] = *u.FirstOrderAt
		}
		if u.LastOrderAt != nil {
			m["last_order_at"] = *u.LastOrderAt
		}
		vars["user"] = m
	}
	if c := s.Context; c != nil {
		vars["context"] = map[string]any{
			"channel":       c.Channel,
			"region":        c.Region,
			"store_id":      c.StoreID,
			"delivery_zone": c.DeliveryZone,
			"session_id":    c.SessionID,
			"now":           c.CurrentTime(),
			"attributes":    nonNilMap(c.Attributes),
		}
	}
	if f := s.Derived; f != nil {
		vars["derived"] = map[string]any{
			"eligible_item_count": f.EligibleItemCount,
			"total_quantity":      f.TotalQuantity,
			"distinct_sku_count":  f.DistinctSKUCount,
			"qualifying_subtotal": f.QualifyingSubtotal,
			"category_totals":     f.CategoryTotals,
			"brand_totals":        f.BrandTotals,
			"tag_totals":          f.TagTotals,
			"category_quantities": f.CategoryQuantities,
			"brand_quantities":    f.BrandQuantities,
			"tag_quantities":      f.TagQuantities,
		}
	}
	if l := s.Line; l != nil {
		vars["line"] = map[string]any{
			"id":               l.ID,
			"sku":              l.SKU,
			"product_id":       l.ProductID,
			"unit_price":       l.EffectiveUnitPrice(),
			"quantity":         l.Quantity,
			"extended_price":   l.Total(),
			"category":         l.Category,
			"brand":            l.Brand,
			"tags":             nonNil(l.Tags),
			"temperature_zone": l.TemperatureZone,
			"attributes":       nonNilMap(l.Attributes),
		}
	}
	return vars
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
