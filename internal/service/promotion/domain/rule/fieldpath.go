// internal/service/promotion/domain/rule/fieldpath.go
package rule

import (
	"strings"

	"nexus-promotion/internal/service/promotion/domain"
	"nexus-promotion/internal/service/promotion/domain/derived"
)

// Scope 是一次规则评估能看到的全部数据。Line 只在按行评估时存在。
type Scope struct {
	Cart    *domain.Cart
	User    *domain.User
	Context *domain.EvalContext
	Line    *domain.LineItem
	Derived *derived.Fields
}

// Resolve 按点分路径取值。路径上任何一段缺失都返回 nil（视为“未定义”），不会 panic。
// 未知的根会落到当前行的 Attributes 上。
func Resolve(path string, s *Scope) any {
	if s == nil || path == "" {
		return nil
	}
	parts := strings.Split(path, ".")
	root, rest := parts[0], parts[1:]

	switch root {
	case "cart":
		return resolveCart(s.Cart, rest)
	case "user":
		return resolveUser(s.User, rest)
	case "context":
		return resolveContext(s.Context, rest)
	case "line":
		if s.Line == nil {
			return nil
		}
		return resolveLine(*s.Line, rest)
	case "derived":
		return resolveDerived(s.Derived, rest)
	case "current_time":
		if len(rest) > 0 {
			return nil
		}
		return s.Context.CurrentTime()
	}

	if s.Line == nil {
		return nil
	}
	return descend(s.Line.Attributes, parts)
}

func resolveCart(c *domain.Cart, rest []string) any {
	if c == nil || len(rest) == 0 {
		return nil
	}
	var v any
	switch rest[0] {
	case "id":
		v = c.ID
	case "currency":
		v = c.Currency
	case "subtotal":
		v = c.SubtotalAmount()
	case "fees":
		v = c.Fees
	case "taxes":
		v = c.Taxes
	case "grand_total":
		v = c.GrandTotalAmount()
	case "item_count":
		v = c.ItemCount()
	case "line_count":
		v = len(c.Lines)
	case "skus":
		v = collect(c.Lines, func(l domain.LineItem) string { return l.SKU })
	case "categories":
		v = collect(c.Lines, func(l domain.LineItem) string { return l.Category })
	case "brands":
		v = collect(c.Lines, func(l domain.LineItem) string { return l.Brand })
	default:
		return nil
	}
	return descend(v, rest[1:])
}

func resolveUser(u *domain.User, rest []string) any {
	if u == nil || len(rest) == 0 {
		return nil
	}
	var v any
	switch rest[0] {
	case "id":
		v = u.ID
	case "tags":
		v = u.Tags
	case "segments":
		v = u.Segments
	case "lifecycle_stage":
		v = u.LifecycleStage
	case "order_count":
		v = u.OrderCount
	case "total_spent":
		v = u.TotalSpent
	case "first_order_at":
		if u.FirstOrderAt == nil {
			return nil
		}
		v = *u.FirstOrderAt
	case "last_order_at":
		if u.LastOrderAt == nil {
			return nil
		}
		v = *u.LastOrderAt
	case "is_new":
		v = u.OrderCount == 0
	case "attributes":
		v = u.Attributes
	default:
		return descend(u.Attributes, rest)
	}
	return descend(v, rest[1:])
}

func resolveContext(c *domain.EvalContext, rest []string) any {
	if c == nil || len(rest) == 0 {
		return nil
	}
	var v any
	switch rest[0] {
	case "channel":
		v = c.Channel
	case "region":
		v = c.Region
	case "store_id":
		v = c.StoreID
	case "delivery_zone":
		v = c.DeliveryZone
	case "session_id":
		v = c.SessionID
	case "now":
		v = c.CurrentTime()
	case "attributes":
		v = c.Attributes
	default:
		return descend(c.Attributes, rest)
	}
	return descend(v, rest[1:])
}

func resolveLine(l domain.LineItem, rest []string) any {
	if len(rest) == 0 {
		return nil
	}
	var v any
	switch rest[0] {
	case "id":
		v = l.ID
	case "sku":
		v = l.SKU
	case "product_id":
		v = l.ProductID
	case "variant_id":
		v = l.VariantID
	case "unit_price":
		v = l.EffectiveUnitPrice()
	case "quantity":
		v = l.Quantity
	case "extended_price":
		v = l.Total()
	case "category":
		v = l.Category
	case "brand":
		v = l.Brand
	case "tags":
		v = l.Tags
	case "temperature_zone":
		v = l.TemperatureZone
	case "attributes":
		v = l.Attributes
	default:
		return descend(l.Attributes, rest)
	}
	return descend(v, rest[1:])
}

func resolveDerived(f *derived.Fields, rest []string) any {
	if f == nil || len(rest) == 0 {
		return nil
	}
	var v any
	switch rest[0] {
	case "eligible_item_count":
		v = f.EligibleItemCount
	case "total_quantity":
		v = f.TotalQuantity
	case "distinct_sku_count":
		v = f.DistinctSKUCount
	case "qualifying_subtotal":
		v = f.QualifyingSubtotal
	case "category_totals":
		v = f.CategoryTotals
	case "brand_totals":
		v = f.BrandTotals
	case "tag_totals":
		v = f.TagTotals
	case "category_quantities":
		v = f.CategoryQuantities
	case "brand_quantities":
		v = f.BrandQuantities
	case "tag_quantities":
		v = f.TagQuantities
	default:
		return nil
	}
	return descend(v, rest[1:])
}

// descend 沿着剩余路径进入嵌套的 map。标量上还有剩余路径时返回 nil。
func descend(v any, rest []string) any {
	for _, key := range rest {
		switch m := v.(type) {
		case map[string]any:
			v = lookup(m, key)
		case map[string]float64:
			f, ok := m[strings.ToLower(key)]
			if !ok {
				return nil
			}
			v = f
		case map[string]int:
			n, ok := m[strings.ToLower(key)]
			if !ok {
				return nil
			}
			v = n
		case map[string]string:
			s, ok := m[key]
			if !ok {
				return nil
			}
			v = s
		default:
			return nil
		}
		if v == nil {
			return nil
		}
	}
	return v
}

func lookup(m map[string]any, key string) any {
	if m == nil {
		return nil
	}
	if v, ok := m[key]; ok {
		return v
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return nil
}

func collect(lines []domain.LineItem, pick func(domain.LineItem) string) []string {
	seen := make(map[string]struct{}, len(lines))
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		v := pick(l)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
