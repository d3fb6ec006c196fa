package rule

import (
	"fmt"
	"strings"

	"nexus-promotion/internal/service/promotion/domain"
)

// Describe 生成一条给用户看的“还差什么”的说明，按运算符区分措辞。
func Describe(r *domain.Rule, actual any) string {
	label := r.Label
	if label == "" {
		label = r.Field
	}
	want := formatValue(r.Value)
	current := formatValue(actual)

	switch r.Operator {
	case domain.OpGte:
		return fmt.Sprintf("%s must be at least %s (current: %s)", label, want, current)
	case domain.OpGt:
		return fmt.Sprintf("%s must be greater than %s (current: %s)", label, want, current)
	case domain.OpLte:
		return fmt.Sprintf("%s must be at most %s (current: %s)", label, want, current)
	case domain.OpLt:
		return fmt.Sprintf("%s must be less than %s (current: %s)", label, want, current)
	case domain.OpEq:
		return fmt.Sprintf("%s must be %s (current: %s)", label, want, current)
	case domain.OpNeq:
		return fmt.Sprintf("%s must not be %s", label, want)
	case domain.OpIn:
		return fmt.Sprintf("%s must be one of %s (current: %s)", label, want, current)
	case domain.OpNotIn:
		return fmt.Sprintf("%s must not be one of %s (current: %s)", label, want, current)
	case domain.OpExists:
		if b, ok := r.Value.(bool); ok && !b {
			return fmt.Sprintf("%s must not be set", label)
		}
		return fmt.Sprintf("%s is required", label)
	case domain.OpBetween:
		if bounds, ok := toSlice(r.Value); ok && len(bounds) == 2 {
			return fmt.Sprintf("%s must be between %s and %s (current: %s)",
				label, formatValue(bounds[0]), formatValue(bounds[1]), current)
		}
		return fmt.Sprintf("%s must be between %s (current: %s)", label, want, current)
	case domain.OpMatches:
		return fmt.Sprintf("%s must match %s (current: %s)", label, want, current)
	}
	return fmt.Sprintf("%s: unsupported operator %q", label, r.Operator)
}

// describeAny 把失败的 ANY 组合并成一条，用户只需要满足其中之一。
func describeAny(parts []string) string {
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	}
	return "one of: " + strings.Join(parts, " or ")
}
