// internal/service/promotion/domain/rule/operator.go
package rule

import (
	"math"
	"regexp"
	"strings"
	"sync"

	zlog "github.com/rs/zerolog/log"

	"nexus-promotion/internal/service/promotion/domain"
)

// patterns 缓存 matches 运算符编译过的正则，key 是原始 pattern。
var patterns sync.Map

// Evaluate 对一个实际值执行运算符。实际值为 nil 时，除了 exists(false) 以外一律不匹配。
// 未知运算符和非法正则都按不匹配处理。
func Evaluate(op domain.Operator, actual, expected any) bool {
	if op == domain.OpExists {
		return exists(actual, expected)
	}
	if actual == nil {
		return false
	}

	switch op {
	case domain.OpEq:
		return equal(actual, expected)
	case domain.OpNeq:
		return !equal(actual, expected)
	case domain.OpGt:
		c, ok := compare(actual, expected)
		return ok && c > 0
	case domain.OpGte:
		c, ok := compare(actual, expected)
		return ok && c >= 0
	case domain.OpLt:
		c, ok := compare(actual, expected)
		return ok && c < 0
	case domain.OpLte:
		c, ok := compare(actual, expected)
		return ok && c <= 0
	case domain.OpIn:
		return contains(actual, expected)
	case domain.OpNotIn:
		return !contains(actual, expected)
	case domain.OpBetween:
		return between(actual, expected)
	case domain.OpMatches:
		return matches(actual, expected)
	}

	zlog.Warn().Str("operator", string(op)).Msg("unknown rule operator, treating as non-matching")
	return false
}

func equal(a, b any) bool {
	if b == nil {
		return false
	}

	as, aIsSlice := toSlice(a)
	bs, bIsSlice := toSlice(b)
	if aIsSlice || bIsSlice {
		if !aIsSlice || !bIsSlice || len(as) != len(bs) {
			return false
		}
		for i := range as {
			if !equal(as[i], bs[i]) {
				return false
			}
		}
		return true
	}

	if isTime(a) || isTime(b) {
		ta, okA := toTime(a)
		tb, okB := toTime(b)
		return okA && okB && ta.Equal(tb)
	}

	if isNumber(a) || isNumber(b) {
		fa, okA := toFloat(a)
		fb, okB := toFloat(b)
		if okA && okB {
			return math.Abs(fa-fb) < epsilon
		}
		return false
	}

	if ba, ok := a.(bool); ok {
		bb, ok := b.(bool)
		return ok && ba == bb
	}

	sa, okA := a.(string)
	sb, okB := b.(string)
	if okA && okB {
		if strings.EqualFold(sa, sb) {
			return true
		}
		ta, okA := toTime(sa)
		tb, okB := toTime(sb)
		return okA && okB && ta.Equal(tb)
	}
	return false
}

// compare 先尝试数值比较，再尝试时间比较。两者都不行时返回 ok=false。
func compare(a, b any) (int, bool) {
	if fa, okA := toFloat(a); okA {
		if fb, okB := toFloat(b); okB {
			switch {
			case math.Abs(fa-fb) < epsilon:
				return 0, true
			case fa < fb:
				return -1, true
			default:
				return 1, true
			}
		}
	}
	ta, okA := toTime(a)
	tb, okB := toTime(b)
	if !okA || !okB {
		return 0, false
	}
	return ta.Compare(tb), true
}

// contains：期望值是列表（或逗号分隔的字符串）；实际值是列表时任一元素命中即可。
func contains(actual, expected any) bool {
	list, ok := toSlice(expected)
	if !ok {
		if s, isStr := expected.(string); isStr && strings.Contains(s, ",") {
			for _, p := range strings.Split(s, ",") {
				list = append(list, strings.TrimSpace(p))
			}
		} else if expected != nil {
			list = []any{expected}
		}
	}
	if len(list) == 0 {
		return false
	}

	candidates, isSlice := toSlice(actual)
	if !isSlice {
		candidates = []any{actual}
	}
	for _, c := range candidates {
		for _, want := range list {
			if equal(c, want) {
				return true
			}
		}
	}
	return false
}

func exists(actual, expected any) bool {
	want := true
	if b, ok := expected.(bool); ok {
		want = b
	}
	return !isAbsent(actual) == want
}

// between 是闭区间，支持数值和时间。
func between(actual, expected any) bool {
	bounds, ok := toSlice(expected)
	if !ok || len(bounds) != 2 {
		zlog.Warn().Interface("expected", expected).Msg("between expects a two-element [min, max] list")
		return false
	}
	lo, okLo := compare(actual, bounds[0])
	hi, okHi := compare(actual, bounds[1])
	return okLo && okHi && lo >= 0 && hi <= 0
}

func matches(actual, expected any) bool {
	s, ok := actual.(string)
	if !ok {
		return false
	}
	pattern, ok := expected.(string)
	if !ok || pattern == "" {
		return false
	}
	re, err := compilePattern(pattern)
	if err != nil {
		zlog.Warn().Err(err).Str("pattern", pattern).Msg("invalid rule pattern, treating as non-matching")
		return false
	}
	return re.MatchString(s)
}

func compilePattern(pattern string) (*regexp.Regexp, error) {
	if cached, ok := patterns.Load(pattern); ok {
		return cached.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, err
	}
	patterns.Store(pattern, re)
	return re, nil
}
