package domain

import "strings"

// Operator 是规则使用的比较运算符，集合封闭。
type Operator string

const (
	OpEq      Operator = "eq"
	OpNeq     Operator = "neq"
	OpGt      Operator = "gt"
	OpGte     Operator = "gte"
	OpLt      Operator = "lt"
	OpLte     Operator = "lte"
	OpIn      Operator = "in"
	OpNotIn   Operator = "not_in"
	OpExists  Operator = "exists"
	OpBetween Operator = "between"
	OpMatches Operator = "matches"
)

// Logic 是规则组的组合方式。
type Logic string

const (
	LogicAll Logic = "ALL"
	LogicAny Logic = "ANY"
)

// Canonical 返回大写形式，配置里写 all/any 也能识别。空值视为 ALL。
func (l Logic) Canonical() Logic {
	c := Logic(strings.ToUpper(strings.TrimSpace(string(l))))
	if c == "" {
		return LogicAll
	}
	return c
}

// Valid 判断是否是已知的组合方式
func (l Logic) Valid() bool {
	c := l.Canonical()
	return c == LogicAll || c == LogicAny
}

// Rule 是一个单独的谓词。
type Rule struct {
	Field    string   `json:"field" yaml:"field"`
	Operator Operator `json:"operator" yaml:"operator"`
	Value    any      `json:"value,omitempty" yaml:"value,omitempty"`
	// Label 用于诊断信息，缺省时使用 Field。
	Label string `json:"label,omitempty" yaml:"label,omitempty"`
}

// RuleNode 要么是叶子 Rule，要么是嵌套的 RuleGroup。
type RuleNode struct {
	Rule  *Rule      `json:"rule,omitempty" yaml:"rule,omitempty"`
	Group *RuleGroup `json:"group,omitempty" yaml:"group,omitempty"`
}

// RuleGroup 拥有自己的子节点，由存储的配置自顶向下构建，不会出现环。
type RuleGroup struct {
	Logic    Logic      `json:"logic" yaml:"logic"`
	Children []RuleNode `json:"children" yaml:"children"`
}

// All 和 Any 是构造规则树的便捷函数。
func All(children ...RuleNode) *RuleGroup {
	return &RuleGroup{Logic: LogicAll, Children: children}
}

func Any(children ...RuleNode) *RuleGroup {
	return &RuleGroup{Logic: LogicAny, Children: children}
}

// Leaf 把一个 Rule 包装成节点。
func Leaf(field string, op Operator, value any) RuleNode {
	return RuleNode{Rule: &Rule{Field: field, Operator: op, Value: value}}
}

// Nested 把一个 RuleGroup 包装成节点。
func Nested(g *RuleGroup) RuleNode {
	return RuleNode{Group: g}
}
