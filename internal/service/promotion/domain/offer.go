// internal/service/promotion/domain/offer.go
package domain

import "time"

// OfferType 决定了使用哪一个 benefit 策略。集合是封闭的，
// 新增类型必须同时在 benefit.For 中实现。
type OfferType string

const (
	OfferTypePercentDiscount OfferType = "percent_discount"
	OfferTypeFlatDiscount    OfferType = "flat_discount"
	OfferTypePriceOverride   OfferType = "price_override"
	OfferTypeTieredDiscount  OfferType = "tiered_discount"
	OfferTypeBuyXGetY        OfferType = "buy_x_get_y"
	OfferTypeMixAndMatch     OfferType = "mix_and_match"
	OfferTypeCheapestItem    OfferType = "cheapest_item"
	OfferTypeFreeGift        OfferType = "free_gift"
	OfferTypeCashback        OfferType = "cashback"
	OfferTypeLoyaltyPoints   OfferType = "loyalty_points"
)

// OfferTypes 返回全部已知类型。
func OfferTypes() []OfferType {
	return []OfferType{
		OfferTypePercentDiscount, OfferTypeFlatDiscount, OfferTypePriceOverride,
		OfferTypeTieredDiscount, OfferTypeBuyXGetY, OfferTypeMixAndMatch,
		OfferTypeCheapestItem, OfferTypeFreeGift, OfferTypeCashback, OfferTypeLoyaltyPoints,
	}
}

// OfferScope 描述优惠作用的粒度。
type OfferScope string

const (
	ScopeItem     OfferScope = "item"
	ScopeCategory OfferScope = "category"
	ScopeBrand    OfferScope = "brand"
	ScopeCart     OfferScope = "cart"
	ScopeUser     OfferScope = "user"
)

// IsCartLevel 表示优惠先整体计算，再按行分摊。
func (s OfferScope) IsCartLevel() bool {
	return s == ScopeCart || s == ScopeUser
}

// OfferStatus 是优惠的生命周期状态。
type OfferStatus string

const (
	OfferStatusDraft    OfferStatus = "draft"
	OfferStatusActive   OfferStatus = "active"
	OfferStatusPaused   OfferStatus = "paused"
	OfferStatusExpired  OfferStatus = "expired"
	OfferStatusArchived OfferStatus = "archived"
)

// StackingPolicy 决定优惠之间能否叠加。
type StackingPolicy string

const (
	StackingStackable  StackingPolicy = "stackable"
	StackingExclusive  StackingPolicy = "exclusive"
	StackingStackGroup StackingPolicy = "stack_group"
)

// rank 用于同优先级时的排序：互斥优先，其次叠加组，最后可叠加。
func (p StackingPolicy) rank() int {
	switch p {
	case StackingExclusive:
		return 0
	case StackingStackGroup:
		return 1
	default:
		return 2
	}
}

// Funding 记录优惠的出资方，用于对账。
type Funding struct {
	Source           string  `json:"source,omitempty" yaml:"source,omitempty"` // merchant / brand / platform
	SponsorID        string  `json:"sponsor_id,omitempty" yaml:"sponsor_id,omitempty"`
	CampaignID       string  `json:"campaign_id,omitempty" yaml:"campaign_id,omitempty"`
	CostSharePercent float64 `json:"cost_share_percent,omitempty" yaml:"cost_share_percent,omitempty"`
}

// Offer 是优惠的稳定身份。计算权益只看 CurrentVersion。
type Offer struct {
	ID             string         `json:"id" yaml:"id"`
	Name           string         `json:"name" yaml:"name"`
	Type           OfferType      `json:"type" yaml:"type"`
	Scope          OfferScope     `json:"scope" yaml:"scope"`
	Status         OfferStatus    `json:"status" yaml:"status"`
	Priority       int            `json:"priority" yaml:"priority"`
	StackingPolicy StackingPolicy `json:"stacking_policy" yaml:"stacking_policy"`
	StackGroup     string         `json:"stack_group,omitempty" yaml:"stack_group,omitempty"`
	Funding        Funding        `json:"funding" yaml:"funding"`
	StartsAt       *time.Time     `json:"starts_at,omitempty" yaml:"starts_at,omitempty"`
	EndsAt         *time.Time     `json:"ends_at,omitempty" yaml:"ends_at,omitempty"`
	Channels       []string       `json:"channels,omitempty" yaml:"channels,omitempty"`
	Regions        []string       `json:"regions,omitempty" yaml:"regions,omitempty"`
	UsageLimit     int            `json:"usage_limit,omitempty" yaml:"usage_limit,omitempty"`
	UsageCount     int            `json:"usage_count,omitempty" yaml:"usage_count,omitempty"`
	PerUserLimit   int            `json:"per_user_limit,omitempty" yaml:"per_user_limit,omitempty"`
	CurrentVersion *OfferVersion  `json:"current_version,omitempty" yaml:"current_version,omitempty"`
}

// Policy 返回叠加策略，缺省为可叠加。
func (o *Offer) Policy() StackingPolicy {
	if o.StackingPolicy == "" {
		return StackingStackable
	}
	return o.StackingPolicy
}

// LessByPriority 是评估顺序：priority 小的先评估；同优先级时互斥优先，然后按 ID。
func LessByPriority(a, b *Offer) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	if ra, rb := a.Policy().rank(), b.Policy().rank(); ra != rb {
		return ra < rb
	}
	return a.ID < b.ID
}

// OfferVersion 是一份发布后不可变的配置。
// 任何修改都应该生成一个新版本，而不是原地更新。
type OfferVersion struct {
	ID          string            `json:"id" yaml:"id"`
	Version     int32             `json:"version" yaml:"version"`
	PublishedAt *time.Time        `json:"published_at,omitempty" yaml:"published_at,omitempty"`
	Benefit     Benefit           `json:"benefit" yaml:"benefit"`
	Filters     QualifyingFilters `json:"filters" yaml:"filters"`
	Caps        Caps              `json:"caps" yaml:"caps"`
	Rules       *RuleGroup        `json:"rules,omitempty" yaml:"rules,omitempty"`
	// LineRules 按行评估（规则里可以引用 line.*），只有通过的行才参与计算。
	LineRules *RuleGroup `json:"line_rules,omitempty" yaml:"line_rules,omitempty"`
	// Expression 是可选的 CEL 条件，和规则树一起构成资格判断。
	Expression string `json:"expression,omitempty" yaml:"expression,omitempty"`
}

// QualifyingFilters 选出优惠可以作用的行。排除条件总是先检查。
type QualifyingFilters struct {
	IncludeSKUs             []string `json:"include_skus,omitempty" yaml:"include_skus,omitempty"`
	IncludeCategories       []string `json:"include_categories,omitempty" yaml:"include_categories,omitempty"`
	IncludeBrands           []string `json:"include_brands,omitempty" yaml:"include_brands,omitempty"`
	IncludeTags             []string `json:"include_tags,omitempty" yaml:"include_tags,omitempty"`
	IncludeTemperatureZones []string `json:"include_temperature_zones,omitempty" yaml:"include_temperature_zones,omitempty"`
	ExcludeSKUs             []string `json:"exclude_skus,omitempty" yaml:"exclude_skus,omitempty"`
	ExcludeCategories       []string `json:"exclude_categories,omitempty" yaml:"exclude_categories,omitempty"`
	ExcludeBrands           []string `json:"exclude_brands,omitempty" yaml:"exclude_brands,omitempty"`
	ExcludeTags             []string `json:"exclude_tags,omitempty" yaml:"exclude_tags,omitempty"`
	ExcludeTemperatureZones []string `json:"exclude_temperature_zones,omitempty" yaml:"exclude_temperature_zones,omitempty"`
}

// HasInclusions 表示是否存在任一包含条件。
func (f QualifyingFilters) HasInclusions() bool {
	return len(f.IncludeSKUs) > 0 || len(f.IncludeCategories) > 0 || len(f.IncludeBrands) > 0 ||
		len(f.IncludeTags) > 0 || len(f.IncludeTemperatureZones) > 0
}

// RoundingMode 是金额取整方式。
type RoundingMode string

const (
	RoundHalfUp RoundingMode = "half_up"
	RoundFloor  RoundingMode = "floor"
	RoundCeil   RoundingMode = "ceil"
)

// Caps 在每个策略的最后一步生效。
type Caps struct {
	MaxDiscountAmount float64      `json:"max_discount_amount,omitempty" yaml:"max_discount_amount,omitempty"`
	MinPriceFloor     float64      `json:"min_price_floor,omitempty" yaml:"min_price_floor,omitempty"`
	Rounding          RoundingMode `json:"rounding,omitempty" yaml:"rounding,omitempty"`
}
