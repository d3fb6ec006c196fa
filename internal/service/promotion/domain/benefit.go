package domain

// Benefit 是按 OfferType 区分的参数块。只有与 Offer.Type 对应的那一块会被读取，
// 其余字段即使存在也会被忽略。
type Benefit struct {
	Percent       *PercentBenefit       `json:"percent,omitempty" yaml:"percent,omitempty"`
	Flat          *FlatBenefit          `json:"flat,omitempty" yaml:"flat,omitempty"`
	PriceOverride *PriceOverrideBenefit `json:"price_override,omitempty" yaml:"price_override,omitempty"`
	Tiered        *TieredBenefit        `json:"tiered,omitempty" yaml:"tiered,omitempty"`
	BuyXGetY      *BuyXGetYBenefit      `json:"buy_x_get_y,omitempty" yaml:"buy_x_get_y,omitempty"`
	MixAndMatch   *MixAndMatchBenefit   `json:"mix_and_match,omitempty" yaml:"mix_and_match,omitempty"`
	CheapestItem  *CheapestItemBenefit  `json:"cheapest_item,omitempty" yaml:"cheapest_item,omitempty"`
	FreeGift      *FreeGiftBenefit      `json:"free_gift,omitempty" yaml:"free_gift,omitempty"`
	Cashback      *CashbackBenefit      `json:"cashback,omitempty" yaml:"cashback,omitempty"`
	LoyaltyPoints *LoyaltyPointsBenefit `json:"loyalty_points,omitempty" yaml:"loyalty_points,omitempty"`
}

type PercentBenefit struct {
	Percent float64 `json:"percent" yaml:"percent"`
}

// FlatBenefit：行级作用域时 Amount 是每件减免，整单作用域时是一次性减免。
type FlatBenefit struct {
	Amount float64 `json:"amount" yaml:"amount"`
}

// PriceOverrideBenefit：行级作用域时 Price 是新的单价，整单作用域时是打包价。
type PriceOverrideBenefit struct {
	Price float64 `json:"price" yaml:"price"`
}

type Tier struct {
	MinQty          int     `json:"min_qty" yaml:"min_qty"`
	MaxQty          int     `json:"max_qty,omitempty" yaml:"max_qty,omitempty"` // 0 表示无上限
	DiscountPercent float64 `json:"discount_percent,omitempty" yaml:"discount_percent,omitempty"`
	DiscountAmount  float64 `json:"discount_amount,omitempty" yaml:"discount_amount,omitempty"`
	PricePerUnit    float64 `json:"price_per_unit,omitempty" yaml:"price_per_unit,omitempty"`
}

type TieredBenefit struct {
	Tiers   []Tier `json:"tiers" yaml:"tiers"`
	PerItem bool   `json:"per_item,omitempty" yaml:"per_item,omitempty"`
}

// 单件排序方式
const (
	SelectLowestPriced  = "lowest_priced"
	SelectHighestPriced = "highest_priced"
)

type BuyXGetYBenefit struct {
	BuyQty             int      `json:"buy_qty" yaml:"buy_qty"`
	GetQty             int      `json:"get_qty" yaml:"get_qty"`
	GetDiscountPercent *float64 `json:"get_discount_percent,omitempty" yaml:"get_discount_percent,omitempty"`
	MaxSets            int      `json:"max_sets,omitempty" yaml:"max_sets,omitempty"`
	Selection          string   `json:"selection,omitempty" yaml:"selection,omitempty"`
}

type MixGroup struct {
	Name     string            `json:"name" yaml:"name"`
	Filters  QualifyingFilters `json:"filters" yaml:"filters"`
	Quantity int               `json:"quantity,omitempty" yaml:"quantity,omitempty"`
}

type MixAndMatchBenefit struct {
	Groups          []MixGroup `json:"groups" yaml:"groups"`
	ComboPrice      float64    `json:"combo_price,omitempty" yaml:"combo_price,omitempty"`
	DiscountPercent float64    `json:"discount_percent,omitempty" yaml:"discount_percent,omitempty"`
	DiscountAmount  float64    `json:"discount_amount,omitempty" yaml:"discount_amount,omitempty"`
	MaxCombos       int        `json:"max_combos,omitempty" yaml:"max_combos,omitempty"`
}

type CheapestItemBenefit struct {
	MinItems        int      `json:"min_items,omitempty" yaml:"min_items,omitempty"`
	DiscountCount   int      `json:"discount_count,omitempty" yaml:"discount_count,omitempty"`
	DiscountPercent *float64 `json:"discount_percent,omitempty" yaml:"discount_percent,omitempty"`
}

type FreeGiftBenefit struct {
	GiftSKUs   []string `json:"gift_skus" yaml:"gift_skus"`
	MaxFreeQty int      `json:"max_free_qty,omitempty" yaml:"max_free_qty,omitempty"`
}

type CashbackBenefit struct {
	Percent     float64 `json:"percent,omitempty" yaml:"percent,omitempty"`
	Amount      float64 `json:"amount,omitempty" yaml:"amount,omitempty"`
	MaxCashback float64 `json:"max_cashback,omitempty" yaml:"max_cashback,omitempty"`
}

type LoyaltyPointsBenefit struct {
	PointsPerUnit float64 `json:"points_per_unit,omitempty" yaml:"points_per_unit,omitempty"` // 每 1 个货币单位获得的积分
	FixedPoints   float64 `json:"fixed_points,omitempty" yaml:"fixed_points,omitempty"`
	Multiplier    float64 `json:"multiplier,omitempty" yaml:"multiplier,omitempty"`
}
