// internal/service/promotion/domain/cart.go
package domain

import "time"

// LineItem 是购物车中的一行商品。它在整个评估过程中是只读的，
// 优惠计算只会产出调整项（LineAdjustment），永远不会修改它。
type LineItem struct {
	ID              string         `json:"id" yaml:"id"`
	SKU             string         `json:"sku" yaml:"sku"`
	ProductID       string         `json:"product_id,omitempty" yaml:"product_id,omitempty"`
	VariantID       string         `json:"variant_id,omitempty" yaml:"variant_id,omitempty"`
	UnitPrice       float64        `json:"unit_price" yaml:"unit_price"`
	Quantity        int            `json:"quantity" yaml:"quantity"`
	ExtendedPrice   float64        `json:"extended_price,omitempty" yaml:"extended_price,omitempty"`
	Category        string         `json:"category,omitempty" yaml:"category,omitempty"`
	Brand           string         `json:"brand,omitempty" yaml:"brand,omitempty"`
	Tags            []string       `json:"tags,omitempty" yaml:"tags,omitempty"`
	TemperatureZone string         `json:"temperature_zone,omitempty" yaml:"temperature_zone,omitempty"`
	Attributes      map[string]any `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// Key 返回行的唯一标识，缺省时退回 SKU。
func (l LineItem) Key() string {
	if l.ID != "" {
		return l.ID
	}
	return l.SKU
}

// Total 返回行的扩展价格；未提供时按 单价*数量 计算。
func (l LineItem) Total() float64 {
	if l.ExtendedPrice > 0 {
		return l.ExtendedPrice
	}
	if l.Quantity <= 0 || l.UnitPrice <= 0 {
		return 0
	}
	return l.UnitPrice * float64(l.Quantity)
}

// EffectiveUnitPrice 返回用于单件级计算的单价。
func (l LineItem) EffectiveUnitPrice() float64 {
	if l.UnitPrice > 0 {
		return l.UnitPrice
	}
	if l.Quantity > 0 {
		return l.Total() / float64(l.Quantity)
	}
	return 0
}

// Cart 是评估的输入购物车。
type Cart struct {
	ID         string     `json:"id" yaml:"id"`
	Currency   string     `json:"currency,omitempty" yaml:"currency,omitempty"`
	Lines      []LineItem `json:"lines" yaml:"lines"`
	Subtotal   float64    `json:"subtotal,omitempty" yaml:"subtotal,omitempty"`
	Fees       float64    `json:"fees,omitempty" yaml:"fees,omitempty"`
	Taxes      float64    `json:"taxes,omitempty" yaml:"taxes,omitempty"`
	GrandTotal float64    `json:"grand_total,omitempty" yaml:"grand_total,omitempty"`
}

// SubtotalAmount 返回小计，未提供时由行汇总。
func (c *Cart) SubtotalAmount() float64 {
	if c == nil {
		return 0
	}
	if c.Subtotal > 0 {
		return c.Subtotal
	}
	var sum float64
	for _, l := range c.Lines {
		sum += l.Total()
	}
	return sum
}

// GrandTotalAmount 返回总计，未提供时为 小计+费用+税。
func (c *Cart) GrandTotalAmount() float64 {
	if c == nil {
		return 0
	}
	if c.GrandTotal > 0 {
		return c.GrandTotal
	}
	return c.SubtotalAmount() + c.Fees + c.Taxes
}

// ItemCount 返回购物车内商品件数。
func (c *Cart) ItemCount() int {
	if c == nil {
		return 0
	}
	n := 0
	for _, l := range c.Lines {
		n += l.Quantity
	}
	return n
}

// Line 按 Key 查找购物车行。
func (c *Cart) Line(key string) (LineItem, bool) {
	if c == nil {
		return LineItem{}, false
	}
	for _, l := range c.Lines {
		if l.Key() == key {
			return l, true
		}
	}
	return LineItem{}, false
}

// User 只用于规则评估，评估过程中不会被修改。
type User struct {
	ID               string         `json:"id" yaml:"id"`
	Tags             []string       `json:"tags,omitempty" yaml:"tags,omitempty"`
	Segments         []string       `json:"segments,omitempty" yaml:"segments,omitempty"`
	LifecycleStage   string         `json:"lifecycle_stage,omitempty" yaml:"lifecycle_stage,omitempty"`
	OrderCount       int            `json:"order_count" yaml:"order_count"`
	TotalSpent       float64        `json:"total_spent,omitempty" yaml:"total_spent,omitempty"`
	FirstOrderAt     *time.Time     `json:"first_order_at,omitempty" yaml:"first_order_at,omitempty"`
	LastOrderAt      *time.Time     `json:"last_order_at,omitempty" yaml:"last_order_at,omitempty"`
	OfferRedemptions map[string]int `json:"offer_redemptions,omitempty" yaml:"offer_redemptions,omitempty"`
	Attributes       map[string]any `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// EvalContext 描述一次评估请求所处的环境。
type EvalContext struct {
	Now          time.Time      `json:"now" yaml:"now"`
	Channel      string         `json:"channel,omitempty" yaml:"channel,omitempty"`
	Region       string         `json:"region,omitempty" yaml:"region,omitempty"`
	StoreID      string         `json:"store_id,omitempty" yaml:"store_id,omitempty"`
	DeliveryZone string         `json:"delivery_zone,omitempty" yaml:"delivery_zone,omitempty"`
	SessionID    string         `json:"session_id,omitempty" yaml:"session_id,omitempty"`
	Attributes   map[string]any `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// CurrentTime 返回评估时间，零值时取当前时间。
func (c *EvalContext) CurrentTime() time.Time {
	if c == nil || c.Now.IsZero() {
		return time.Now()
	}
	return c.Now
}
