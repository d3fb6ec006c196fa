package domain

// LineAdjustment 是对单行的减免标注，不会修改购物车本身。
type LineAdjustment struct {
	LineID      string         `json:"line_id"`
	Amount      float64        `json:"amount"`
	DisplayText string         `json:"display_text,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// DeferredKind 是购买后才入账的权益类型。
type DeferredKind string

const (
	DeferredCashback      DeferredKind = "cashback"
	DeferredLoyaltyPoints DeferredKind = "loyalty_points"
)

// DeferredBenefit 是不减少购物车金额的权益（返现、积分）。
type DeferredBenefit struct {
	Kind  DeferredKind `json:"kind"`
	Value float64      `json:"value"`
}

// ApplicationPlan 是一个可用优惠成功计算后的结果。
type ApplicationPlan struct {
	OfferID         string           `json:"offer_id"`
	OfferName       string           `json:"offer_name,omitempty"`
	OfferType       OfferType        `json:"offer_type"`
	Scope           OfferScope       `json:"scope"`
	Priority        int              `json:"priority"`
	StackingPolicy  StackingPolicy   `json:"stacking_policy"`
	StackGroup      string           `json:"stack_group,omitempty"`
	VersionID       string           `json:"version_id,omitempty"`
	TotalDiscount   float64          `json:"total_discount"`
	Adjustments     []LineAdjustment `json:"adjustments"`
	AffectedLineIDs []string         `json:"affected_line_ids"`
	DisplayText     string           `json:"display_text,omitempty"`
	Funding         Funding          `json:"funding"`
	Deferred        *DeferredBenefit `json:"deferred,omitempty"`
}

// PotentialOffer 是“差一点就满足”的优惠，用于提示用户。
type PotentialOffer struct {
	OfferID           string   `json:"offer_id"`
	OfferName         string   `json:"offer_name,omitempty"`
	MissingConditions []string `json:"missing_conditions"`
}

// EvaluationResult 是 Offer Evaluator 的输出，尚未做冲突裁决。
type EvaluationResult struct {
	ApplicableOffers []string          `json:"applicable_offers"`
	Plans            []ApplicationPlan `json:"plans"`
	PotentialOffers  []PotentialOffer  `json:"potential_offers"`
	Messages         []string          `json:"messages"`
}

// Eligibility 是规则引擎对一个优惠的判断。
type Eligibility struct {
	Eligible          bool     `json:"eligible"`
	MissingConditions []string `json:"missing_conditions,omitempty"`
	// Blocked 表示基础约束（状态、有效期、渠道等）未通过，此时不会评估规则树。
	Blocked bool `json:"blocked,omitempty"`
}

// RejectionReason 是冲突裁决的拒绝原因。
type RejectionReason string

const (
	RejectMaxOffersReached   RejectionReason = "max_offers_reached"
	RejectBudgetExceeded     RejectionReason = "budget_exceeded"
	RejectExclusiveConflict  RejectionReason = "exclusive_conflict"
	RejectStackGroupConflict RejectionReason = "stack_group_conflict"
	RejectLineLimitExceeded  RejectionReason = "line_limit_exceeded"
)

// RejectionLog 是审计用的拒绝记录，是一等输出。
type RejectionLog struct {
	OfferID string          `json:"offer_id"`
	Reason  RejectionReason `json:"reason"`
	Message string          `json:"message"`
}

// RejectedPlan 把被拒绝的方案和原因放在一起。
type RejectedPlan struct {
	Plan    ApplicationPlan `json:"plan"`
	Reason  RejectionReason `json:"reason"`
	Message string          `json:"message"`
}

// Resolution 是冲突裁决的最终结果。
type Resolution struct {
	Accepted      []ApplicationPlan `json:"accepted"`
	Rejected      []RejectedPlan    `json:"rejected"`
	RejectionLogs []RejectionLog    `json:"rejection_logs"`
	TotalDiscount float64           `json:"total_discount"`
}
