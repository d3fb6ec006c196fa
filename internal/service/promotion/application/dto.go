package application

import (
	"nexus-promotion/internal/service/promotion/domain"
	"nexus-promotion/internal/service/promotion/domain/conflict"
)

// EvaluateCartRequest 是评估购物车的请求体
type EvaluateCartRequest struct {
	Cart    *domain.Cart            `json:"cart"`
	User    *domain.User            `json:"user,omitempty"`
	Context *domain.EvalContext     `json:"context,omitempty"`
	Budget  *conflict.BudgetOptions `json:"budget,omitempty"`
}

// EvaluateCartResponse 同时返回评估结果和裁决结果，调用方可以展示被拒绝的原因
type EvaluateCartResponse struct {
	Evaluation  *domain.EvaluationResult `json:"evaluation"`
	Resolution  *domain.Resolution       `json:"resolution"`
	Assignments map[string]string        `json:"assignments"` // experiment_id -> variant_id
	FinalTotal  float64                  `json:"final_total"`
}

// AssignVariantRequest 是实验分组的请求体
type AssignVariantRequest struct {
	ExperimentID string `json:"experiment_id"`
	Identifier   string `json:"identifier"`
}

// AssignVariantResponse 中 Variant 为空表示未进入实验流量
type AssignVariantResponse struct {
	ExperimentID string          `json:"experiment_id"`
	Variant      *domain.Variant `json:"variant"`
}

// RecordExposureRequest 是上报曝光的请求体
type RecordExposureRequest struct {
	ExperimentID string   `json:"experiment_id"`
	Identifier   string   `json:"identifier"`
	OfferIDs     []string `json:"offer_ids"`
}

// RecordConversionRequest 是上报转化的请求体。ExperimentID 为空时记到该标识参与的所有运行中实验
type RecordConversionRequest struct {
	ExperimentID string  `json:"experiment_id,omitempty"`
	Identifier   string  `json:"identifier"`
	OrderID      string  `json:"order_id"`
	Revenue      float64 `json:"revenue"`
}

// RecordConversionResponse 返回实际记录的转化条数
type RecordConversionResponse struct {
	Recorded int `json:"recorded"`
}
