// internal/service/promotion/domain/experiment.go
package domain

import "time"

// ExperimentStatus 是实验的生命周期状态。
type ExperimentStatus string

const (
	ExperimentDraft     ExperimentStatus = "draft"
	ExperimentRunning   ExperimentStatus = "running"
	ExperimentPaused    ExperimentStatus = "paused"
	ExperimentCompleted ExperimentStatus = "completed"
)

// Variant 是实验的一个分组，决定用户能看到哪些优惠。
type Variant struct {
	ID        string   `json:"id" yaml:"id"`
	Name      string   `json:"name,omitempty" yaml:"name,omitempty"`
	Weight    int      `json:"weight" yaml:"weight"`
	OfferIDs  []string `json:"offer_ids,omitempty" yaml:"offer_ids,omitempty"`
	IsControl bool     `json:"is_control,omitempty" yaml:"is_control,omitempty"`
}

// Exposes 判断该分组是否暴露了指定优惠。
func (v *Variant) Exposes(offerID string) bool {
	if v == nil {
		return false
	}
	for _, id := range v.OfferIDs {
		if id == offerID {
			return true
		}
	}
	return false
}

// Experiment 是一个优惠 A/B 实验。
type Experiment struct {
	ID             string           `json:"id" yaml:"id"`
	Name           string           `json:"name,omitempty" yaml:"name,omitempty"`
	Status         ExperimentStatus `json:"status" yaml:"status"`
	TrafficPercent float64          `json:"traffic_percent" yaml:"traffic_percent"`
	Variants       []Variant        `json:"variants" yaml:"variants"`
	StartsAt       *time.Time       `json:"starts_at,omitempty" yaml:"starts_at,omitempty"`
	EndsAt         *time.Time       `json:"ends_at,omitempty" yaml:"ends_at,omitempty"`
}

// IsRunning 判断实验在 at 时刻是否在运行。
func (e *Experiment) IsRunning(at time.Time) bool {
	if e.Status != ExperimentRunning {
		return false
	}
	if e.StartsAt != nil && at.Before(*e.StartsAt) {
		return false
	}
	if e.EndsAt != nil && at.After(*e.EndsAt) {
		return false
	}
	return true
}

// Variant 按 ID 查找分组。
func (e *Experiment) Variant(id string) *Variant {
	for i := range e.Variants {
		if e.Variants[i].ID == id {
			return &e.Variants[i]
		}
	}
	return nil
}

// Controls 判断某个优惠是否受该实验控制（出现在任一分组里）。
func (e *Experiment) Controls(offerID string) bool {
	for i := range e.Variants {
		if e.Variants[i].Exposes(offerID) {
			return true
		}
	}
	return false
}

// Assignment 把一个标识（用户或会话）绑定到实验的一个分组。
// 每个 (实验, 标识) 最多只有一条，创建后不再变化。
type Assignment struct {
	ID           string    `json:"id"`
	ExperimentID string    `json:"experiment_id"`
	VariantID    string    `json:"variant_id"`
	Identifier   string    `json:"identifier"`
	AssignedAt   time.Time `json:"assigned_at"`
}

// ExposureEvent 记录用户“真正看到了”某个分组的优惠。只追加。
type ExposureEvent struct {
	ID           string    `json:"id"`
	ExperimentID string    `json:"experiment_id"`
	VariantID    string    `json:"variant_id"`
	Identifier   string    `json:"identifier"`
	OfferIDs     []string  `json:"offer_ids,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// ConversionEvent 记录一次转化。只追加。
type ConversionEvent struct {
	ID           string    `json:"id"`
	ExperimentID string    `json:"experiment_id"`
	VariantID    string    `json:"variant_id"`
	Identifier   string    `json:"identifier"`
	OrderID      string    `json:"order_id,omitempty"`
	Revenue      float64   `json:"revenue,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}
