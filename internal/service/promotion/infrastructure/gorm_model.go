// internal/service/promotion/infrastructure/gorm_model.go
package infrastructure

import (
	"time"

	"gorm.io/gorm"
)

// OfferModel 对应 offers 表，只保存优惠的稳定身份和基础约束
type OfferModel struct {
	ID               string `gorm:"primaryKey;size:64"`
	Name             string `gorm:"size:255"`
	Type             string `gorm:"size:32"`
	Scope            string `gorm:"size:16"`
	Status           string `gorm:"size:16;index:idx_offer_status_window"`
	Priority         int
	StackingPolicy   string     `gorm:"size:16"`
	StackGroup       string     `gorm:"size:64"`
	Funding          string     `gorm:"type:json"`
	StartsAt         *time.Time `gorm:"index:idx_offer_status_window"`
	EndsAt           *time.Time `gorm:"index:idx_offer_status_window"`
	Channels         string     `gorm:"type:text"` // 逗号分隔
	Regions          string     `gorm:"type:text"` // 逗号分隔
	UsageLimit       int
	UsageCount       int
	PerUserLimit     int
	CurrentVersionID *string `gorm:"size:64"`
	// 关联关系
	CurrentVersion *OfferVersionModel `gorm:"foreignKey:CurrentVersionID;references:ID"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      gorm.DeletedAt `gorm:"index"`
}

// TableName 指定 GORM 应该使用的表名
func (OfferModel) TableName() string {
	return "offers"
}

// OfferVersionModel 对应 offer_versions 表。版本发布后只插入，不更新。
type OfferVersionModel struct {
	ID          string `gorm:"primaryKey;size:64"`
	OfferID     string `gorm:"size:64;uniqueIndex:idx_offer_version"`
	Version     int32  `gorm:"uniqueIndex:idx_offer_version"`
	PublishedAt *time.Time
	Benefit     string `gorm:"type:json"`
	Filters     string `gorm:"type:json"`
	Caps        string `gorm:"type:json"`
	Rules       string `gorm:"type:json"`
	LineRules   string `gorm:"type:json"`
	Expression  string `gorm:"type:text"`
	CreatedAt   time.Time
}

// TableName 指定 GORM 应该使用的表名
func (OfferVersionModel) TableName() string {
	return "offer_versions"
}

// ExperimentModel 对应 experiments 表，分组列表以 JSON 保存
type ExperimentModel struct {
	ID             string  `gorm:"primaryKey;size:64"`
	Name           string  `gorm:"size:255"`
	Status         string  `gorm:"size:16;index"`
	TrafficPercent float64 `gorm:"type:decimal(5,2)"`
	Variants       string  `gorm:"type:json"`
	StartsAt       *time.Time
	EndsAt         *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TableName 指定 GORM 应该使用的表名
func (ExperimentModel) TableName() string {
	return "experiments"
}

// AssignmentModel 对应 experiment_assignments 表。
// (experiment_id, identifier) 上的唯一索引保证每个标识只有一条分配记录。
type AssignmentModel struct {
	ID           string    `gorm:"primaryKey;size:64"`
	ExperimentID string    `gorm:"size:64;not null;uniqueIndex:idx_assignment_experiment_identifier"`
	Identifier   string    `gorm:"size:128;not null;uniqueIndex:idx_assignment_experiment_identifier"`
	VariantID    string    `gorm:"size:64;not null"`
	AssignedAt   time.Time `gorm:"not null"`
}

// TableName 指定 GORM 应该使用的表名
func (AssignmentModel) TableName() string {
	return "experiment_assignments"
}

// ExposureModel 对应 experiment_exposures 表，只追加
type ExposureModel struct {
	ID           string    `gorm:"primaryKey;size:64"`
	ExperimentID string    `gorm:"size:64;index:idx_exposure_experiment_variant"`
	VariantID    string    `gorm:"size:64;index:idx_exposure_experiment_variant"`
	Identifier   string    `gorm:"size:128;index"`
	OfferIDs     string    `gorm:"type:json"`
	OccurredAt   time.Time `gorm:"index"`
}

// TableName 指定 GORM 应该使用的表名
func (ExposureModel) TableName() string {
	return "experiment_exposures"
}

// ConversionModel 对应 experiment_conversions 表，只追加
type ConversionModel struct {
	ID           string    `gorm:"primaryKey;size:64"`
	ExperimentID string    `gorm:"size:64;index:idx_conversion_experiment_variant"`
	VariantID    string    `gorm:"size:64;index:idx_conversion_experiment_variant"`
	Identifier   string    `gorm:"size:128;index"`
	OrderID      string    `gorm:"size:64"`
	Revenue      float64   `gorm:"type:decimal(12,2)"`
	OccurredAt   time.Time `gorm:"index"`
}

// TableName 指定 GORM 应该使用的表名
func (ConversionModel) TableName() string {
	return "experiment_conversions"
}

// AllModels 返回需要建表的全部模型，顺序即建表顺序
func AllModels() []interface{} {
	return []interface{}{
		&OfferVersionModel{},
		&OfferModel{},
		&ExperimentModel{},
		&AssignmentModel{},
		&ExposureModel{},
		&ConversionModel{},
	}
}
