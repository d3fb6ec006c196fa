package domain

import (
	"context"
	"time"
)

// OfferRepository 定义了优惠数据的读取接口
// 这是领域层与基础设施层之间的“插座”
type OfferRepository interface {
	ListActiveOffers(ctx context.Context, at time.Time) ([]*Offer, error)
	FindByID(ctx context.Context, id string) (*Offer, error)
}

// ExperimentRepository 提供实验配置。
type ExperimentRepository interface {
	ListRunningExperiments(ctx context.Context, at time.Time) ([]*Experiment, error)
	FindExperiment(ctx context.Context, id string) (*Experiment, error)
}

// AssignmentStore 是唯一被共享、会被修改的资源。
// CreateAssignmentIfAbsent 必须是原子的：并发调用时只有一个写入者胜出，
// 所有调用者都拿到胜出的那条记录（created 只对胜出者为 true）。
// 记录不存在时 GetAssignment 返回 ErrAssignmentNotFound。
type AssignmentStore interface {
	GetAssignment(ctx context.Context, experimentID, identifier string) (*Assignment, error)
	CreateAssignmentIfAbsent(ctx context.Context, a *Assignment) (stored *Assignment, created bool, err error)
}

// EventLog 追加曝光和转化事实，它们不从分组记录推导。
type EventLog interface {
	LogExposure(ctx context.Context, e *ExposureEvent) error
	LogConversion(ctx context.Context, e *ConversionEvent) error
}
