// internal/service/promotion/infrastructure/locked_store.go
package infrastructure

import (
	"context"

	"github.com/pkg/errors"

	"nexus-promotion/internal/pkg/logger"
	"nexus-promotion/internal/service/promotion/domain"
)

// Locker 是跨进程的互斥锁，zookeeper.LockManager 实现了它
type Locker interface {
	Acquire(ctx context.Context, key string) (release func() error, err error)
}

// LockedAssignmentStore 在分布式锁内完成“读取或创建”。
// 用于底层存储自身不能保证条件写入的部署（例如没有唯一索引的历史表）。
type LockedAssignmentStore struct {
	inner  domain.AssignmentStore
	locker Locker
}

// NewLockedAssignmentStore 包装一个分配记录存储
func NewLockedAssignmentStore(inner domain.AssignmentStore, locker Locker) *LockedAssignmentStore {
	return &LockedAssignmentStore{inner: inner, locker: locker}
}

// GetAssignment 读操作不加锁
func (s *LockedAssignmentStore) GetAssignment(ctx context.Context, experimentID, identifier string) (*domain.Assignment, error) {
	return s.inner.GetAssignment(ctx, experimentID, identifier)
}

// CreateAssignmentIfAbsent 加锁后先读，读不到才写
func (s *LockedAssignmentStore) CreateAssignmentIfAbsent(ctx context.Context, a *domain.Assignment) (*domain.Assignment, bool, error) {
	release, err := s.locker.Acquire(ctx, "assignment/"+a.ExperimentID+"/"+a.Identifier)
	if err != nil {
		return nil, false, errors.Wrap(err, "failed to acquire assignment lock")
	}
	defer func() {
		if err := release(); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("experiment_id", a.ExperimentID).Msg("failed to release assignment lock")
		}
	}()

	existing, err := s.inner.GetAssignment(ctx, a.ExperimentID, a.Identifier)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, domain.ErrAssignmentNotFound) {
		return nil, false, err
	}
	return s.inner.CreateAssignmentIfAbsent(ctx, a)
}
