// internal/service/promotion/infrastructure/memory.go
package infrastructure

import (
	"context"
	"sync"

	"nexus-promotion/internal/service/promotion/domain"
)

// MemoryAssignmentStore 是进程内的分配记录存储，用于单实例部署和测试
type MemoryAssignmentStore struct {
	mu      sync.Mutex
	records map[string]domain.Assignment
}

// NewMemoryAssignmentStore 创建一个空的存储
func NewMemoryAssignmentStore() *MemoryAssignmentStore {
	return &MemoryAssignmentStore{records: make(map[string]domain.Assignment)}
}

func memoryKey(experimentID, identifier string) string {
	return experimentID + "\x00" + identifier
}

// GetAssignment 读取分配记录
func (s *MemoryAssignmentStore) GetAssignment(_ context.Context, experimentID, identifier string) (*domain.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.records[memoryKey(experimentID, identifier)]
	if !ok {
		return nil, domain.ErrAssignmentNotFound
	}
	return &a, nil
}

// CreateAssignmentIfAbsent 在同一把锁内检查并写入
func (s *MemoryAssignmentStore) CreateAssignmentIfAbsent(_ context.Context, a *domain.Assignment) (*domain.Assignment, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memoryKey(a.ExperimentID, a.Identifier)
	if existing, ok := s.records[key]; ok {
		return &existing, false, nil
	}
	s.records[key] = *a
	stored := *a
	return &stored, true, nil
}

// Len 返回记录数
func (s *MemoryAssignmentStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// MemoryEventLog 把事件保存在内存里
type MemoryEventLog struct {
	mu          sync.Mutex
	exposures   []domain.ExposureEvent
	conversions []domain.ConversionEvent
}

// NewMemoryEventLog 创建内存事件日志
func NewMemoryEventLog() *MemoryEventLog {
	return &MemoryEventLog{}
}

func (l *MemoryEventLog) LogExposure(_ context.Context, e *domain.ExposureEvent) error {
	l.mu.Lock()
	l.exposures = append(l.exposures, *e)
	l.mu.Unlock()
	return nil
}

func (l *MemoryEventLog) LogConversion(_ context.Context, e *domain.ConversionEvent) error {
	l.mu.Lock()
	l.conversions = append(l.conversions, *e)
	l.mu.Unlock()
	return nil
}

// Exposures 返回已记录曝光的副本
func (l *MemoryEventLog) Exposures() []domain.ExposureEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.ExposureEvent(nil), l.exposures...)
}

// Conversions 返回已记录转化的副本
func (l *MemoryEventLog) Conversions() []domain.ConversionEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.ConversionEvent(nil), l.conversions...)
}
