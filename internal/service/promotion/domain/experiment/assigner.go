// internal/service/promotion/domain/experiment/assigner.go
package experiment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	zlog "github.com/rs/zerolog/log"

	"nexus-promotion/internal/service/promotion/domain"
)

// Assigner 负责粘性分组：第一次计算后写入 AssignmentStore，之后总是返回存储的结果。
type Assigner struct {
	store domain.AssignmentStore
	now   func() time.Time
}

func NewAssigner(store domain.AssignmentStore) *Assigner {
	return &Assigner{store: store, now: time.Now}
}

// Assign 返回标识在实验中的分组；未进入流量返回 nil。
func (a *Assigner) Assign(ctx context.Context, exp *domain.Experiment, identifier string) (*domain.Variant, error) {
	assignment, _, err := a.Resolve(ctx, exp, identifier)
	if err != nil || assignment == nil {
		return nil, err
	}
	v := exp.Variant(assignment.VariantID)
	if v == nil {
		// 分组被删除后，已有分配不再生效，但记录保留
		zlog.Warn().Str("experiment_id", exp.ID).Str("variant_id", assignment.VariantID).Msg("stored assignment points to a removed variant")
	}
	return v, nil
}

// Resolve 读取或创建分配记录。created 表示这次调用写入了新记录。
// 并发创建时以存储中的胜出记录为准。
func (a *Assigner) Resolve(ctx context.Context, exp *domain.Experiment, identifier string) (*domain.Assignment, bool, error) {
	if exp == nil || identifier == "" {
		return nil, false, nil
	}

	existing, err := a.store.GetAssignment(ctx, exp.ID, identifier)
	switch {
	case err == nil && existing != nil:
		return existing, false, nil
	case err != nil && !errors.Is(err, domain.ErrAssignmentNotFound):
		return nil, false, err
	}

	variant := Bucket(exp, identifier)
	if variant == nil {
		return nil, false, nil
	}

	stored, created, err := a.store.CreateAssignmentIfAbsent(ctx, &domain.Assignment{
		ID:           uuid.NewString(),
		ExperimentID: exp.ID,
		VariantID:    variant.ID,
		Identifier:   identifier,
		AssignedAt:   a.now().UTC(),
	})
	if err != nil {
		return nil, false, err
	}
	if created {
		zlog.Debug().Str("experiment_id", exp.ID).Str("variant_id", stored.VariantID).Msg("assignment created")
	}
	return stored, created, nil
}
