// internal/service/promotion/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"nexus-promotion/internal/pkg/logger"
	"nexus-promotion/internal/service/promotion/domain"
)

// GormOfferRepository 是 OfferRepository 的 GORM 实现
type GormOfferRepository struct {
	db *gorm.DB
}

// NewGormOfferRepository 创建一个新的 GORM 仓储实例
func NewGormOfferRepository(db *gorm.DB) *GormOfferRepository {
	return &GormOfferRepository{db: db}
}

// ListActiveOffers 查询 at 时刻处于有效期内的 active 优惠，并预加载当前版本。
// 单个优惠的配置损坏只跳过该优惠。
func (r *GormOfferRepository) ListActiveOffers(ctx context.Context, at time.Time) ([]*domain.Offer, error) {
	var models []OfferModel
	err := r.db.WithContext(ctx).
		Preload("CurrentVersion").
		Where("status = ?", string(domain.OfferStatusActive)).
		Where("starts_at IS NULL OR starts_at <= ?", at).
		Where("ends_at IS NULL OR ends_at >= ?", at).
		Order("priority ASC").Order("id ASC").
		Find(&models).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to query active offers")
	}

	offers := make([]*domain.Offer, 0, len(models))
	for i := range models {
		offer, err := ToDomainOffer(&models[i])
		if err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("offer_id", models[i].ID).Msg("skipping offer with corrupt configuration")
			continue
		}
		offers = append(offers, offer)
	}
	return offers, nil
}

// FindByID 使用 GORM 从数据库中查找优惠
func (r *GormOfferRepository) FindByID(ctx context.Context, id string) (*domain.Offer, error) {
	var model OfferModel
	// 使用 Preload 来预加载当前版本
	err := r.db.WithContext(ctx).Preload("CurrentVersion").Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOfferNotFound
		}
		return nil, errors.Wrapf(err, "failed to query offer %s", id)
	}
	return ToDomainOffer(&model)
}

// Save 写入优惠和它的当前版本。版本是不可变的：同 ID 的版本已存在时保持原样。
func (r *GormOfferRepository) Save(ctx context.Context, offer *domain.Offer) error {
	model, err := FromDomainOffer(offer)
	if err != nil {
		return err
	}
	version := model.CurrentVersion
	model.CurrentVersion = nil

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if version != nil {
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(version).Error; err != nil {
				return errors.Wrapf(err, "failed to save version %s", version.ID)
			}
		}
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(model).Error; err != nil {
			return errors.Wrapf(err, "failed to save offer %s", model.ID)
		}
		return nil
	})
}

// GormExperimentRepository 是 ExperimentRepository 的 GORM 实现
type GormExperimentRepository struct {
	db *gorm.DB
}

// NewGormExperimentRepository 创建实验仓储
func NewGormExperimentRepository(db *gorm.DB) *GormExperimentRepository {
	return &GormExperimentRepository{db: db}
}

// ListRunningExperiments 查询 at 时刻运行中的实验
func (r *GormExperimentRepository) ListRunningExperiments(ctx context.Context, at time.Time) ([]*domain.Experiment, error) {
	var models []ExperimentModel
	err := r.db.WithContext(ctx).
		Where("status = ?", string(domain.ExperimentRunning)).
		Where("starts_at IS NULL OR starts_at <= ?", at).
		Where("ends_at IS NULL OR ends_at >= ?", at).
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to query running experiments")
	}

	exps := make([]*domain.Experiment, 0, len(models))
	for i := range models {
		exp, err := ToDomainExperiment(&models[i])
		if err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("experiment_id", models[i].ID).Msg("skipping experiment with corrupt variants")
			continue
		}
		exps = append(exps, exp)
	}
	return exps, nil
}

// FindExperiment 按 ID 查找实验
func (r *GormExperimentRepository) FindExperiment(ctx context.Context, id string) (*domain.Experiment, error) {
	var model ExperimentModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrExperimentNotFound
		}
		return nil, errors.Wrapf(err, "failed to query experiment %s", id)
	}
	return ToDomainExperiment(&model)
}

// Save 写入或覆盖实验配置
func (r *GormExperimentRepository) Save(ctx context.Context, exp *domain.Experiment) error {
	model, err := FromDomainExperiment(exp)
	if err != nil {
		return err
	}
	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(model).Error
	return errors.Wrapf(err, "failed to save experiment %s", exp.ID)
}

// GormAssignmentStore 依赖 (experiment_id, identifier) 唯一索引实现插入即胜出
type GormAssignmentStore struct {
	db *gorm.DB
}

// NewGormAssignmentStore 创建分配记录存储
func NewGormAssignmentStore(db *gorm.DB) *GormAssignmentStore {
	return &GormAssignmentStore{db: db}
}

// GetAssignment 读取分配记录
func (s *GormAssignmentStore) GetAssignment(ctx context.Context, experimentID, identifier string) (*domain.Assignment, error) {
	var model AssignmentModel
	err := s.db.WithContext(ctx).
		Where("experiment_id = ? AND identifier = ?", experimentID, identifier).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrAssignmentNotFound
		}
		return nil, errors.Wrapf(err, "failed to query assignment %s/%s", experimentID, identifier)
	}
	return ToDomainAssignment(&model), nil
}

// CreateAssignmentIfAbsent 先尝试插入，唯一索引冲突时什么也不做，然后读回胜出的那一条
func (s *GormAssignmentStore) CreateAssignmentIfAbsent(ctx context.Context, a *domain.Assignment) (*domain.Assignment, bool, error) {
	model := FromDomainAssignment(a)
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(model)
	if res.Error != nil {
		return nil, false, errors.Wrapf(res.Error, "failed to insert assignment %s/%s", a.ExperimentID, a.Identifier)
	}
	if res.RowsAffected == 1 {
		return a, true, nil
	}

	stored, err := s.GetAssignment(ctx, a.ExperimentID, a.Identifier)
	if errors.Is(err, domain.ErrAssignmentNotFound) {
		// 插入被忽略却读不到记录，说明冲突来自别的键（例如重复的主键）
		return nil, false, errors.Wrapf(domain.ErrAssignmentConflict, "assignment %s/%s", a.ExperimentID, a.Identifier)
	}
	if err != nil {
		return nil, false, err
	}
	return stored, false, nil
}

// GormEventLog 把曝光和转化追加到数据库
type GormEventLog struct {
	db *gorm.DB
}

// NewGormEventLog 创建事件日志
func NewGormEventLog(db *gorm.DB) *GormEventLog {
	return &GormEventLog{db: db}
}

// LogExposure 追加一条曝光
func (l *GormEventLog) LogExposure(ctx context.Context, e *domain.ExposureEvent) error {
	offerIDs, err := encodeJSON(e.OfferIDs)
	if err != nil {
		return errors.Wrap(err, "failed to encode offer ids")
	}
	model := &ExposureModel{
		ID:           e.ID,
		ExperimentID: e.ExperimentID,
		VariantID:    e.VariantID,
		Identifier:   e.Identifier,
		OfferIDs:     offerIDs,
		OccurredAt:   e.OccurredAt,
	}
	return errors.Wrap(l.db.WithContext(ctx).Create(model).Error, "failed to insert exposure")
}

// LogConversion 追加一条转化
func (l *GormEventLog) LogConversion(ctx context.Context, e *domain.ConversionEvent) error {
	model := &ConversionModel{
		ID:           e.ID,
		ExperimentID: e.ExperimentID,
		VariantID:    e.VariantID,
		Identifier:   e.Identifier,
		OrderID:      e.OrderID,
		Revenue:      e.Revenue,
		OccurredAt:   e.OccurredAt,
	}
	return errors.Wrap(l.db.WithContext(ctx).Create(model).Error, "failed to insert conversion")
}

// ImportCatalog 把 YAML 目录写入数据库，已存在的优惠和实验会被覆盖
func ImportCatalog(ctx context.Context, db *gorm.DB, c *Catalog) error {
	offers := NewGormOfferRepository(db)
	for _, o := range c.Offers {
		if err := offers.Save(ctx, o); err != nil {
			return err
		}
	}
	exps := NewGormExperimentRepository(db)
	for _, e := range c.Experiments {
		if err := exps.Save(ctx, e); err != nil {
			return err
		}
	}
	logger.Ctx(ctx).Info().Int("offers", len(c.Offers)).Int("experiments", len(c.Experiments)).Msg("catalog imported")
	return nil
}
