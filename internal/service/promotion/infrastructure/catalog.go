// internal/service/promotion/infrastructure/catalog.go
package infrastructure

import (
	"context"
	"os"
	"sort"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"nexus-promotion/internal/service/promotion/domain"
)

// Catalog 是 YAML 目录文件的内容：优惠和实验
type Catalog struct {
	Offers      []*domain.Offer      `yaml:"offers"`
	Experiments []*domain.Experiment `yaml:"experiments"`
}

// LoadCatalog 读取并校验目录文件
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read catalog %s", path)
	}
	return ParseCatalog(data)
}

// ParseCatalog 解析目录内容。ID 重复、规则组的 logic 未知、实验没有分组或权重非法时返回错误。
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, errors.Wrap(err, "failed to parse catalog")
	}

	seen := make(map[string]bool, len(c.Offers))
	for i, o := range c.Offers {
		if o == nil || o.ID == "" {
			return nil, errors.Errorf("offer #%d has no id", i)
		}
		if seen[o.ID] {
			return nil, errors.Errorf("duplicate offer id %s", o.ID)
		}
		seen[o.ID] = true
		if v := o.CurrentVersion; v != nil {
			if err := normalizeRules(v.Rules); err != nil {
				return nil, errors.Wrapf(err, "offer %s rules", o.ID)
			}
			if err := normalizeRules(v.LineRules); err != nil {
				return nil, errors.Wrapf(err, "offer %s line_rules", o.ID)
			}
		}
	}

	seen = make(map[string]bool, len(c.Experiments))
	for i, e := range c.Experiments {
		if e == nil || e.ID == "" {
			return nil, errors.Errorf("experiment #%d has no id", i)
		}
		if seen[e.ID] {
			return nil, errors.Errorf("duplicate experiment id %s", e.ID)
		}
		seen[e.ID] = true
		if len(e.Variants) == 0 {
			return nil, errors.Errorf("experiment %s has no variants", e.ID)
		}
		total := 0
		for _, v := range e.Variants {
			if v.Weight < 0 {
				return nil, errors.Errorf("experiment %s: variant %s has negative weight", e.ID, v.ID)
			}
			total += v.Weight
		}
		if total == 0 {
			return nil, errors.Errorf("experiment %s: variant weights sum to zero", e.ID)
		}
	}
	return &c, nil
}

// normalizeRules 把规则组的 logic 统一成大写，遇到未知取值返回错误
func normalizeRules(g *domain.RuleGroup) error {
	if g == nil {
		return nil
	}
	if !g.Logic.Valid() {
		return errors.Errorf("unknown group logic %q, want all or any", g.Logic)
	}
	g.Logic = g.Logic.Canonical()
	for i := range g.Children {
		if err := normalizeRules(g.Children[i].Group); err != nil {
			return err
		}
	}
	return nil
}

// MemoryCatalog 用一份内存中的目录实现 OfferRepository 和 ExperimentRepository
type MemoryCatalog struct {
	offers      []*domain.Offer
	experiments []*domain.Experiment
}

// NewMemoryCatalog 创建目录仓储
func NewMemoryCatalog(c *Catalog) *MemoryCatalog {
	if c == nil {
		c = &Catalog{}
	}
	return &MemoryCatalog{offers: c.Offers, experiments: c.Experiments}
}

// ListActiveOffers 返回 at 时刻有效的 active 优惠，按评估顺序排列
func (m *MemoryCatalog) ListActiveOffers(_ context.Context, at time.Time) ([]*domain.Offer, error) {
	var out []*domain.Offer
	for _, o := range m.offers {
		if o.Status != domain.OfferStatusActive {
			continue
		}
		if o.StartsAt != nil && at.Before(*o.StartsAt) {
			continue
		}
		if o.EndsAt != nil && at.After(*o.EndsAt) {
			continue
		}
		out = append(out, o)
	}
	sort.SliceStable(out, func(i, j int) bool { return domain.LessByPriority(out[i], out[j]) })
	return out, nil
}

// FindByID 按 ID 查找优惠
func (m *MemoryCatalog) FindByID(_ context.Context, id string) (*domain.Offer, error) {
	for _, o := range m.offers {
		if o.ID == id {
			return o, nil
		}
	}
	return nil, domain.ErrOfferNotFound
}

// ListRunningExperiments 返回 at 时刻运行中的实验
func (m *MemoryCatalog) ListRunningExperiments(_ context.Context, at time.Time) ([]*domain.Experiment, error) {
	var out []*domain.Experiment
	for _, e := range m.experiments {
		if e.IsRunning(at) {
			out = append(out, e)
		}
	}
	return out, nil
}

// FindExperiment 按 ID 查找实验
func (m *MemoryCatalog) FindExperiment(_ context.Context, id string) (*domain.Experiment, error) {
	for _, e := range m.experiments {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, domain.ErrExperimentNotFound
}
