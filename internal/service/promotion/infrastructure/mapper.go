// internal/service/promotion/infrastructure/mapper.go
package infrastructure

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"nexus-promotion/internal/service/promotion/domain"
)

// ToDomainOffer 将数据库模型转换为领域模型。版本缺失时 CurrentVersion 为 nil，由评估器给出提示。
func ToDomainOffer(model *OfferModel) (*domain.Offer, error) {
	if model == nil {
		return nil, nil
	}
	offer := &domain.Offer{
		ID:             model.ID,
		Name:           model.Name,
		Type:           domain.OfferType(model.Type),
		Scope:          domain.OfferScope(model.Scope),
		Status:         domain.OfferStatus(model.Status),
		Priority:       model.Priority,
		StackingPolicy: domain.StackingPolicy(model.StackingPolicy),
		StackGroup:     model.StackGroup,
		StartsAt:       model.StartsAt,
		EndsAt:         model.EndsAt,
		Channels:       splitList(model.Channels),
		Regions:        splitList(model.Regions),
		UsageLimit:     model.UsageLimit,
		UsageCount:     model.UsageCount,
		PerUserLimit:   model.PerUserLimit,
	}
	if err := decodeJSON(model.Funding, &offer.Funding); err != nil {
		return nil, errors.Wrapf(err, "offer %s: funding", model.ID)
	}
	if model.CurrentVersion != nil {
		v, err := ToDomainOfferVersion(model.CurrentVersion)
		if err != nil {
			return nil, errors.Wrapf(err, "offer %s", model.ID)
		}
		offer.CurrentVersion = v
	}
	return offer, nil
}

// ToDomainOfferVersion 解析版本中的 JSON 列
func ToDomainOfferVersion(model *OfferVersionModel) (*domain.OfferVersion, error) {
	v := &domain.OfferVersion{
		ID:          model.ID,
		Version:     model.Version,
		PublishedAt: model.PublishedAt,
		Expression:  model.Expression,
	}
	columns := []struct {
		name string
		raw  string
		dst  interface{}
	}{
		{"benefit", model.Benefit, &v.Benefit},
		{"filters", model.Filters, &v.Filters},
		{"caps", model.Caps, &v.Caps},
		{"rules", model.Rules, &v.Rules},
		{"line_rules", model.LineRules, &v.LineRules},
	}
	for _, c := range columns {
		if err := decodeJSON(c.raw, c.dst); err != nil {
			return nil, errors.Wrapf(err, "version %s: column %s", model.ID, c.name)
		}
	}
	return v, nil
}

// FromDomainOffer 将领域模型转换为数据库模型 (用于导入目录)
func FromDomainOffer(offer *domain.Offer) (*OfferModel, error) {
	if offer == nil {
		return nil, nil
	}
	funding, err := encodeJSON(offer.Funding)
	if err != nil {
		return nil, errors.Wrapf(err, "offer %s: funding", offer.ID)
	}
	model := &OfferModel{
		ID:             offer.ID,
		Name:           offer.Name,
		Type:           string(offer.Type),
		Scope:          string(offer.Scope),
		Status:         string(offer.Status),
		Priority:       offer.Priority,
		StackingPolicy: string(offer.StackingPolicy),
		StackGroup:     offer.StackGroup,
		Funding:        funding,
		StartsAt:       offer.StartsAt,
		EndsAt:         offer.EndsAt,
		Channels:       strings.Join(offer.Channels, ","),
		Regions:        strings.Join(offer.Regions, ","),
		UsageLimit:     offer.UsageLimit,
		UsageCount:     offer.UsageCount,
		PerUserLimit:   offer.PerUserLimit,
	}
	if v := offer.CurrentVersion; v != nil {
		vm, err := FromDomainOfferVersion(offer.ID, v)
		if err != nil {
			return nil, errors.Wrapf(err, "offer %s", offer.ID)
		}
		model.CurrentVersionID = &vm.ID
		model.CurrentVersion = vm
	}
	return model, nil
}

// FromDomainOfferVersion 把版本配置序列化成 JSON 列。版本没有 ID 时用 "<offer>-v<version>"。
func FromDomainOfferVersion(offerID string, v *domain.OfferVersion) (*OfferVersionModel, error) {
	model := &OfferVersionModel{
		ID:          v.ID,
		OfferID:     offerID,
		Version:     v.Version,
		PublishedAt: v.PublishedAt,
		Expression:  v.Expression,
	}
	if model.ID == "" {
		model.ID = offerID + "-v" + itoa(v.Version)
	}
	var err error
	if model.Benefit, err = encodeJSON(v.Benefit); err != nil {
		return nil, errors.Wrap(err, "benefit")
	}
	if model.Filters, err = encodeJSON(v.Filters); err != nil {
		return nil, errors.Wrap(err, "filters")
	}
	if model.Caps, err = encodeJSON(v.Caps); err != nil {
		return nil, errors.Wrap(err, "caps")
	}
	if model.Rules, err = encodeJSON(v.Rules); err != nil {
		return nil, errors.Wrap(err, "rules")
	}
	if model.LineRules, err = encodeJSON(v.LineRules); err != nil {
		return nil, errors.Wrap(err, "line_rules")
	}
	return model, nil
}

// ToDomainExperiment 将数据库模型转换为领域模型
func ToDomainExperiment(model *ExperimentModel) (*domain.Experiment, error) {
	exp := &domain.Experiment{
		ID:             model.ID,
		Name:           model.Name,
		Status:         domain.ExperimentStatus(model.Status),
		TrafficPercent: model.TrafficPercent,
		StartsAt:       model.StartsAt,
		EndsAt:         model.EndsAt,
	}
	if err := decodeJSON(model.Variants, &exp.Variants); err != nil {
		return nil, errors.Wrapf(err, "experiment %s: variants", model.ID)
	}
	return exp, nil
}

// FromDomainExperiment 将领域模型转换为数据库模型
func FromDomainExperiment(exp *domain.Experiment) (*ExperimentModel, error) {
	variants, err := encodeJSON(exp.Variants)
	if err != nil {
		return nil, errors.Wrapf(err, "experiment %s: variants", exp.ID)
	}
	return &ExperimentModel{
		ID:             exp.ID,
		Name:           exp.Name,
		Status:         string(exp.Status),
		TrafficPercent: exp.TrafficPercent,
		Variants:       variants,
		StartsAt:       exp.StartsAt,
		EndsAt:         exp.EndsAt,
	}, nil
}

// ToDomainAssignment 将数据库模型转换为领域模型
func ToDomainAssignment(model *AssignmentModel) *domain.Assignment {
	return &domain.Assignment{
		ID:           model.ID,
		ExperimentID: model.ExperimentID,
		VariantID:    model.VariantID,
		Identifier:   model.Identifier,
		AssignedAt:   model.AssignedAt,
	}
}

// FromDomainAssignment 将领域模型转换为数据库模型
func FromDomainAssignment(a *domain.Assignment) *AssignmentModel {
	return &AssignmentModel{
		ID:           a.ID,
		ExperimentID: a.ExperimentID,
		VariantID:    a.VariantID,
		Identifier:   a.Identifier,
		AssignedAt:   a.AssignedAt,
	}
}

func encodeJSON(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// decodeJSON 把空串和 null 都当作零值
func decodeJSON(raw string, dst interface{}) error {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil
	}
	return json.Unmarshal([]byte(raw), dst)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func itoa(v int32) string {
	return strconv.FormatInt(int64(v), 10)
}
