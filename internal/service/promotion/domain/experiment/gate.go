package experiment

import "nexus-promotion/internal/service/promotion/domain"

// Gate 过滤掉受实验控制、但当前用户所在分组没有暴露的优惠。
// variants 的 key 是实验 ID，值为 nil 表示用户不在该实验中。
// 一个优惠受多个实验控制时，必须每个实验的分组都暴露它才可见。
func Gate(offers []*domain.Offer, experiments []*domain.Experiment, variants map[string]*domain.Variant) []*domain.Offer {
	if len(experiments) == 0 {
		return offers
	}
	visible := make([]*domain.Offer, 0, len(offers))
	for _, o := range offers {
		if o == nil {
			continue
		}
		if exposed(o.ID, experiments, variants) {
			visible = append(visible, o)
		}
	}
	return visible
}

func exposed(offerID string, experiments []*domain.Experiment, variants map[string]*domain.Variant) bool {
	for _, exp := range experiments {
		if !exp.Controls(offerID) {
			continue
		}
		if !variants[exp.ID].Exposes(offerID) {
			return false
		}
	}
	return true
}

// ShownOffers 返回某个分组里真正出现在评估结果中的优惠，用于记录曝光。
func ShownOffers(v *domain.Variant, offerIDs []string) []string {
	if v == nil {
		return nil
	}
	var shown []string
	seen := map[string]struct{}{}
	for _, id := range offerIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		if v.Exposes(id) {
			seen[id] = struct{}{}
			shown = append(shown, id)
		}
	}
	return shown
}
