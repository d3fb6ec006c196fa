// internal/service/promotion/domain/experiment/bucket.go
package experiment

import (
	"nexus-promotion/internal/service/promotion/domain"
)

// Hash 是 31 进制滚动哈希，最后做一次 32 位混合，让只差在后缀的输入也能分散开。
// 它只用于分桶，不是加密哈希。
func Hash(s string) uint32 {
	var h uint32
	for i := 0; i < len(s); i++ {
		h = h*31 + uint32(s[i])
	}
	h ^= h >> 16
	h *= 0x85ebca6b
	h ^= h >> 13
	h *= 0xc2b2ae35
	h ^= h >> 16
	return h
}

// InTraffic 判断标识是否进入实验流量。
func InTraffic(exp *domain.Experiment, identifier string) bool {
	pct := exp.TrafficPercent
	if pct <= 0 {
		return false
	}
	if pct >= 100 {
		return true
	}
	return float64(Hash(exp.ID+":"+identifier+":traffic")%100) < pct
}

// SelectVariant 按权重选出分组。权重非正的分组永远不会被选中。
func SelectVariant(exp *domain.Experiment, identifier string) *domain.Variant {
	total := 0
	for _, v := range exp.Variants {
		if v.Weight > 0 {
			total += v.Weight
		}
	}
	if total == 0 {
		return nil
	}

	point := int(Hash(exp.ID+":"+identifier+":variant") % uint32(total))
	cumulative := 0
	for i := range exp.Variants {
		w := exp.Variants[i].Weight
		if w <= 0 {
			continue
		}
		cumulative += w
		if point < cumulative {
			return &exp.Variants[i]
		}
	}
	return nil
}

// Bucket 是纯函数：同样的实验和标识永远得到同样的分组。未进入流量时返回 nil。
func Bucket(exp *domain.Experiment, identifier string) *domain.Variant {
	if exp == nil || identifier == "" {
		return nil
	}
	if !InTraffic(exp, identifier) {
		return nil
	}
	return SelectVariant(exp, identifier)
}
