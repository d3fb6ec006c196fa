package derived

import (
	"sort"

	"nexus-promotion/internal/service/promotion/domain"
)

// Unit 是展开后的单件商品，BOGO、最便宜 N 件这类策略都在单件上工作。
type Unit struct {
	LineID string
	SKU    string
	Price  float64
	// Seq 是展开时的全局顺序，价格相同时用它保证结果确定。
	Seq int
}

// ExpandUnits 按行顺序把每一行展开成 Quantity 个单件。
func ExpandUnits(lines []domain.LineItem) []Unit {
	var units []Unit
	for _, l := range lines {
		price := l.EffectiveUnitPrice()
		for i := 0; i < l.Quantity; i++ {
			units = append(units, Unit{LineID: l.Key(), SKU: l.SKU, Price: price, Seq: len(units)})
		}
	}
	return units
}

// SortByPrice 返回排好序的副本。asc=false 时按价格从高到低。
func SortByPrice(units []Unit, asc bool) []Unit {
	out := make([]Unit, len(units))
	copy(out, units)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Price != out[j].Price {
			if asc {
				return out[i].Price < out[j].Price
			}
			return out[i].Price > out[j].Price
		}
		return out[i].Seq < out[j].Seq
	})
	return out
}

// LowestPriced 返回最便宜的 n 件。
func LowestPriced(units []Unit, n int) []Unit {
	return take(SortByPrice(units, true), n)
}

// HighestPriced 返回最贵的 n 件。
func HighestPriced(units []Unit, n int) []Unit {
	return take(SortByPrice(units, false), n)
}

// NthItem 返回按价格升序的第 n 件（从 1 开始）。
func NthItem(units []Unit, n int) (Unit, bool) {
	if n < 1 || n > len(units) {
		return Unit{}, false
	}
	return SortByPrice(units, true)[n-1], true
}

// GroupByPriceBuckets 按价格从高到低排序后每 size 件一组，不足一组的尾部丢弃。
func GroupByPriceBuckets(units []Unit, size int) [][]Unit {
	if size <= 0 {
		return nil
	}
	sorted := SortByPrice(units, false)
	var buckets [][]Unit
	for start := 0; start+size <= len(sorted); start += size {
		buckets = append(buckets, sorted[start:start+size])
	}
	return buckets
}

func take(units []Unit, n int) []Unit {
	if n <= 0 {
		return nil
	}
	if n > len(units) {
		n = len(units)
	}
	return units[:n]
}
