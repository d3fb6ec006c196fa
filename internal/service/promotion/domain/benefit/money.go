package benefit

import (
	"math"
	"sort"
	"strconv"

	"nexus-promotion/internal/service/promotion/domain"
)

const (
	centsPerUnit = 100
	// 浮点误差容忍，避免 0.1+0.2 这类值在取整时跑偏一分钱
	roundingSlack = 1e-7
)

// Round 按取整方式保留到分。缺省是四舍五入。
func Round(x float64, mode domain.RoundingMode) float64 {
	switch mode {
	case domain.RoundFloor:
		return math.Floor(x*centsPerUnit+roundingSlack) / centsPerUnit
	case domain.RoundCeil:
		return math.Ceil(x*centsPerUnit-roundingSlack) / centsPerUnit
	default:
		return math.Floor(x*centsPerUnit+0.5+roundingSlack) / centsPerUnit
	}
}

func toCents(x float64) int64 {
	return int64(math.Round(x * centsPerUnit))
}

func fromCents(c int64) float64 {
	return float64(c) / centsPerUnit
}

// draft 是策略产出、尚未取整封顶的单行减免。
type draft struct {
	line     domain.LineItem
	amount   float64
	text     string
	metadata map[string]any
}

// allocate 把一个整单金额按行价格比例拆到各行，以分为单位，保证拆分后的合计等于 total。
func allocate(total float64, lines []domain.LineItem) []float64 {
	shares := make([]float64, len(lines))
	if total <= 0 {
		return shares
	}
	for i, c := range allocateUnits(toCents(total), lines) {
		shares[i] = fromCents(c)
	}
	return shares
}

// allocateUnits 按行价格比例拆分 total 个最小单位（分或积分），余数按最大余数法补齐。
// 没有价格信息时平均分。
func allocateUnits(total int64, lines []domain.LineItem) []int64 {
	units := make([]int64, len(lines))
	if len(lines) == 0 || total <= 0 {
		return units
	}

	base := lineBase(lines)
	even := base <= 0
	if even {
		base = float64(len(lines))
	}

	type rem struct {
		idx  int
		frac float64
	}
	rems := make([]rem, len(lines))
	var assigned int64
	for i, l := range lines {
		weight := l.Total()
		if even {
			weight = 1
		}
		exact := float64(total) * weight / base
		units[i] = int64(math.Floor(exact + roundingSlack))
		rems[i] = rem{idx: i, frac: exact - float64(units[i])}
		assigned += units[i]
	}

	sort.SliceStable(rems, func(a, b int) bool { return rems[a].frac > rems[b].frac })
	for k := int64(0); k < total-assigned; k++ {
		units[rems[int(k)%len(rems)].idx]++
	}
	return units
}

// allocateDrafts 是 allocate 的便捷包装。
func allocateDrafts(total float64, lines []domain.LineItem, text string) []draft {
	shares := allocate(total, lines)
	out := make([]draft, 0, len(lines))
	for i, l := range lines {
		out = append(out, draft{line: l, amount: shares[i], text: text})
	}
	return out
}

// finalize 是每个策略的最后一步：合并同一行 → 取整 → 单行封顶（不超过行价，且保留 MinPriceFloor）
// → 按 MaxDiscountAmount 等比例缩减。金额为 0 的行会被丢弃。
func finalize(v *domain.OfferVersion, drafts []draft, display string) Result {
	caps := v.Caps
	merged := merge(drafts)

	amounts := make([]int64, len(merged))
	for i, d := range merged {
		amt := toCents(Round(d.amount, caps.Rounding))
		limit := toCents(d.line.Total())
		if caps.MinPriceFloor > 0 {
			floor := toCents(caps.MinPriceFloor * float64(max(d.line.Quantity, 1)))
			limit = min(limit, toCents(d.line.Total())-floor)
		}
		amounts[i] = clamp(amt, 0, max(limit, 0))
	}

	if caps.MaxDiscountAmount > 0 {
		scaleDown(amounts, toCents(caps.MaxDiscountAmount))
	}

	res := Result{DisplayText: display}
	var total int64
	for i, d := range merged {
		if amounts[i] <= 0 {
			continue
		}
		total += amounts[i]
		res.Adjustments = append(res.Adjustments, domain.LineAdjustment{
			LineID:      d.line.Key(),
			Amount:      fromCents(amounts[i]),
			DisplayText: d.text,
			Metadata:    d.metadata,
		})
	}
	res.TotalDiscount = fromCents(total)
	return res
}

// scaleDown 把合计压到 capCents 以内：每行按比例向下取整，剩余的分按原顺序补回，不超过原金额。
func scaleDown(amounts []int64, capCents int64) {
	var total int64
	for _, a := range amounts {
		total += a
	}
	if total <= capCents || total == 0 {
		return
	}
	ratio := float64(capCents) / float64(total)
	original := make([]int64, len(amounts))
	copy(original, amounts)

	var scaled int64
	for i, a := range amounts {
		amounts[i] = int64(math.Floor(float64(a) * ratio))
		scaled += amounts[i]
	}
	for scaled < capCents {
		progressed := false
		for i := range amounts {
			if scaled >= capCents {
				break
			}
			if amounts[i] < original[i] {
				amounts[i]++
				scaled++
				progressed = true
			}
		}
		if !progressed {
			return
		}
	}
}

func merge(drafts []draft) []draft {
	index := make(map[string]int, len(drafts))
	var out []draft
	for _, d := range drafts {
		key := d.line.Key()
		if i, ok := index[key]; ok {
			out[i].amount += d.amount
			if out[i].metadata == nil && d.metadata != nil {
				out[i].metadata = d.metadata
			}
			continue
		}
		index[key] = len(out)
		out = append(out, d)
	}
	return out
}

func clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// lineBase 返回若干行的价格合计。
func lineBase(lines []domain.LineItem) float64 {
	var base float64
	for _, l := range lines {
		base += l.Total()
	}
	return base
}

// formatAmount 去掉多余的小数位。
func formatAmount(x float64) string {
	return strconv.FormatFloat(Round(x, domain.RoundHalfUp), 'f', -1, 64)
}
