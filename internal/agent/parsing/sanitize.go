package parsing

import (
	"strings"

	"vop/internal/model"
)

// 允许的计量单位枚举
var allowedUnits = map[string]struct{}{
	"kg":     {},
	"g":      {},
	"l":      {},
	"ml":     {},
	"unit":   {},
	"box":    {},
	"bottle": {},
	"pack":   {},
	"dozen":  {},
}

const fallbackUnit = "unit"

// SanitizeItems 清洗解析结果
// 解析服务可能返回枚举之外的单位/非法数值，逐项纠正而不是整体失败
func SanitizeItems(items []model.ParsedItem) []model.ParsedItem {
	out := make([]model.ParsedItem, 0, len(items))

	for _, item := range items {
		item.Product = strings.TrimSpace(item.Product)
		if item.Product == "" {
			// 没有品名的项无法下单，丢弃
			continue
		}

		unit := strings.ToLower(strings.TrimSpace(item.Unit))
		if _, ok := allowedUnits[unit]; !ok {
			unit = fallbackUnit
		}
		item.Unit = unit

		if item.Quantity <= 0 {
			item.Quantity = 1
		}

		if item.Confidence < 0 {
			item.Confidence = 0
		}
		if item.Confidence > 1 {
			item.Confidence = 1
		}

		out = append(out, item)
	}

	return out
}
