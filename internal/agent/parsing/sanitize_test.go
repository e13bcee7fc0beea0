package parsing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"vop/internal/model"
)

func TestSanitizeItems(t *testing.T) {
	items := []model.ParsedItem{
		{Product: "tomatoes", Quantity: 5, Unit: "KG", Confidence: 0.9},
		{Product: "olive oil", Quantity: 2, Unit: "barrel", Confidence: 0.8}, // 枚举外单位
		{Product: "flour", Quantity: -3, Unit: "kg", Confidence: 1.7},        // 非法数量与置信度
		{Product: "   ", Quantity: 1, Unit: "kg", Confidence: 0.5},           // 无品名
	}

	out := SanitizeItems(items)
	assert.Len(t, out, 3)

	assert.Equal(t, "kg", out[0].Unit)
	assert.Equal(t, "unit", out[1].Unit)
	assert.Equal(t, float64(1), out[2].Quantity)
	assert.Equal(t, float64(1), out[2].Confidence)
}

func TestSanitizeItemsEmpty(t *testing.T) {
	assert.Empty(t, SanitizeItems(nil))
}
