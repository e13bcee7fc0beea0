package order

import (
	"github.com/gin-gonic/gin"

	"vop/internal/model"
	"vop/pkg/ginx"
)

// Upsert 幂等写入订单接口
// PUT /api/v1/orders
func (h *OrderHandler) Upsert(c *gin.Context) {
	var req model.OrderPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		ginx.BadRequestWithValidation(c, err)
		return
	}

	if err := h.orderService.UpsertOrder(c.Request.Context(), req); err != nil {
		h.log.Errorf(c.Request.Context(), "[OrderHandler] upsert order %s failed: %v", req.ID, err)
		ginx.InternalError(c, err.Error())
		return
	}

	ginx.Success(c, gin.H{"id": req.ID})
}
