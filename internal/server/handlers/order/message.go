package order

import (
	"github.com/gin-gonic/gin"

	"vop/internal/model"
	"vop/pkg/ginx"
)

// InsertMessage 幂等写入消息接口
// POST /api/v1/orders/:id/messages
func (h *OrderHandler) InsertMessage(c *gin.Context) {
	orderID := c.Param("id")

	var req model.MessagePayload
	if err := c.ShouldBindJSON(&req); err != nil {
		ginx.BadRequestWithValidation(c, err)
		return
	}
	req.OrderID = orderID

	if err := h.orderService.InsertMessage(c.Request.Context(), req); err != nil {
		h.log.Errorf(c.Request.Context(), "[OrderHandler] insert message %s failed: %v", req.ID, err)
		ginx.InternalError(c, err.Error())
		return
	}

	ginx.Success(c, gin.H{"id": req.ID})
}

// ListMessages 查询订单消息接口
// GET /api/v1/orders/:id/messages
func (h *OrderHandler) ListMessages(c *gin.Context) {
	orderID := c.Param("id")

	msgs, err := h.orderService.ListMessages(c.Request.Context(), orderID)
	if err != nil {
		h.log.Errorf(c.Request.Context(), "[OrderHandler] list messages for %s failed: %v", orderID, err)
		ginx.InternalError(c, err.Error())
		return
	}

	ginx.Success(c, gin.H{"messages": msgs})
}
