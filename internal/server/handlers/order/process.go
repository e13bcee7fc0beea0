package order

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"vop/internal/model"
	"vop/internal/server/services/svorder"
	"vop/pkg/ginx"
)

// Smart-Wait 最长等待时间，超过按上限截断
const maxWaitSeconds = 30

// processRequest 订单定稿请求体
type processRequest struct {
	Suppliers []model.SupplierTarget `json:"suppliers"`
}

// Process 订单定稿接口：每个供应商入队一条通知任务后返回
// POST /api/v1/orders/:id/process?wait=<seconds>
// 携带 wait 参数时订阅完成通知（Smart-Wait），等到一条或超时后返回；
// 超时不算失败，任务仍在队列里由批处理器执行
func (h *OrderHandler) Process(c *gin.Context) {
	orderID := c.Param("id")

	var req processRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ginx.BadRequestWithValidation(c, err)
		return
	}

	jobIDs, err := h.orderService.ProcessOrder(c.Request.Context(), orderID, req.Suppliers)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			ginx.NotFound(c, "order not found")
			return
		}
		if errors.Is(err, svorder.ErrNoSuppliers) {
			ginx.BadRequest(c, err.Error())
			return
		}
		h.log.Errorf(c.Request.Context(), "[OrderHandler] process order %s failed: %v", orderID, err)
		ginx.InternalError(c, err.Error())
		return
	}

	resp := gin.H{
		"order_id": orderID,
		"job_ids":  jobIDs,
	}

	if wait := h.waitTimeout(c); wait > 0 && h.waiter != nil && len(jobIDs) > 0 {
		n, werr := h.waiter.WaitForNotification(c.Request.Context(), orderID, wait)
		if werr != nil {
			h.log.Infof(c.Request.Context(), "[OrderHandler] wait for order %s notification gave up: %v", orderID, werr)
			resp["timed_out"] = true
		} else {
			resp["notification"] = n
		}
	}

	ginx.Success(c, resp)
}

// waitTimeout 解析 wait 查询参数（秒），非法或缺省为 0
func (h *OrderHandler) waitTimeout(c *gin.Context) time.Duration {
	raw := c.Query("wait")
	if raw == "" {
		return 0
	}
	sec, err := strconv.Atoi(raw)
	if err != nil || sec <= 0 {
		return 0
	}
	if sec > maxWaitSeconds {
		sec = maxWaitSeconds
	}
	return time.Duration(sec) * time.Second
}
