package jobs

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"vop/internal/jobqueue"
	"vop/pkg/ginx"
	"vop/pkg/logger"
)

// JobHandler 任务批处理 HTTP 处理器
// 仅供外部调度器按固定间隔调用，路由挂在共享密钥鉴权之后
type JobHandler struct {
	processor  *jobqueue.Processor
	batchLimit int
	log        logger.Logger
}

// NewJobHandler 创建任务处理器实例
func NewJobHandler(processor *jobqueue.Processor, batchLimit int, log logger.Logger) *JobHandler {
	return &JobHandler{
		processor:  processor,
		batchLimit: batchLimit,
		log:        log,
	}
}

// Process 执行一批任务
// POST /api/v1/jobs/process?limit=50
func (h *JobHandler) Process(c *gin.Context) {
	limit := h.batchLimit
	if limitStr := c.Query("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 {
			limit = n
		}
	}

	result, err := h.processor.ProcessBatch(c.Request.Context(), limit)
	if err != nil {
		h.log.Errorf(c.Request.Context(), "[JobHandler] process batch failed: %v", err)
		ginx.InternalError(c, err.Error())
		return
	}

	ginx.Success(c, result)
}
