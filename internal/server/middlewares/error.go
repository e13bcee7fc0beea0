package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"vop/pkg/logger"
)

// ErrorHandler 统一错误处理中间件：兜底 panic 并返回 500
func ErrorHandler(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf(c.Request.Context(), "[HTTP] panic recovered: %v", r)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"meta": gin.H{
						"code":    http.StatusInternalServerError,
						"message": "internal server error",
					},
				})
			}
		}()

		c.Next()
	}
}
