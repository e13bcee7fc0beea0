package middlewares

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"

	"vop/pkg/ginx"
)

// SchedulerAuth 外部调度器鉴权
// Authorization 头与共享密钥做恒定时间比较
func SchedulerAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader("Authorization")
		if !tokenEqual(got, token) {
			ginx.Unauthorized(c, "invalid scheduler token")
			c.Abort()
			return
		}
		c.Next()
	}
}

// AgentAuth 同步客户端鉴权（X-Token 头）
// 未配置 token 时放行（本地开发）
func AgentAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		if !tokenEqual(c.GetHeader("X-Token"), token) {
			ginx.Unauthorized(c, "invalid token")
			c.Abort()
			return
		}
		c.Next()
	}
}

func tokenEqual(got, want string) bool {
	if want == "" || len(got) != len(want) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
