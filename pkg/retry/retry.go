package retry

import "time"

// Policy 有界指数退避重试策略
// 命令队列与远端任务队列共用同一策略对象
type Policy struct {
	MaxAttempts int           // 最大尝试次数（含首次执行）
	BaseDelay   time.Duration // 首次重试前的等待时长
}

// Default 默认策略：3 次尝试，基础延迟 1 秒
func Default() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
	}
}

// Delay 返回第 retryCount 次重试前的等待时长
// retryCount 从 0 开始：baseDelay × 2^retryCount
func (p Policy) Delay(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}

	d := p.BaseDelay
	for i := 0; i < retryCount; i++ {
		d *= 2
	}
	return d
}

// Exhausted 判断尝试次数是否已用尽
func (p Policy) Exhausted(attempts int) bool {
	return attempts >= p.MaxAttempts
}
