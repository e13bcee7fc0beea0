package clockx

import (
	"context"
	"time"
)

// Clock 时钟接口（可注入假时钟，保证定时器测试的确定性）
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer 一次性定时器句柄
type Timer interface {
	// Stop 取消定时器，返回 false 表示已触发或已停止
	Stop() bool
}

// realClock 真实时钟实现
type realClock struct{}

// Real 返回基于 time 包的真实时钟
func Real() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Sleep 基于 Clock 的可取消休眠（用于重试退避）
// ctx 取消时提前返回 ctx.Err()
func Sleep(ctx context.Context, clock Clock, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	done := make(chan struct{})
	t := clock.AfterFunc(d, func() { close(done) })

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		t.Stop()
		return ctx.Err()
	}
}
