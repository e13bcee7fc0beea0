package clockx

import (
	"sync"
	"time"
)

// Debouncer 可取消的一次性防抖定时器（arm/cancel/fire-once）
// 重复 Arm 会取消上一次未触发的定时，重新计时
type Debouncer struct {
	mu    sync.Mutex
	clock Clock
	delay time.Duration
	timer Timer
}

// NewDebouncer 创建防抖定时器
func NewDebouncer(clock Clock, delay time.Duration) *Debouncer {
	return &Debouncer{
		clock: clock,
		delay: delay,
	}
}

// Arm 重新计时，delay 之后执行 fn
// fn 在定时器协程中执行，只会触发一次
func (d *Debouncer) Arm(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = d.clock.AfterFunc(d.delay, fn)
}

// Cancel 取消未触发的定时，已触发则无效果
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
