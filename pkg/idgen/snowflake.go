package idgen

import (
	"sync"
	"time"
)

// Generator 简化的雪花 ID 生成器（服务端 Job ID 用）
// ID 格式: 时间偏移(秒) * 100000 + 机器ID * 1000 + 序列号
type Generator struct {
	mu        sync.Mutex
	epoch     int64 // 起始时间戳
	machineID int64 // 机器ID (0-99)
	sequence  int64 // 序列号 (0-999)
	lastTime  int64 // 上次生成 ID 的时间戳
}

const (
	maxMachineID = 99
	maxSequence  = 999
)

// NewGenerator 创建 ID 生成器，machineID 范围 0-99
func NewGenerator(machineID int64) *Generator {
	if machineID < 0 || machineID > maxMachineID {
		machineID = 0
	}

	// 使用 2024-01-01 00:00:00 作为起始时间
	epoch := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Unix()

	return &Generator{
		epoch:     epoch,
		machineID: machineID,
	}
}

// NextID 生成下一个 ID
func (g *Generator) NextID() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now().Unix()

	if now == g.lastTime {
		// 同一秒内，序列号递增
		g.sequence = (g.sequence + 1) % (maxSequence + 1)
		if g.sequence == 0 {
			// 序列号用尽，等待下一秒
			for now <= g.lastTime {
				now = time.Now().Unix()
			}
		}
	} else {
		g.sequence = 0
	}

	g.lastTime = now

	return (now-g.epoch)*100000 + g.machineID*1000 + g.sequence
}
