package audio

import (
	"sync"
	"time"

	"vop/pkg/clockx"
)

// ProcessedRecording 已处理录音的指纹记录
// 仅追加、按时间窗滚动；用于幂等重提交与频率限额统计
type ProcessedRecording struct {
	ContentHash   string
	Timestamp     time.Time
	Duration      time.Duration
	Size          int
	Transcription string
}

// recordLog 内存环形日志，超过窗口的条目被修剪
// 进程重启丢失只影响幂等/限额优化，不影响投递正确性
type recordLog struct {
	mu      sync.Mutex
	clock   clockx.Clock
	window  time.Duration
	entries []ProcessedRecording
}

func newRecordLog(clock clockx.Clock, window time.Duration) *recordLog {
	return &recordLog{
		clock:  clock,
		window: window,
	}
}

// Lookup 按内容指纹查找窗口内的记录
func (l *recordLog) Lookup(hash string) (ProcessedRecording, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.prune()
	for _, e := range l.entries {
		if e.ContentHash == hash {
			return e, true
		}
	}
	return ProcessedRecording{}, false
}

// Append 追加记录并修剪过期条目
func (l *recordLog) Append(e ProcessedRecording) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, e)
	l.prune()
}

// CountAndOldest 返回窗口内条目数与最早条目的时间
func (l *recordLog) CountAndOldest() (int, time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.prune()
	if len(l.entries) == 0 {
		return 0, time.Time{}
	}

	oldest := l.entries[0].Timestamp
	for _, e := range l.entries[1:] {
		if e.Timestamp.Before(oldest) {
			oldest = e.Timestamp
		}
	}
	return len(l.entries), oldest
}

// prune 删除窗口外的条目（调用方需持锁）
func (l *recordLog) prune() {
	cutoff := l.clock.Now().Add(-l.window)
	kept := l.entries[:0]
	for _, e := range l.entries {
		if e.Timestamp.After(cutoff) {
			kept = append(kept, e)
		}
	}
	l.entries = kept
}
