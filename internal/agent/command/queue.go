package command

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"

	"vop/pkg/clockx"
	"vop/pkg/errorx"
	"vop/pkg/logger"
	"vop/pkg/retry"
)

// Command 可执行的命令单元
// 生命周期归队列所有：成功或永久失败后即丢弃
type Command interface {
	Name() string
	Execute(ctx context.Context) error
}

// Config 队列配置
type Config struct {
	Name          string
	Clock         clockx.Clock
	Policy        retry.Policy
	BufferSize    int
	DebounceDelay time.Duration // 解析命令防抖时长

	// ParseFactory 防抖触发时构造解析命令；返回 nil 则跳过本次
	ParseFactory func() Command

	// OnCommandFailed 命令重试耗尽后回调（向用户呈现）
	OnCommandFailed func(cmd Command, err error)
}

// Queue 命令队列：严格按入队顺序、单实例内一次一个地执行命令
// 每个打开的会话一个队列实例，队列之间互不协调
type Queue struct {
	name     string
	clock    clockx.Clock
	policy   retry.Policy
	log      logger.Logger
	debounce *clockx.Debouncer
	factory  func() Command
	onFailed func(Command, error)

	mu      sync.Mutex
	cmds    chan Command
	closing *atomic.Bool
	wg      sync.WaitGroup
}

// NewQueue 创建命令队列
func NewQueue(cfg *Config, log logger.Logger) *Queue {
	bufSize := cfg.BufferSize
	if bufSize <= 0 {
		bufSize = 64
	}
	delay := cfg.DebounceDelay
	if delay <= 0 {
		delay = 2500 * time.Millisecond
	}

	return &Queue{
		name:     cfg.Name,
		clock:    cfg.Clock,
		policy:   cfg.Policy,
		log:      log,
		debounce: clockx.NewDebouncer(cfg.Clock, delay),
		factory:  cfg.ParseFactory,
		onFailed: cfg.OnCommandFailed,
		cmds:     make(chan Command, bufSize),
		closing:  atomic.NewBool(false),
	}
}

// Start 启动执行协程
func (q *Queue) Start(ctx context.Context) {
	q.wg.Add(1)
	go q.loop(ctx)
}

// Enqueue 入队一条命令
func (q *Queue) Enqueue(cmd Command) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closing.Load() {
		return fmt.Errorf("queue %s is closed", q.name)
	}

	select {
	case q.cmds <- cmd:
		return nil
	default:
		return fmt.Errorf("queue %s is full", q.name)
	}
}

// EnqueuePersist 立即入队持久化命令，并重置解析防抖计时
// 每次新消息提交都会让解析计时重新开始（经典防抖）
func (q *Queue) EnqueuePersist(cmd Command) error {
	if err := q.Enqueue(cmd); err != nil {
		return err
	}

	q.debounce.Arm(func() {
		if q.factory == nil {
			return
		}
		parseCmd := q.factory()
		if parseCmd == nil {
			return
		}
		if err := q.Enqueue(parseCmd); err != nil {
			q.log.Warnf(context.Background(), "[Queue-%s] enqueue parse command failed: %v", q.name, err)
		}
	})

	return nil
}

// CancelParse 取消未触发的解析计时
// 用户恢复输入或开始录音时调用，避免在组稿中途触发解析
func (q *Queue) CancelParse() {
	q.debounce.Cancel()
}

// Close 关闭队列：停止入队、取消计时、排空剩余命令后退出
func (q *Queue) Close() {
	if !q.closing.CAS(false, true) {
		return
	}

	q.debounce.Cancel()

	q.mu.Lock()
	close(q.cmds)
	q.mu.Unlock()

	q.wg.Wait()
}

// loop 执行循环
func (q *Queue) loop(ctx context.Context) {
	defer q.wg.Done()

	for cmd := range q.cmds {
		q.execute(ctx, cmd)
	}
}

// execute 执行单条命令（原地重试，后续命令不会插队）
func (q *Queue) execute(ctx context.Context, cmd Command) {
	attempts := 0

	for {
		attempts++
		err := cmd.Execute(ctx)
		if err == nil {
			q.log.Debugf(ctx, "[Queue-%s] command %s done, attempts=%d", q.name, cmd.Name(), attempts)
			return
		}

		if !errorx.IsRetryable(err) || q.policy.Exhausted(attempts) {
			q.log.Errorf(ctx, "[Queue-%s] command %s failed permanently after %d attempts: %v",
				q.name, cmd.Name(), attempts, err)
			if q.onFailed != nil {
				q.onFailed(cmd, err)
			}
			return
		}

		delay := q.policy.Delay(attempts - 1)
		q.log.Warnf(ctx, "[Queue-%s] command %s failed (attempt %d), retrying in %v: %v",
			q.name, cmd.Name(), attempts, delay, err)

		if sleepErr := clockx.Sleep(ctx, q.clock, delay); sleepErr != nil {
			if q.onFailed != nil {
				q.onFailed(cmd, sleepErr)
			}
			return
		}
	}
}
