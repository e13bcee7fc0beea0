package conversation

import (
	"fmt"
	"sync"
	"time"

	"vop/pkg/clockx"
)

// State 会话交互状态
type State string

const (
	StateIdle         State = "idle"
	StateTyping       State = "typing"
	StateRecording    State = "recording"
	StateAIProcessing State = "ai_processing"
	StateAIStreaming  State = "ai_streaming"
)

// Event 状态机事件
type Event string

const (
	EventUserStartedTyping    Event = "USER_STARTED_TYPING"
	EventUserStoppedTyping    Event = "USER_STOPPED_TYPING"
	EventUserStartedRecording Event = "USER_STARTED_RECORDING"
	EventUserStoppedRecording Event = "USER_STOPPED_RECORDING"
	EventMessageQueued        Event = "MESSAGE_QUEUED"
	EventAICallStarted        Event = "AI_CALL_STARTED"
	EventAIResponseStreaming  Event = "AI_RESPONSE_STREAMING"
	EventAIResponseComplete   Event = "AI_RESPONSE_COMPLETE"
)

// ErrInvalidTransition 非法状态转换
type ErrInvalidTransition struct {
	From  State
	Event Event
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid transition: event %s in state %s", e.Event, e.From)
}

// Machine 会话状态机
// 当前交互模式的唯一裁决者：录音与输入互斥在这里强制，不依赖 UI
// 每次页面加载重置为 idle，不从历史消息重建状态
type Machine struct {
	mu       sync.Mutex
	state    State
	clock    clockx.Clock
	decay    *clockx.Debouncer // 输入状态 1s 无活动自动衰减
	onChange func(State)
}

// NewMachine 创建状态机，初始为 idle
// onChange 可为 nil，在状态变更后（锁外）回调
func NewMachine(clock clockx.Clock, typingDecay time.Duration, onChange func(State)) *Machine {
	if typingDecay <= 0 {
		typingDecay = time.Second
	}
	return &Machine{
		state:    StateIdle,
		clock:    clock,
		decay:    clockx.NewDebouncer(clock, typingDecay),
		onChange: onChange,
	}
}

// State 返回当前状态
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Apply 应用事件，返回转换后的状态
// 非法转换返回 *ErrInvalidTransition，状态保持不变
func (m *Machine) Apply(ev Event) (State, error) {
	m.mu.Lock()

	next, err := m.transition(m.state, ev)
	if err != nil {
		m.mu.Unlock()
		return m.state, err
	}

	// 输入衰减定时器：开始输入时重新计时，离开 typing 时取消
	switch ev {
	case EventUserStartedTyping:
		m.decay.Arm(func() {
			// 1s 无活动，自动退回 idle
			m.Apply(EventUserStoppedTyping) //nolint:errcheck
		})
	default:
		m.decay.Cancel()
	}

	changed := next != m.state
	m.state = next
	cb := m.onChange
	m.mu.Unlock()

	if changed && cb != nil {
		cb(next)
	}
	return next, nil
}

// transition 转换表
func (m *Machine) transition(cur State, ev Event) (State, error) {
	switch ev {
	case EventUserStartedTyping:
		// 录音与输入互斥
		switch cur {
		case StateIdle, StateTyping:
			return StateTyping, nil
		}

	case EventUserStoppedTyping:
		switch cur {
		case StateTyping:
			return StateIdle, nil
		case StateIdle:
			return StateIdle, nil
		}

	case EventUserStartedRecording:
		switch cur {
		case StateIdle:
			return StateRecording, nil
		}

	case EventUserStoppedRecording:
		switch cur {
		case StateRecording:
			return StateIdle, nil
		}

	case EventMessageQueued:
		switch cur {
		case StateIdle, StateTyping:
			return StateIdle, nil
		}

	case EventAICallStarted:
		switch cur {
		case StateIdle:
			return StateAIProcessing, nil
		}

	case EventAIResponseStreaming:
		switch cur {
		case StateAIProcessing, StateAIStreaming:
			return StateAIStreaming, nil
		}

	case EventAIResponseComplete:
		switch cur {
		case StateAIProcessing, StateAIStreaming:
			return StateIdle, nil
		}
	}

	return cur, &ErrInvalidTransition{From: cur, Event: ev}
}

// Close 释放定时器
func (m *Machine) Close() {
	m.decay.Cancel()
}
