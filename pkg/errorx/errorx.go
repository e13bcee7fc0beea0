package errorx

import (
	"errors"
	"fmt"
	"time"
)

// Kind 错误类别
type Kind string

const (
	// KindValidation 校验错误（超限、格式非法），不可重试
	KindValidation Kind = "validation"
	// KindPermission 权限错误（无成员资格），不可重试
	KindPermission Kind = "permission"
	// KindRateLimit 频率限制，重置时间之前不可重试
	KindRateLimit Kind = "rate_limit"
	// KindTransient 瞬时错误（网络抖动、服务 5xx），可退避重试
	KindTransient Kind = "transient"
	// KindQuota 配额耗尽（解析/转写服务），可重试但需要向用户区分展示
	KindQuota Kind = "quota"
)

// Error 错误结构（包含可重试标记）
type Error struct {
	Kind       Kind      `json:"kind"`
	Code       int       `json:"code"`
	Message    string    `json:"message"`
	Retryable  bool      `json:"retryable"`
	ResetAt    time.Time `json:"reset_at,omitempty"` // 仅 rate_limit 使用
	DevDetails string    `json:"dev_details,omitempty"`
}

// Error 实现 error 接口
func (e *Error) Error() string {
	return e.Message
}

// Validation 创建校验错误（消息需包含被超出的数值限制）
func Validation(format string, args ...interface{}) *Error {
	return &Error{
		Kind:      KindValidation,
		Code:      400,
		Message:   fmt.Sprintf(format, args...),
		Retryable: false,
	}
}

// Permission 创建权限错误
func Permission(message string) *Error {
	return &Error{
		Kind:      KindPermission,
		Code:      403,
		Message:   message,
		Retryable: false,
	}
}

// RateLimit 创建频率限制错误，resetAt 为可再次提交的时间
func RateLimit(message string, resetAt time.Time) *Error {
	return &Error{
		Kind:      KindRateLimit,
		Code:      429,
		Message:   message,
		Retryable: false,
		ResetAt:   resetAt,
	}
}

// Transient 创建瞬时错误（网络错误、临时故障等）
func Transient(format string, args ...interface{}) *Error {
	return &Error{
		Kind:      KindTransient,
		Code:      500,
		Message:   fmt.Sprintf(format, args...),
		Retryable: true,
	}
}

// Quota 创建配额耗尽错误
func Quota(message string) *Error {
	return &Error{
		Kind:      KindQuota,
		Code:      429,
		Message:   message,
		Retryable: true,
	}
}

// Wrap 包装错误：已是 *Error 则原样返回，否则视为瞬时错误
func Wrap(err error) *Error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return e
	}

	return &Error{
		Kind:       KindTransient,
		Code:       500,
		Message:    err.Error(),
		Retryable:  true,
		DevDetails: fmt.Sprintf("%+v", err),
	}
}

// IsRetryable 判断错误是否可重试
// 未分类的错误按瞬时错误处理（可重试）
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return true
}

// KindOf 返回错误类别，未分类返回 KindTransient
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTransient
}

// ResetAtOf 返回频率限制错误的重置时间
func ResetAtOf(err error) (time.Time, bool) {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindRateLimit {
		return e.ResetAt, true
	}
	return time.Time{}, false
}
