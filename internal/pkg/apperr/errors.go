// internal/pkg/apperr/errors.go
package apperr

import (
	"errors"
	"fmt"
)

// Code 是对外暴露的稳定错误码。
// 调用方和 HTTP 层只依赖 Code 做分支，不解析内部错误文本。
type Code string

const (
	CodeInsufficientStock   Code = "INSUFFICIENT_STOCK"    // 业务拒绝，不重试
	CodeConcurrencyConflict Code = "CONCURRENCY_CONFLICT"  // 版本冲突，调用方应重试
	CodeSessionNotFound     Code = "SESSION_NOT_FOUND"     // 结算会话不存在
	CodeSessionExpired      Code = "SESSION_EXPIRED"       // 结算会话已过期
	CodePaymentVerifyFailed Code = "PAYMENT_VERIFY_FAILED" // 签名校验失败，触发补偿
	CodeCircuitOpen         Code = "CIRCUIT_OPEN"          // 熔断开启，快速失败
	CodeRateLimited         Code = "RATE_LIMITED"          // 限流
	CodeTimeout             Code = "TIMEOUT"               // 下游超时，按失败补偿
	CodeDuplicateRequest    Code = "DUPLICATE_REQUEST"     // 幂等键冲突
	CodeInternal            Code = "INTERNAL"
)

// Error 携带稳定错误码和面向用户的消息，内部原因通过 Unwrap 获取，
// 不会随 Error() 输出给调用方。
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// New 创建一个带稳定错误码的错误。
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap 在保留内部原因的同时附加稳定错误码。
func Wrap(cause error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// CodeOf 提取错误链上的稳定错误码，链上没有 *Error 时返回 CodeInternal。
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsBusiness 判断是否业务性拒绝。业务错误不做自动重试，立即上抛。
func IsBusiness(err error) bool {
	switch CodeOf(err) {
	case CodeInsufficientStock, CodeSessionNotFound, CodeSessionExpired,
		CodePaymentVerifyFailed, CodeDuplicateRequest:
		return true
	}
	return false
}
