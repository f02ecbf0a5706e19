// internal/service/checkout/domain/errors.go
package domain

import "orderflow/internal/pkg/apperr"

var (
	// ErrSessionNotFound 会话不存在：从未创建、已完成或已被清理。
	ErrSessionNotFound = apperr.New(apperr.CodeSessionNotFound, "checkout session not found")

	// ErrSessionExpired 会话已到期，预占已回收。
	ErrSessionExpired = apperr.New(apperr.CodeSessionExpired, "checkout session expired")

	// ErrDuplicateRequest 幂等键已被占用，同一次结算不重复执行。
	ErrDuplicateRequest = apperr.New(apperr.CodeDuplicateRequest, "checkout already in progress for this idempotency key")

	// ErrVerificationFailed 客户端回调签名不匹配。
	ErrVerificationFailed = apperr.New(apperr.CodePaymentVerifyFailed, "payment signature verification failed")
)
