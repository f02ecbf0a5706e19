// internal/service/payment/domain/errors.go
package domain

import "orderflow/internal/pkg/apperr"

var (
	// ErrVerificationFailed 签名不匹配，触发补偿。
	ErrVerificationFailed = apperr.New(apperr.CodePaymentVerifyFailed, "payment signature verification failed")

	// ErrPaymentNotFound 支付记录不存在。
	ErrPaymentNotFound = apperr.New(apperr.CodeInternal, "payment not found")
)
