// internal/service/order/domain/errors.go
package domain

import "orderflow/internal/pkg/apperr"

var (
	// ErrOrderNotFound 订单不存在。
	ErrOrderNotFound = apperr.New(apperr.CodeInternal, "order not found")

	// ErrInvalidTransition 当前状态不允许请求的流转。
	ErrInvalidTransition = apperr.New(apperr.CodeConcurrencyConflict, "order state does not allow this transition")
)
