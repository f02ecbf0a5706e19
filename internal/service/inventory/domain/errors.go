// internal/service/inventory/domain/errors.go
package domain

import "orderflow/internal/pkg/apperr"

var (
	// ErrInsufficientStock 可用库存不足，业务拒绝，不重试。
	ErrInsufficientStock = apperr.New(apperr.CodeInsufficientStock, "insufficient available stock")

	// ErrConcurrencyConflict 版本检查失败，调用方应重试。
	ErrConcurrencyConflict = apperr.New(apperr.CodeConcurrencyConflict, "concurrent modification detected, retry")

	// ErrSkuNotFound SKU 不存在。
	ErrSkuNotFound = apperr.New(apperr.CodeInternal, "sku not found")
)
