// internal/pkg/apperr/errors_test.go
package apperr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOfTraversesWrapChain(t *testing.T) {
	cause := errors.New("row not found")
	err := Wrap(cause, CodeSessionNotFound, "checkout session not found")

	assert.Equal(t, CodeSessionNotFound, CodeOf(err))
	assert.ErrorIs(t, err, cause)
}

func TestCodeOfDefaultsToInternal(t *testing.T) {
	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain error")))
}

func TestIsBusiness(t *testing.T) {
	assert.True(t, IsBusiness(New(CodeInsufficientStock, "")))
	assert.True(t, IsBusiness(New(CodeDuplicateRequest, "")))
	assert.True(t, IsBusiness(New(CodePaymentVerifyFailed, "")))

	// 冲突和基础设施故障不是业务拒绝：前者调用方重试，后者计入熔断
	assert.False(t, IsBusiness(New(CodeConcurrencyConflict, "")))
	assert.False(t, IsBusiness(New(CodeTimeout, "")))
	assert.False(t, IsBusiness(errors.New("plain error")))
}

func TestErrorMessageDoesNotLeakCause(t *testing.T) {
	err := Wrap(errors.New("dial tcp 10.0.0.5: connection refused"), CodeTimeout, "inventory call timed out")
	assert.NotContains(t, err.Error(), "10.0.0.5")
}
