// internal/pkg/signature/signature_test.go
package signature

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifyRoundTrip(t *testing.T) {
	payload := []byte(`{"event":"payment.captured"}`)
	secret := []byte("webhook-secret")

	sig := HMACSHA256Hex(payload, secret)
	assert.True(t, Verify(payload, secret, sig))
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	secret := []byte("webhook-secret")
	sig := HMACSHA256Hex([]byte("original"), secret)

	assert.False(t, Verify([]byte("tampered"), secret, sig))
	assert.False(t, Verify([]byte("original"), []byte("wrong-secret"), sig))
	assert.False(t, Verify([]byte("original"), secret, "not-a-signature"))
}

func TestVerifyOrderPayment(t *testing.T) {
	secret := "webhook-secret"
	sig := HMACSHA256Hex([]byte("order_123|pay_456"), []byte(secret))

	assert.True(t, VerifyOrderPayment("order_123", "pay_456", secret, sig))
	assert.False(t, VerifyOrderPayment("order_123", "pay_999", secret, sig))
	assert.False(t, VerifyOrderPayment("order_999", "pay_456", secret, sig))
}
