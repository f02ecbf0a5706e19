// internal/pkg/signature/signature.go
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// HMACSHA256Hex 计算 payload 的 HMAC-SHA256 并输出十六进制，
// 与支付网关公布的签名算法一致。
func HMACSHA256Hex(payload, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify 用常数时间比较校验签名，防时序侧信道。
func Verify(payload, secret []byte, provided string) bool {
	expected := HMACSHA256Hex(payload, secret)
	return hmac.Equal([]byte(expected), []byte(provided))
}

// VerifyOrderPayment 校验客户端回调签名。
// 签名串为 "<gatewayOrderId>|<gatewayPaymentId>"。
func VerifyOrderPayment(gatewayOrderID, gatewayPaymentID, secret, provided string) bool {
	return Verify([]byte(gatewayOrderID+"|"+gatewayPaymentID), []byte(secret), provided)
}
