// internal/service/payment/domain/method_test.go
package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMethodDetailsMarshalPopulatesOneArm(t *testing.T) {
	details := MethodDetails{
		Method: MethodCard,
		Card:   &CardDetails{Network: "Visa", Last4: "4242", Issuer: "HDFC"},
	}

	raw, err := json.Marshal(details)
	require.NoError(t, err)

	var flat map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &flat))
	assert.Contains(t, flat, "method")
	assert.Contains(t, flat, "card")
	// 其余分支不出现在线格式里
	assert.NotContains(t, flat, "upi")
	assert.NotContains(t, flat, "netbanking")
	assert.NotContains(t, flat, "wallet")
}

func TestMethodDetailsRoundTrip(t *testing.T) {
	cases := []MethodDetails{
		{Method: MethodCard, Card: &CardDetails{Network: "Visa", Last4: "4242"}},
		{Method: MethodUPI, UPI: &UPIDetails{VPA: "user@upi"}},
		{Method: MethodNetbanking, Netbanking: &NetbankingDetails{Bank: "SBIN"}},
		{Method: MethodWallet, Wallet: &WalletDetails{Provider: "paytm"}},
	}

	for _, original := range cases {
		raw, err := json.Marshal(original)
		require.NoError(t, err)

		var decoded MethodDetails
		require.NoError(t, json.Unmarshal(raw, &decoded))
		assert.Equal(t, original, decoded, "method %s", original.Method)
	}
}

func TestMethodDetailsRejectsUnknownMethod(t *testing.T) {
	var decoded MethodDetails
	err := json.Unmarshal([]byte(`{"method":"cheque"}`), &decoded)
	require.Error(t, err)

	_, err = json.Marshal(MethodDetails{Method: "cheque"})
	require.Error(t, err)
}

func TestMethodFromGatewayFields(t *testing.T) {
	m, err := MethodFromGatewayFields("card", map[string]string{
		"card_network": "Mastercard",
		"card_last4":   "0004",
	})
	require.NoError(t, err)
	require.NotNil(t, m.Card)
	assert.Equal(t, "Mastercard", m.Card.Network)
	assert.Equal(t, "0004", m.Card.Last4)
	assert.Nil(t, m.UPI)

	m, err = MethodFromGatewayFields("upi", map[string]string{"vpa": "user@upi"})
	require.NoError(t, err)
	require.NotNil(t, m.UPI)
	assert.Equal(t, "user@upi", m.UPI.VPA)

	_, err = MethodFromGatewayFields("cheque", nil)
	require.Error(t, err)
}
