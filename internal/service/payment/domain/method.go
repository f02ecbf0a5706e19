// internal/service/payment/domain/method.go
package domain

import (
	"encoding/json"
	"fmt"
)

// Method 是支付方式的判别标签。
type Method string

const (
	MethodCard       Method = "card"
	MethodUPI        Method = "upi"
	MethodNetbanking Method = "netbanking"
	MethodWallet     Method = "wallet"
)

// MethodDetails 是按支付方式区分的标签联合：
// Method 决定哪个分支有值，其余分支为 nil。
// 网关侧是一张带判别字符串的多可空字段平铺记录，这里收敛成各自只携带相关字段的变体。
type MethodDetails struct {
	Method     Method
	Card       *CardDetails
	UPI        *UPIDetails
	Netbanking *NetbankingDetails
	Wallet     *WalletDetails
}

type CardDetails struct {
	Network string `json:"network"`
	Last4   string `json:"last4"`
	Issuer  string `json:"issuer,omitempty"`
}

type UPIDetails struct {
	VPA string `json:"vpa"`
}

type NetbankingDetails struct {
	Bank string `json:"bank"`
}

type WalletDetails struct {
	Provider string `json:"provider"`
}

// methodEnvelope 是 MethodDetails 的线格式。
type methodEnvelope struct {
	Method     Method             `json:"method"`
	Card       *CardDetails       `json:"card,omitempty"`
	UPI        *UPIDetails        `json:"upi,omitempty"`
	Netbanking *NetbankingDetails `json:"netbanking,omitempty"`
	Wallet     *WalletDetails     `json:"wallet,omitempty"`
}

// MarshalJSON 只序列化当前方式对应的分支。
func (m MethodDetails) MarshalJSON() ([]byte, error) {
	env := methodEnvelope{Method: m.Method}
	switch m.Method {
	case MethodCard:
		env.Card = m.Card
	case MethodUPI:
		env.UPI = m.UPI
	case MethodNetbanking:
		env.Netbanking = m.Netbanking
	case MethodWallet:
		env.Wallet = m.Wallet
	default:
		return nil, fmt.Errorf("unknown payment method %q", m.Method)
	}
	return json.Marshal(env)
}

// UnmarshalJSON 按判别标签恢复对应分支。
func (m *MethodDetails) UnmarshalJSON(data []byte) error {
	var env methodEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	parsed := MethodDetails{Method: env.Method}
	switch env.Method {
	case MethodCard:
		parsed.Card = env.Card
	case MethodUPI:
		parsed.UPI = env.UPI
	case MethodNetbanking:
		parsed.Netbanking = env.Netbanking
	case MethodWallet:
		parsed.Wallet = env.Wallet
	default:
		return fmt.Errorf("unknown payment method %q", env.Method)
	}
	*m = parsed
	return nil
}

// MethodFromGatewayFields 把网关回调里的平铺字段收敛为标签联合。
// discriminator 是网关的 method 字符串。
func MethodFromGatewayFields(discriminator string, fields map[string]string) (*MethodDetails, error) {
	switch Method(discriminator) {
	case MethodCard:
		return &MethodDetails{Method: MethodCard, Card: &CardDetails{
			Network: fields["card_network"],
			Last4:   fields["card_last4"],
			Issuer:  fields["card_issuer"],
		}}, nil
	case MethodUPI:
		return &MethodDetails{Method: MethodUPI, UPI: &UPIDetails{
			VPA: fields["vpa"],
		}}, nil
	case MethodNetbanking:
		return &MethodDetails{Method: MethodNetbanking, Netbanking: &NetbankingDetails{
			Bank: fields["bank"],
		}}, nil
	case MethodWallet:
		return &MethodDetails{Method: MethodWallet, Wallet: &WalletDetails{
			Provider: fields["wallet"],
		}}, nil
	}
	return nil, fmt.Errorf("unknown payment method %q", discriminator)
}
