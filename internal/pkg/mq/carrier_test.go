// internal/pkg/mq/carrier_test.go
package mq

import (
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
)

func TestKafkaHeaderCarrierSetGet(t *testing.T) {
	carrier := KafkaHeaderCarrier{}

	carrier.Set("traceparent", "00-abc-def-01")
	assert.Equal(t, "00-abc-def-01", carrier.Get("traceparent"))
	assert.Equal(t, "", carrier.Get("missing"))

	// 同名键覆盖而不是追加
	carrier.Set("traceparent", "00-abc-def-02")
	assert.Equal(t, "00-abc-def-02", carrier.Get("traceparent"))
	assert.Equal(t, []string{"traceparent"}, carrier.Keys())
}

func TestGetHeader(t *testing.T) {
	msg := kafka.Message{Headers: []kafka.Header{
		{Key: "event-id", Value: []byte("evt-123")},
		{Key: "event-type", Value: []byte("order-cancel-requested")},
	}}

	assert.Equal(t, "evt-123", GetHeader(msg, "event-id"))
	assert.Equal(t, "", GetHeader(msg, "absent"))
}
