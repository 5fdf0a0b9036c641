package message

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockfetch/pkg/core"
)

func sampleQuotes() []core.QuoteData {
	return []core.QuoteData{
		{
			Symbol:        "600000",
			Name:          "浦发银行",
			Price:         10.50,
			Change:        0.15,
			ChangePercent: 1.45,
			Volume:        1250000,
			Timestamp:     time.Date(2025, 10, 10, 9, 30, 0, 0, time.Local),
		},
	}
}

func TestNewMessageFormat(t *testing.T) {
	msg := NewMessageFormat("test-producer", "tencent", "quote", sampleQuotes())

	assert.NotEmpty(t, msg.Header.MessageID)
	assert.Equal(t, "1.0", msg.Header.Version)
	assert.Equal(t, "test-producer", msg.Header.Producer)
	assert.Equal(t, "application/json", msg.Header.ContentType)
	assert.True(t, msg.Header.Timestamp > 0)

	assert.Equal(t, "tencent", msg.Metadata.Source)
	assert.Equal(t, "quote", msg.Metadata.DataType)
	assert.Equal(t, 1, msg.Metadata.BatchSize)

	assert.NotEmpty(t, msg.Checksum)
	assert.Contains(t, msg.Checksum, "sha256:")
}

func TestMessageFormat_Validate(t *testing.T) {
	msg := NewMessageFormat("test-producer", "tencent", "quote", sampleQuotes())

	assert.NoError(t, msg.Validate())

	// 篡改校验和后验证失败
	originalChecksum := msg.Checksum
	msg.Checksum = "invalid-checksum"
	err := msg.Validate()
	assert.Error(t, err)
	assert.Equal(t, ErrInvalidChecksum, err)

	msg.Checksum = originalChecksum
	assert.NoError(t, msg.Validate())

	// 篡改内容后验证失败
	msg.Metadata.Source = "tampered"
	assert.Error(t, msg.Validate())
}

func TestMessageFormat_ToJSON_FromJSON(t *testing.T) {
	originalMsg := NewMessageFormat("test-producer", "tencent", "quote", sampleQuotes())

	jsonStr, err := originalMsg.ToJSON()
	require.NoError(t, err)
	assert.NotEmpty(t, jsonStr)

	parsedMsg, err := FromJSON(jsonStr)
	require.NoError(t, err)

	assert.Equal(t, originalMsg.Header.MessageID, parsedMsg.Header.MessageID)
	assert.Equal(t, originalMsg.Header.Producer, parsedMsg.Header.Producer)
	assert.Equal(t, originalMsg.Metadata.Source, parsedMsg.Metadata.Source)
	assert.Equal(t, originalMsg.Metadata.DataType, parsedMsg.Metadata.DataType)
	assert.Equal(t, originalMsg.Metadata.BatchSize, parsedMsg.Metadata.BatchSize)

	// JSON 反序列化后 payload 变为通用类型
	payloadArray, ok := parsedMsg.Payload.([]interface{})
	require.True(t, ok, "payload should be an array after JSON parsing")
	require.Len(t, payloadArray, 1)

	payloadItem, ok := payloadArray[0].(map[string]interface{})
	require.True(t, ok, "payload item should be a map after JSON parsing")

	assert.Equal(t, "600000", payloadItem["symbol"])
	assert.Equal(t, "浦发银行", payloadItem["name"])
	assert.Equal(t, 10.5, payloadItem["price"])
}

func TestGetStreamName(t *testing.T) {
	tests := []struct {
		dataType     string
		expectedName string
	}{
		{"quote", "stream:quote:realtime"},
		{"bar", "stream:bar:incremental"},
		{"tick", "stream:tick:daily"},
		{"unknown_type", "stream:unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.dataType, func(t *testing.T) {
			assert.Equal(t, tt.expectedName, GetStreamName(tt.dataType))
		})
	}
}

func TestMessageFormat_SetMarket(t *testing.T) {
	msg := NewMessageFormat("test-producer", "tencent", "quote", sampleQuotes())
	originalChecksum := msg.Checksum

	msg.SetMarket("A-share")

	assert.Equal(t, "A-share", msg.Metadata.Market)
	// 校验和随内容刷新
	assert.NotEqual(t, originalChecksum, msg.Checksum)
	assert.NoError(t, msg.Validate())
}

func TestMessageFormat_BatchSize(t *testing.T) {
	day := time.Date(2025, 10, 10, 0, 0, 0, 0, time.Local)

	tests := []struct {
		name      string
		payload   interface{}
		batchSize int
	}{
		{
			name: "行情数组",
			payload: []core.QuoteData{
				{Symbol: "600000"},
				{Symbol: "000001"},
			},
			batchSize: 2,
		},
		{
			name: "K线数组",
			payload: []core.BarData{
				{Symbol: "600000", TradeDate: day},
			},
			batchSize: 1,
		},
		{
			name: "分笔数组",
			payload: []core.TickData{
				{Symbol: "600000", TradeDate: day},
				{Symbol: "600000", TradeDate: day},
				{Symbol: "600000", TradeDate: day},
			},
			batchSize: 3,
		},
		{
			name:      "其他类型",
			payload:   "some string",
			batchSize: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := NewMessageFormat("test-producer", "tencent", "quote", tt.payload)
			assert.Equal(t, tt.batchSize, msg.Metadata.BatchSize)
		})
	}
}

func TestMessageFormat_InvalidJSON(t *testing.T) {
	_, err := FromJSON("invalid json")
	assert.Error(t, err)

	_, err = FromJSON("")
	assert.Error(t, err)
}
