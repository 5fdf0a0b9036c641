// Package message 定义行情推送的标准消息格式。
// 抓取守护进程把实时行情和K线增量封装后写入 Redis Stream，
// 下游采集器按校验和验证完整性后消费。
package message

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"stockfetch/pkg/core"

	"github.com/google/uuid"
)

// 错误定义
var (
	ErrInvalidChecksum = errors.New("message checksum mismatch")
	ErrInvalidFormat   = errors.New("invalid message format")
)

// MessageHeader 消息头部信息
type MessageHeader struct {
	MessageID   string `json:"messageId"`
	Timestamp   int64  `json:"timestamp"`
	Version     string `json:"version"`
	Producer    string `json:"producer"`
	ContentType string `json:"contentType"`
}

// MessageMetadata 消息元数据
type MessageMetadata struct {
	Source    string `json:"source"`   // 数据来源（eastmoney/tencent/sina）
	DataType  string `json:"dataType"` // quote/bar/tick
	BatchSize int    `json:"batchSize"`
	Market    string `json:"market,omitempty"`
}

// MessageFormat 标准消息格式
type MessageFormat struct {
	Header   MessageHeader   `json:"header"`
	Metadata MessageMetadata `json:"metadata"`
	Payload  interface{}     `json:"payload"`
	Checksum string          `json:"checksum"`
}

// NewMessageFormat 创建新的消息并计算校验和
func NewMessageFormat(producer, source, dataType string, payload interface{}) *MessageFormat {
	header := MessageHeader{
		MessageID:   uuid.New().String(),
		Timestamp:   time.Now().Unix(),
		Version:     "1.0",
		Producer:    producer,
		ContentType: "application/json",
	}

	var batchSize int
	switch p := payload.(type) {
	case []core.QuoteData:
		batchSize = len(p)
	case []core.BarData:
		batchSize = len(p)
	case []core.TickData:
		batchSize = len(p)
	default:
		batchSize = 1
	}

	metadata := MessageMetadata{
		Source:    source,
		DataType:  dataType,
		BatchSize: batchSize,
	}

	msg := &MessageFormat{
		Header:   header,
		Metadata: metadata,
		Payload:  payload,
	}

	msg.Checksum = msg.calculateChecksum()
	return msg
}

// calculateChecksum 计算消息校验和（排除 checksum 字段本身）
func (m *MessageFormat) calculateChecksum() string {
	temp := MessageFormat{
		Header:   m.Header,
		Metadata: m.Metadata,
		Payload:  m.Payload,
	}

	data, err := json.Marshal(temp)
	if err != nil {
		return ""
	}

	hash := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(hash[:])
}

// Validate 验证消息完整性
func (m *MessageFormat) Validate() error {
	expectedChecksum := m.calculateChecksum()
	if m.Checksum != expectedChecksum {
		return ErrInvalidChecksum
	}
	return nil
}

// ToJSON 将消息转换为 JSON 字符串
func (m *MessageFormat) ToJSON() (string, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// FromJSON 从 JSON 字符串解析消息
func FromJSON(jsonStr string) (*MessageFormat, error) {
	var msg MessageFormat
	if err := json.Unmarshal([]byte(jsonStr), &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// GetStreamName 根据数据类型获取 Redis Stream 名称
func GetStreamName(dataType string) string {
	switch dataType {
	case "quote":
		return "stream:quote:realtime"
	case "bar":
		return "stream:bar:incremental"
	case "tick":
		return "stream:tick:daily"
	default:
		return "stream:unknown"
	}
}

// SetMarket 设置市场信息并刷新校验和
func (m *MessageFormat) SetMarket(market string) {
	m.Metadata.Market = market
	m.Checksum = m.calculateChecksum()
}
