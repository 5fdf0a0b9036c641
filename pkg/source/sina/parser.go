package sina

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"stockfetch/pkg/core"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
)

// gbkToUtf8 将GBK编码转换为UTF-8
func gbkToUtf8(gbkStr string) string {
	if gbkStr == "" {
		return ""
	}

	reader := transform.NewReader(strings.NewReader(gbkStr), simplifiedchinese.GBK.NewDecoder())
	data, err := io.ReadAll(reader)
	if err != nil {
		return gbkStr
	}

	return string(data)
}

// K线原始表列名，接口返回英文字段
var klineColumns = []string{"day", "open", "high", "low", "close", "volume"}

// klineRecord CN_MarketDataService K线记录
type klineRecord struct {
	Day    string `json:"day"`
	Open   string `json:"open"`
	High   string `json:"high"`
	Low    string `json:"low"`
	Close  string `json:"close"`
	Volume string `json:"volume"`
}

// parseKlineResponse 解析K线响应
func parseKlineResponse(body []byte) (*core.RawTable, error) {
	table := core.NewRawTable(klineColumns...)

	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" || trimmed == "null" {
		return table, nil
	}

	var records []klineRecord
	if err := json.Unmarshal([]byte(trimmed), &records); err != nil {
		return nil, fmt.Errorf("sina: malformed kline response: %w", err)
	}

	for _, r := range records {
		table.Append(r.Day, r.Open, r.High, r.Low, r.Close, r.Volume)
	}

	return table, nil
}

// 合成分笔原始表列名，直接使用规范列名
var spotTickColumns = []string{"trade_time", "price", "price_change", "volume", "amount", "trade_type"}

// parseSpotTickResponse 从实时快照合成单条分笔记录
// 快照字段以逗号分隔：名称,今开,昨收,现价,最高,最低,...,成交量(股),成交额(元),...,日期,时间
func parseSpotTickResponse(body []byte) (*core.RawTable, error) {
	table := core.NewRawTable(spotTickColumns...)

	fields, err := spotFields(body)
	if err != nil {
		return nil, err
	}
	if fields == nil {
		return table, nil
	}

	price := parseFloat(fields[3])
	prevClose := parseFloat(fields[2])
	change := price - prevClose

	table.Append(
		fields[31],
		fields[3],
		strconv.FormatFloat(change, 'f', 2, 64),
		fields[8],
		fields[9],
		"中性盘",
	)

	return table, nil
}

// 基本信息原始表列名，直接使用规范列名
var infoColumns = []string{"stock_code", "stock_name"}

// parseInfoResponse 从实时快照提取基本信息，返回单行表
func parseInfoResponse(body []byte, symbol string) (*core.RawTable, error) {
	table := core.NewRawTable(infoColumns...)

	fields, err := spotFields(body)
	if err != nil {
		return nil, err
	}
	if fields == nil {
		return table, nil
	}

	table.Append(symbol, fields[0])
	return table, nil
}

// spotFields 解析 hq.sinajs 响应，返回逗号分隔的字段
// 无数据时返回 nil
func spotFields(body []byte) ([]string, error) {
	text := strings.TrimSpace(gbkToUtf8(string(body)))
	if text == "" {
		return nil, nil
	}

	// var hq_str_sh600000="浦发银行,10.45,10.40,...";
	equalIndex := strings.Index(text, "=")
	if equalIndex == -1 || equalIndex+1 >= len(text) {
		return nil, fmt.Errorf("sina: malformed spot response")
	}

	dataPart := strings.TrimSuffix(text[equalIndex+1:], ";")
	dataPart = strings.Trim(dataPart, "\"")
	if dataPart == "" {
		// 停牌或无效代码返回空串
		return nil, nil
	}

	fields := strings.Split(dataPart, ",")
	if len(fields) < 32 {
		return nil, fmt.Errorf("sina: spot response has %d fields, want at least 32", len(fields))
	}

	return fields, nil
}

// parseFloat 安全解析浮点数
func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	val, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return val
}
