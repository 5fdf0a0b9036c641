package tencent

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

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

// K线原始表列名
var klineColumns = []string{"日期", "开盘", "收盘", "最高", "最低", "成交量"}

// parseKlineResponse 解析 ifzq K线响应
// data.<带前缀代码>.qfq<kind> 下每条K线为 [日期,开盘,收盘,最高,最低,成交量,...]
func parseKlineResponse(body []byte, prefixedCode, kind string) (*core.RawTable, error) {
	var resp struct {
		Code int                                   `json:"code"`
		Msg  string                                `json:"msg"`
		Data map[string]map[string]json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("tencent: malformed kline response: %w", err)
	}
	if resp.Code != 0 {
		return nil, fmt.Errorf("tencent: kline API error: code=%d msg=%s", resp.Code, resp.Msg)
	}

	table := core.NewRawTable(klineColumns...)
	section, ok := resp.Data[prefixedCode]
	if !ok {
		return table, nil
	}

	// 前复权数据在 qfq<kind> 键下，部分代码只有未复权的 <kind> 键
	raw, ok := section["qfq"+kind]
	if !ok {
		raw, ok = section[kind]
		if !ok {
			return table, nil
		}
	}

	var klines [][]any
	if err := json.Unmarshal(raw, &klines); err != nil {
		return nil, fmt.Errorf("tencent: malformed kline array: %w", err)
	}

	for _, kline := range klines {
		if len(kline) < 6 {
			continue
		}
		row := make([]string, 0, len(klineColumns))
		for i := 0; i < len(klineColumns); i++ {
			row = append(row, anyToString(kline[i]))
		}
		table.Append(row...)
	}

	return table, nil
}

// 分笔明细原始表列名，与 gtimg detail 下载文件表头一致
var detailColumns = []string{"成交时间", "成交价格", "价格变动", "成交量", "成交额", "性质"}

// parseDetailResponse 解析分笔明细下载响应
// 响应为GBK编码的制表符分隔文本，首行为表头
func parseDetailResponse(body []byte) (*core.RawTable, error) {
	text := gbkToUtf8(string(body))
	table := core.NewRawTable(detailColumns...)

	lines := strings.Split(strings.TrimSpace(text), "\n")
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		fields := strings.Split(line, "\t")
		if i == 0 && strings.Contains(line, "成交时间") {
			// 表头行
			continue
		}
		if len(fields) < 6 {
			continue
		}

		for j := range fields {
			fields[j] = strings.TrimSpace(fields[j])
		}
		table.Append(fields[:6]...)
	}

	return table, nil
}

// parseQuoteResponse 解析 qt.gtimg 实时行情响应
// 每只股票一行：v_sh600000="1~浦发银行~600000~...";，字段以 ~ 分隔
func parseQuoteResponse(body []byte) []core.QuoteData {
	data := strings.TrimSpace(string(body))
	if data == "" {
		return []core.QuoteData{}
	}

	stocks := strings.Split(data, ";")
	results := make([]core.QuoteData, 0, len(stocks))

	for _, stock := range stocks {
		stock = strings.TrimSpace(stock)
		if stock == "" {
			continue
		}

		equalIndex := strings.Index(stock, "=")
		if equalIndex == -1 || equalIndex+1 >= len(stock) {
			continue
		}

		dataPart := stock[equalIndex+1:]
		dataPart = strings.Trim(dataPart, "\"")
		fields := strings.Split(dataPart, "~")

		if len(fields) < 40 {
			continue
		}

		quote := core.QuoteData{
			Symbol:        extractSymbol(fields[2]),
			Name:          gbkToUtf8(fields[1]),
			Price:         parseFloat(fields[3]),
			Change:        parseFloat(fields[31]),
			ChangePercent: parseFloat(fields[32]),
			Open:          parseFloat(fields[5]),
			High:          parseFloat(fields[33]),
			Low:           parseFloat(fields[34]),
			PrevClose:     parseFloat(fields[4]),
			Volume:        parseInt(fields[6]) * 100, // 手转股
			Turnover:      parseTurnover(fields[35]),
			Timestamp:     parseTime(fields[30]),
		}

		results = append(results, quote)
	}

	return results
}

// extractSymbol 从带前缀代码中提取纯符号
func extractSymbol(rawSymbol string) string {
	rawSymbol = strings.TrimPrefix(rawSymbol, "sh")
	rawSymbol = strings.TrimPrefix(rawSymbol, "sz")
	rawSymbol = strings.TrimPrefix(rawSymbol, "bj")

	if dotIndex := strings.Index(rawSymbol, "."); dotIndex != -1 {
		rawSymbol = rawSymbol[:dotIndex]
	}

	return rawSymbol
}

// anyToString 把 JSON 数组元素还原为字符串
func anyToString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case nil:
		return ""
	}
	return fmt.Sprintf("%v", v)
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

// parseInt 安全解析整数
func parseInt(s string) int64 {
	if s == "" {
		return 0
	}
	val, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return val
}

// parseTime 解析行情时间戳
func parseTime(timeStr string) time.Time {
	var layout string
	if len(timeStr) == 14 {
		layout = "20060102150405"
	} else if len(timeStr) == 12 {
		layout = "200601021504"
	} else {
		return time.Now()
	}

	t, err := time.ParseInLocation(layout, timeStr, time.Local)
	if err != nil {
		return time.Now()
	}

	return t
}

// parseTurnover 从最新价/成交量/成交额复合字段中提取成交额
func parseTurnover(s string) float64 {
	if s == "" {
		return 0
	}

	parts := strings.Split(s, "/")
	if len(parts) >= 3 {
		return parseFloat(parts[2])
	}

	return parseFloat(s)
}
