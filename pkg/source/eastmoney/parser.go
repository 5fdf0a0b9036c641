package eastmoney

import (
	"encoding/json"
	"fmt"
	"strings"

	"stockfetch/pkg/core"
)

// klineResponse push2his K线接口响应
type klineResponse struct {
	Data *struct {
		Code   string   `json:"code"`
		Name   string   `json:"name"`
		Klines []string `json:"klines"`
	} `json:"data"`
}

// infoResponse push2 个股信息接口响应
type infoResponse struct {
	Data map[string]json.RawMessage `json:"data"`
}

// K线原始表列名，与 akshare 东财接口保持一致
var klineColumns = []string{
	"日期", "开盘", "收盘", "最高", "最低", "成交量", "成交额", "振幅", "涨跌幅", "涨跌额", "换手率",
}

// parseKlineResponse 解析K线响应
// 每条K线为逗号分隔的字符串：日期,开盘,收盘,最高,最低,成交量,成交额,振幅,涨跌幅,涨跌额,换手率
func parseKlineResponse(body []byte) (*core.RawTable, error) {
	var resp klineResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("eastmoney: malformed kline response: %w", err)
	}

	table := core.NewRawTable(klineColumns...)
	if resp.Data == nil {
		return table, nil
	}

	for _, line := range resp.Data.Klines {
		fields := strings.Split(line, ",")
		if len(fields) < 6 {
			continue
		}
		table.Append(fields...)
	}

	return table, nil
}

// 基本信息原始表列名
var infoColumns = []string{"股票代码", "股票简称", "总股本", "流通股", "行业", "上市时间"}

// 个股信息接口字段编号到列名的映射
var infoFields = map[string]string{
	"f57":  "股票代码",
	"f58":  "股票简称",
	"f84":  "总股本",
	"f85":  "流通股",
	"f127": "行业",
	"f189": "上市时间",
}

// parseInfoResponse 解析个股基本信息响应，返回单行表
func parseInfoResponse(body []byte) (*core.RawTable, error) {
	var resp infoResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("eastmoney: malformed info response: %w", err)
	}

	table := core.NewRawTable(infoColumns...)
	if len(resp.Data) == 0 {
		return table, nil
	}

	values := make(map[string]string, len(infoFields))
	for field, column := range infoFields {
		raw, ok := resp.Data[field]
		if !ok {
			continue
		}
		values[column] = decodeScalar(raw)
	}

	row := make([]string, 0, len(infoColumns))
	for _, column := range infoColumns {
		row = append(row, values[column])
	}
	table.Append(row...)

	return table, nil
}

// decodeScalar 把 JSON 标量还原为字符串，去掉字符串引号
func decodeScalar(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}
