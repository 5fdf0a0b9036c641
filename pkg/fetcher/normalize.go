package fetcher

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"stockfetch/pkg/core"
)

// 数据源原始列名到规范列名的固定映射。
// 规范列名映射到自身，保证对已规范化的表再次规范化是无操作。
var barColumnMap = map[string]string{
	// 东方财富/akshare 中文列名
	"日期":  "trade_date",
	"时间":  "trade_time",
	"开盘":  "open_price",
	"收盘":  "close_price",
	"最高":  "high_price",
	"最低":  "low_price",
	"成交量": "volume",
	"成交额": "amount",
	"涨跌额": "change_price",
	"涨跌幅": "change_pct",
	"换手率": "turnover_rate",
	// 新浪英文列名
	"day":   "trade_date",
	"open":  "open_price",
	"high":  "high_price",
	"low":   "low_price",
	"close": "close_price",
	// 规范列名
	"trade_date":    "trade_date",
	"trade_time":    "trade_time",
	"open_price":    "open_price",
	"close_price":   "close_price",
	"high_price":    "high_price",
	"low_price":     "low_price",
	"volume":        "volume",
	"amount":        "amount",
	"change_price":  "change_price",
	"change_pct":    "change_pct",
	"turnover_rate": "turnover_rate",
}

var tickColumnMap = map[string]string{
	// 腾讯分笔明细中文列名
	"成交时间": "trade_time",
	"成交价格": "price",
	"价格变动": "price_change",
	"成交量":  "volume",
	"成交额":  "amount",
	"性质":   "trade_type",
	// 规范列名
	"trade_time":   "trade_time",
	"price":        "price",
	"price_change": "price_change",
	"volume":       "volume",
	"amount":       "amount",
	"trade_type":   "trade_type",
}

var infoColumnMap = map[string]string{
	// 东方财富中文列名
	"股票代码": "stock_code",
	"股票简称": "stock_name",
	"总股本":  "total_shares",
	"流通股":  "float_shares",
	"行业":   "industry",
	"上市时间": "list_date",
	// 规范列名
	"stock_code":   "stock_code",
	"stock_name":   "stock_name",
	"total_shares": "total_shares",
	"float_shares": "float_shares",
	"industry":     "industry",
	"list_date":    "list_date",
}

// columnIndex 规范列名到原始表列下标的映射
type columnIndex map[string]int

// indexColumns 按固定映射解析原始表表头，无法识别的列被忽略
func indexColumns(table *core.RawTable, mapping map[string]string) columnIndex {
	idx := make(columnIndex)
	for i, column := range table.Columns {
		canonical, ok := mapping[strings.TrimSpace(column)]
		if !ok {
			continue
		}
		if _, dup := idx[canonical]; dup {
			continue
		}
		idx[canonical] = i
	}
	return idx
}

// cell 取一行中某规范列的值，列缺失时返回空串
func (idx columnIndex) cell(row []string, canonical string) string {
	i, ok := idx[canonical]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// NormalizeBars 把数据源原始K线表规范化为K线记录。
// 股票代码和周期来自调用方的请求参数而非数据本身；数值列按宽松规则
// 解析，无法解析的可选字段置空。涨跌额缺失时由 收盘-开盘 推导，
// 涨跌幅缺失时由 涨跌额/开盘*100 推导，开盘为零时不推导。
func NormalizeBars(table *core.RawTable, symbol string, period core.Period) ([]core.BarData, error) {
	idx := indexColumns(table, barColumnMap)
	if _, ok := idx["trade_date"]; !ok {
		return nil, fmt.Errorf("normalize bars: no trade_date column in %v", table.Columns)
	}

	bars := make([]core.BarData, 0, table.Len())
	for _, row := range table.Rows {
		date, tickTime, ok := parseBarDate(idx.cell(row, "trade_date"))
		if !ok {
			continue
		}
		if t := idx.cell(row, "trade_time"); t != "" {
			if parsed, err := combineTime(date, t); err == nil {
				tickTime = &parsed
			}
		}

		bar := core.BarData{
			Symbol:       symbol,
			Period:       period,
			TradeDate:    date,
			TradeTime:    tickTime,
			Open:         parseFloatOr(idx.cell(row, "open_price"), 0),
			High:         parseFloatOr(idx.cell(row, "high_price"), 0),
			Low:          parseFloatOr(idx.cell(row, "low_price"), 0),
			Close:        parseFloatOr(idx.cell(row, "close_price"), 0),
			Volume:       parseIntOr(idx.cell(row, "volume"), 0),
			Amount:       parseFloatOr(idx.cell(row, "amount"), 0),
			ChangePrice:  parseFloatPtr(idx.cell(row, "change_price")),
			ChangePct:    parseFloatPtr(idx.cell(row, "change_pct")),
			TurnoverRate: parseFloatPtr(idx.cell(row, "turnover_rate")),
		}

		deriveChanges(&bar, idx.cell(row, "open_price"), idx.cell(row, "close_price"))
		bars = append(bars, bar)
	}

	return bars, nil
}

// deriveChanges 按固定公式补全缺失的涨跌字段
func deriveChanges(bar *core.BarData, rawOpen, rawClose string) {
	open, openOK := parseFloat(rawOpen)
	closePrice, closeOK := parseFloat(rawClose)

	if bar.ChangePrice == nil && openOK && closeOK {
		change := closePrice - open
		bar.ChangePrice = &change
	}

	if bar.ChangePct == nil && bar.ChangePrice != nil && openOK && open != 0 {
		pct := *bar.ChangePrice / open * 100
		bar.ChangePct = &pct
	}
}

// NormalizeTicks 把数据源原始分笔表规范化为分笔记录。
// 交易日期来自调用方的请求参数，成交时间与之合并为完整时间戳
func NormalizeTicks(table *core.RawTable, symbol string, tradeDate time.Time) ([]core.TickData, error) {
	idx := indexColumns(table, tickColumnMap)
	if _, ok := idx["trade_time"]; !ok {
		return nil, fmt.Errorf("normalize ticks: no trade_time column in %v", table.Columns)
	}

	day := time.Date(tradeDate.Year(), tradeDate.Month(), tradeDate.Day(), 0, 0, 0, 0, time.Local)
	ticks := make([]core.TickData, 0, table.Len())

	for _, row := range table.Rows {
		tradeTime, err := combineTime(day, idx.cell(row, "trade_time"))
		if err != nil {
			continue
		}

		ticks = append(ticks, core.TickData{
			Symbol:      symbol,
			TradeDate:   day,
			TradeTime:   tradeTime,
			Price:       parseFloatOr(idx.cell(row, "price"), 0),
			PriceChange: parseFloatOr(idx.cell(row, "price_change"), 0),
			Volume:      parseIntOr(idx.cell(row, "volume"), 0),
			Amount:      parseFloatOr(idx.cell(row, "amount"), 0),
			Side:        tradeSideOf(idx.cell(row, "trade_type")),
		})
	}

	return ticks, nil
}

// NormalizeInfo 把单行基本信息表规范化为结构化记录
func NormalizeInfo(table *core.RawTable, symbol string) (*core.StockInfo, error) {
	if table.IsEmpty() {
		return nil, core.ErrNoData
	}

	idx := indexColumns(table, infoColumnMap)
	row := table.Rows[0]

	info := &core.StockInfo{
		Symbol:      symbol,
		Name:        idx.cell(row, "stock_name"),
		Market:      core.MarketFor(symbol),
		TotalShares: parseIntOr(idx.cell(row, "total_shares"), 0),
		FloatShares: parseIntOr(idx.cell(row, "float_shares"), 0),
		Industry:    idx.cell(row, "industry"),
	}

	if raw := idx.cell(row, "list_date"); raw != "" && raw != "-" {
		if date, _, ok := parseBarDate(raw); ok {
			info.ListDate = &date
		}
	}

	return info, nil
}

// CanonicalBarTable 把K线记录转回规范列名的表
// 用于再规范化校验和导出
func CanonicalBarTable(bars []core.BarData) *core.RawTable {
	table := core.NewRawTable(
		"trade_date", "trade_time", "open_price", "high_price", "low_price",
		"close_price", "volume", "amount", "change_price", "change_pct", "turnover_rate",
	)
	for _, bar := range bars {
		tradeTime := ""
		if bar.TradeTime != nil {
			tradeTime = bar.TradeTime.Format("15:04:05")
		}
		table.Append(
			bar.TradeDate.Format("2006-01-02"),
			tradeTime,
			formatFloat(bar.Open),
			formatFloat(bar.High),
			formatFloat(bar.Low),
			formatFloat(bar.Close),
			strconv.FormatInt(bar.Volume, 10),
			formatFloat(bar.Amount),
			formatFloatPtr(bar.ChangePrice),
			formatFloatPtr(bar.ChangePct),
			formatFloatPtr(bar.TurnoverRate),
		)
	}
	return table
}

// CanonicalTickTable 把分笔记录转回规范列名的表
func CanonicalTickTable(ticks []core.TickData) *core.RawTable {
	table := core.NewRawTable("trade_time", "price", "price_change", "volume", "amount", "trade_type")
	for _, tick := range ticks {
		table.Append(
			tick.TradeTime.Format("15:04:05"),
			formatFloat(tick.Price),
			formatFloat(tick.PriceChange),
			strconv.FormatInt(tick.Volume, 10),
			formatFloat(tick.Amount),
			string(tick.Side),
		)
	}
	return table
}

// tradeSideOf 把数据源的成交性质映射为规范方向
func tradeSideOf(raw string) core.TradeSide {
	switch strings.ToUpper(raw) {
	case "买盘", "B", "BUY":
		return core.TradeSideBuy
	case "卖盘", "S", "SELL":
		return core.TradeSideSell
	}
	return core.TradeSideNeutral
}

// 支持的日期格式，按常见程度排序
var barDateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"20060102",
}

// parseBarDate 解析交易日期，带时间部分时一并返回
func parseBarDate(raw string) (time.Time, *time.Time, bool) {
	if raw == "" {
		return time.Time{}, nil, false
	}

	for _, layout := range barDateLayouts {
		t, err := time.ParseInLocation(layout, raw, time.Local)
		if err != nil {
			continue
		}
		date := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.Local)
		if strings.Contains(layout, "15:04") {
			return date, &t, true
		}
		return date, nil, true
	}

	return time.Time{}, nil, false
}

// combineTime 把 HH:MM:SS 形式的时间合并到指定日期
func combineTime(day time.Time, raw string) (time.Time, error) {
	layout := "15:04:05"
	if len(raw) == 5 {
		layout = "15:04"
	}
	t, err := time.ParseInLocation(layout, raw, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: %w", raw, err)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.Local), nil
}

// parseFloat 宽松解析浮点数，剥离千分位逗号和百分号
func parseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSuffix(s, "%")
	if s == "" || s == "-" {
		return 0, false
	}
	val, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return val, true
}

// parseFloatOr 解析浮点数，失败时返回默认值
func parseFloatOr(s string, def float64) float64 {
	if val, ok := parseFloat(s); ok {
		return val
	}
	return def
}

// parseFloatPtr 解析浮点数，失败时视为缺失
func parseFloatPtr(s string) *float64 {
	if val, ok := parseFloat(s); ok {
		return &val
	}
	return nil
}

// parseIntOr 解析整数，接受浮点写法，失败时返回默认值
func parseIntOr(s string, def int64) int64 {
	val, ok := parseFloat(s)
	if !ok {
		return def
	}
	return int64(val)
}

// formatFloat 以最短形式格式化浮点数
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// formatFloatPtr 格式化可缺失的浮点数，缺失时为空串
func formatFloatPtr(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}
