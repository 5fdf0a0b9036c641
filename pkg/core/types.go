package core

import (
	"time"
)

// Period K线周期类型
type Period string

const (
	Period1Min     Period = "1min"
	Period5Min     Period = "5min"
	Period10Min    Period = "10min"
	Period15Min    Period = "15min"
	Period30Min    Period = "30min"
	Period1Hour    Period = "1hour"
	PeriodDaily    Period = "daily"
	PeriodWeek     Period = "week"
	PeriodMonth    Period = "month"
	PeriodQuarter  Period = "quarter"
	PeriodHalfYear Period = "half-year"
	PeriodYear     Period = "year"
)

// ValidPeriods 所有支持的K线周期
var ValidPeriods = []Period{
	Period1Min, Period5Min, Period10Min, Period15Min, Period30Min, Period1Hour,
	PeriodDaily, PeriodWeek, PeriodMonth, PeriodQuarter, PeriodHalfYear, PeriodYear,
}

// IsValid 检查周期是否受支持
func (p Period) IsValid() bool {
	for _, v := range ValidPeriods {
		if p == v {
			return true
		}
	}
	return false
}

// IsIntraday 判断是否为日内周期（分钟/小时级别）
// 日内周期的K线除交易日期外还携带交易时间
func (p Period) IsIntraday() bool {
	switch p {
	case Period1Min, Period5Min, Period10Min, Period15Min, Period30Min, Period1Hour:
		return true
	}
	return false
}

// TradeSide 分笔成交方向
type TradeSide string

const (
	TradeSideBuy     TradeSide = "buy"     // 买盘
	TradeSideSell    TradeSide = "sell"    // 卖盘
	TradeSideNeutral TradeSide = "neutral" // 中性盘
)

// BarData 一条K线数据（OHLCV）
// 由规范化器从数据源原始表构造，返回给调用方后不再修改
type BarData struct {
	Symbol       string     `json:"symbol"`        // 股票代码
	Period       Period     `json:"period"`        // K线周期
	TradeDate    time.Time  `json:"trade_date"`    // 交易日期
	TradeTime    *time.Time `json:"trade_time"`    // 交易时间（仅日内周期）
	Open         float64    `json:"open"`          // 开盘价
	High         float64    `json:"high"`          // 最高价
	Low          float64    `json:"low"`           // 最低价
	Close        float64    `json:"close"`         // 收盘价
	Volume       int64      `json:"volume"`        // 成交量
	Amount       float64    `json:"amount"`        // 成交额(元)
	ChangePrice  *float64   `json:"change_price"`  // 涨跌额（缺失时由收盘-开盘推导）
	ChangePct    *float64   `json:"change_pct"`    // 涨跌幅(%)
	TurnoverRate *float64   `json:"turnover_rate"` // 换手率
}

// TickData 一条分笔成交数据
type TickData struct {
	Symbol      string    `json:"symbol"`       // 股票代码
	TradeDate   time.Time `json:"trade_date"`   // 交易日期
	TradeTime   time.Time `json:"trade_time"`   // 成交时间
	Price       float64   `json:"price"`        // 成交价格
	PriceChange float64   `json:"price_change"` // 价格变动
	Volume      int64     `json:"volume"`       // 成交量
	Amount      float64   `json:"amount"`       // 成交金额
	Side        TradeSide `json:"side"`         // 成交方向
}

// StockInfo 股票基本信息（F10参考数据）
type StockInfo struct {
	Symbol      string     `json:"symbol"`       // 股票代码
	Name        string     `json:"name"`         // 股票简称
	Market      string     `json:"market"`       // 市场 (sh/sz/bj)
	ListDate    *time.Time `json:"list_date"`    // 上市日期
	TotalShares int64      `json:"total_shares"` // 总股本
	FloatShares int64      `json:"float_shares"` // 流通股本
	Industry    string     `json:"industry"`     // 所属行业
}

// QuoteData 实时行情快照
// 用于降级分笔数据源和实时推送
type QuoteData struct {
	Symbol        string    `json:"symbol"`         // 股票代码
	Name          string    `json:"name"`           // 股票名称
	Price         float64   `json:"price"`          // 最新价
	Change        float64   `json:"change"`         // 涨跌额
	ChangePercent float64   `json:"change_percent"` // 涨跌幅(%)
	Open          float64   `json:"open"`           // 开盘价
	High          float64   `json:"high"`           // 最高价
	Low           float64   `json:"low"`            // 最低价
	PrevClose     float64   `json:"prev_close"`     // 昨收价
	Volume        int64     `json:"volume"`         // 成交量
	Turnover      float64   `json:"turnover"`       // 成交额(元)
	Timestamp     time.Time `json:"timestamp"`      // 行情时间
}

// MarketFor 根据A股代码推断市场前缀
func MarketFor(symbol string) string {
	if symbol == "" {
		return "sh"
	}
	switch symbol[0] {
	case '6', '5':
		return "sh"
	case '0', '3':
		return "sz"
	case '4', '8', '9':
		return "bj"
	}
	return "sh"
}
