package fetcher

import (
	"stockfetch/pkg/core"
)

// TradeStatistics 单只股票单个交易日的分笔成交统计
type TradeStatistics struct {
	Symbol       string  `json:"symbol"`
	TradeCount   int     `json:"trade_count"`   // 成交笔数
	BuyCount     int     `json:"buy_count"`     // 买盘笔数
	SellCount    int     `json:"sell_count"`    // 卖盘笔数
	NeutralCount int     `json:"neutral_count"` // 中性盘笔数
	BuyVolume    int64   `json:"buy_volume"`    // 买盘成交量
	SellVolume   int64   `json:"sell_volume"`   // 卖盘成交量
	TotalVolume  int64   `json:"total_volume"`  // 总成交量
	TotalAmount  float64 `json:"total_amount"`  // 总成交额
	AvgPrice     float64 `json:"avg_price"`     // 成交量加权均价
	HighPrice    float64 `json:"high_price"`    // 最高成交价
	LowPrice     float64 `json:"low_price"`     // 最低成交价
}

// ComputeTradeStatistics 从分笔记录汇总成交统计
// 空输入返回零值统计
func ComputeTradeStatistics(symbol string, ticks []core.TickData) *TradeStatistics {
	stats := &TradeStatistics{Symbol: symbol}

	for _, tick := range ticks {
		stats.TradeCount++
		stats.TotalVolume += tick.Volume
		stats.TotalAmount += tick.Amount

		switch tick.Side {
		case core.TradeSideBuy:
			stats.BuyCount++
			stats.BuyVolume += tick.Volume
		case core.TradeSideSell:
			stats.SellCount++
			stats.SellVolume += tick.Volume
		default:
			stats.NeutralCount++
		}

		if stats.HighPrice == 0 || tick.Price > stats.HighPrice {
			stats.HighPrice = tick.Price
		}
		if stats.LowPrice == 0 || tick.Price < stats.LowPrice {
			stats.LowPrice = tick.Price
		}
	}

	if stats.TotalVolume > 0 {
		stats.AvgPrice = stats.TotalAmount / float64(stats.TotalVolume)
	}

	return stats
}
