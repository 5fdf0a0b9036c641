// Package source 定义数据源适配器接口。
//
// 每个适配器对应一条上游访问路径，把各自的原始响应转成 core.RawTable；
// 空表表示上游成功响应但没有数据。适配器内部不做重试，也不吞掉错误，
// 失败一律向上抛出，由故障切换编排器决定重试和切换。
package source

import (
	"context"
	"time"

	"stockfetch/pkg/core"
)

// Source 所有数据源适配器的基础接口
type Source interface {
	// Name 返回数据源名称，例如 "eastmoney" 或 "tencent"
	Name() string
}

// BarSource K线数据源适配器接口
type BarSource interface {
	Source

	// FetchBars 获取指定股票在日期范围内的K线数据
	FetchBars(ctx context.Context, symbol string, period core.Period, start, end time.Time) (*core.RawTable, error)
}

// TickSource 分笔数据源适配器接口
type TickSource interface {
	Source

	// FetchTicks 获取指定股票单个交易日的分笔数据
	FetchTicks(ctx context.Context, symbol string, tradeDate time.Time) (*core.RawTable, error)
}

// InfoSource 股票基本信息数据源适配器接口
type InfoSource interface {
	Source

	// FetchInfo 获取单只股票的基本信息，返回单行表
	FetchInfo(ctx context.Context, symbol string) (*core.RawTable, error)
}

// QuoteSource 实时行情数据源适配器接口
type QuoteSource interface {
	Source

	// FetchQuotes 获取指定股票列表的实时行情快照
	FetchQuotes(ctx context.Context, symbols []string) ([]core.QuoteData, error)
}
