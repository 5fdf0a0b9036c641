package fetcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockfetch/pkg/core"
	"stockfetch/pkg/timing"
)

func TestFetchBarsBatch(t *testing.T) {
	now := time.Date(2025, 10, 10, 15, 30, 0, 0, time.Local)
	market := timing.NewMarketTime(&fixedTime{now: now})

	t.Run("单只失败不影响其它股票", func(t *testing.T) {
		src := &fakeBarSource{name: "eastmoney", fn: func(ctx context.Context, symbol string, period core.Period, start, end time.Time) (*core.RawTable, error) {
			if symbol == "600001" {
				return nil, errors.New("http 502")
			}
			return dailyBarTable(now, 5), nil
		}}

		s := NewService(testFetcherConfig(), WithBarSources(src), WithMarketTime(market))

		result := s.FetchBarsBatch(context.Background(), []string{"600000", "600001", "600002"},
			core.PeriodDaily, time.Time{}, time.Time{})

		assert.Len(t, result.Bars, 2)
		assert.Len(t, result.Bars["600000"], 5)
		require.Len(t, result.Errors, 1)
		assert.True(t, IsExhausted(result.Errors["600001"]))
	})

	t.Run("并发数不超过配置上限", func(t *testing.T) {
		var mu sync.Mutex
		var active, peak int

		src := &fakeBarSource{name: "eastmoney", fn: func(ctx context.Context, symbol string, period core.Period, start, end time.Time) (*core.RawTable, error) {
			mu.Lock()
			active++
			if active > peak {
				peak = active
			}
			mu.Unlock()

			time.Sleep(10 * time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
			return dailyBarTable(now, 1), nil
		}}

		cfg := testFetcherConfig()
		cfg.BatchConcurrency = 2
		s := NewService(cfg, WithBarSources(src), WithMarketTime(market))

		symbols := []string{"600000", "600001", "600002", "600003", "600004", "600005"}
		result := s.FetchBarsBatch(context.Background(), symbols, core.PeriodDaily, time.Time{}, time.Time{})

		assert.Len(t, result.Bars, 6)
		assert.LessOrEqual(t, peak, 2)
	})

	t.Run("上下文取消后停止派发", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())

		var mu sync.Mutex
		var calls int
		src := &fakeBarSource{name: "eastmoney", fn: func(ctx context.Context, symbol string, period core.Period, start, end time.Time) (*core.RawTable, error) {
			mu.Lock()
			calls++
			mu.Unlock()
			cancel()
			// 占住 worker，确保派发循环先观察到取消
			time.Sleep(50 * time.Millisecond)
			return dailyBarTable(now, 1), nil
		}}

		cfg := testFetcherConfig()
		cfg.BatchConcurrency = 1
		s := NewService(cfg, WithBarSources(src), WithMarketTime(market))

		symbols := []string{"600000", "600001", "600002", "600003"}
		s.FetchBarsBatch(ctx, symbols, core.PeriodDaily, time.Time{}, time.Time{})

		mu.Lock()
		defer mu.Unlock()
		assert.Less(t, calls, len(symbols))
	})
}

func TestFetchTicksBatch(t *testing.T) {
	day := time.Date(2025, 10, 10, 0, 0, 0, 0, time.Local)

	src := &fakeTickSource{name: "tencent", fn: func(ctx context.Context, symbol string, tradeDate time.Time) (*core.RawTable, error) {
		table := core.NewRawTable("成交时间", "成交价格", "价格变动", "成交量", "成交额", "性质")
		table.Append("09:30:01", "10.50", "0.02", "300", "3150", "买盘")
		return table, nil
	}}

	s := NewService(testFetcherConfig(), WithTickSources(src))

	result := s.FetchTicksBatch(context.Background(), []string{"600000", "000001"}, day)

	assert.Empty(t, result.Errors)
	assert.Len(t, result.Ticks, 2)
	assert.Len(t, result.Ticks["600000"], 1)
}
