package decorators

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockfetch/pkg/core"
)

// stubBarSource 可控失败的K线数据源
type stubBarSource struct {
	name  string
	calls int
	err   error
}

func (s *stubBarSource) Name() string { return s.name }

func (s *stubBarSource) FetchBars(ctx context.Context, symbol string, period core.Period, start, end time.Time) (*core.RawTable, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	table := core.NewRawTable("日期", "收盘")
	table.Append("2025-10-10", "10.50")
	return table, nil
}

func testConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Name:        "Test",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: 3,
		Enabled:     true,
	}
}

func TestCircuitBreakerBarSource(t *testing.T) {
	ctx := context.Background()

	t.Run("透传成功结果", func(t *testing.T) {
		inner := &stubBarSource{name: "eastmoney"}
		wrapped := NewBarSource(inner, testConfig())

		assert.Equal(t, "eastmoney", wrapped.Name())

		table, err := wrapped.FetchBars(ctx, "600000", core.PeriodDaily, time.Time{}, time.Time{})
		require.NoError(t, err)
		assert.Equal(t, 1, table.Len())
		assert.True(t, wrapped.IsHealthy())

		stats := wrapped.Stats()
		assert.Equal(t, int64(1), stats.TotalRequests)
		assert.Equal(t, int64(1), stats.SuccessfulRequests)
	})

	t.Run("连续失败达到阈值后熔断", func(t *testing.T) {
		inner := &stubBarSource{name: "eastmoney", err: errors.New("http 502")}
		wrapped := NewBarSource(inner, testConfig())

		for i := 0; i < 3; i++ {
			_, err := wrapped.FetchBars(ctx, "600000", core.PeriodDaily, time.Time{}, time.Time{})
			assert.Error(t, err)
		}

		assert.False(t, wrapped.IsHealthy())
		assert.Equal(t, 3, inner.calls)

		// 熔断打开后直接拒绝，不再调用内部数据源
		_, err := wrapped.FetchBars(ctx, "600000", core.PeriodDaily, time.Time{}, time.Time{})
		assert.Error(t, err)
		assert.Equal(t, 3, inner.calls)

		stats := wrapped.Stats()
		assert.Equal(t, int64(4), stats.TotalRequests)
		assert.Equal(t, int64(4), stats.FailedRequests)
		assert.False(t, stats.LastFailure.IsZero())
	})

	t.Run("禁用时直接透传", func(t *testing.T) {
		cfg := testConfig()
		cfg.Enabled = false

		inner := &stubBarSource{name: "eastmoney", err: errors.New("http 502")}
		wrapped := NewBarSource(inner, cfg)

		for i := 0; i < 10; i++ {
			_, err := wrapped.FetchBars(ctx, "600000", core.PeriodDaily, time.Time{}, time.Time{})
			assert.Error(t, err)
		}

		assert.Equal(t, 10, inner.calls)
		assert.True(t, wrapped.IsHealthy())
	})

	t.Run("空配置使用默认值", func(t *testing.T) {
		inner := &stubBarSource{name: "eastmoney"}
		wrapped := NewBarSource(inner, nil)

		_, err := wrapped.FetchBars(ctx, "600000", core.PeriodDaily, time.Time{}, time.Time{})
		assert.NoError(t, err)
	})
}
