package fetcher

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockfetch/pkg/core"
	"stockfetch/pkg/executor"
)

// newTestFailover 创建重试间隔可观测的编排器，sleeps 记录每次等待时长
func newTestFailover(timeout time.Duration, maxRetries int, sleeps *[]time.Duration) *Failover {
	f := NewFailover(executor.NewBounded(timeout), maxRetries, time.Second, 2*time.Second)
	f.sleep = func(ctx context.Context, d time.Duration) error {
		*sleeps = append(*sleeps, d)
		return nil
	}
	return f
}

func barTable(rows int) *core.RawTable {
	table := core.NewRawTable("trade_date", "open_price", "close_price")
	for i := 0; i < rows; i++ {
		table.Append(fmt.Sprintf("2025-01-%02d", i+1), "10.0", "10.5")
	}
	return table
}

// blockingCall 一直等到上下文结束，用于触发执行器超时
func blockingCall(name string) Call {
	return Call{
		Source: name,
		Do: func(ctx context.Context) (*core.RawTable, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
}

func TestFailoverFetch(t *testing.T) {
	t.Run("首个数据源成功直接返回", func(t *testing.T) {
		var sleeps []time.Duration
		f := newTestFailover(time.Second, 3, &sleeps)

		calls := []Call{
			{Source: "eastmoney", Do: func(ctx context.Context) (*core.RawTable, error) {
				return barTable(5), nil
			}},
			{Source: "tencent", Do: func(ctx context.Context) (*core.RawTable, error) {
				t.Fatal("second source should not be called")
				return nil, nil
			}},
		}

		table, attempts, err := f.Fetch(context.Background(), "fetch_bars", calls)

		require.NoError(t, err)
		assert.Equal(t, 5, table.Len())
		require.Len(t, attempts, 1)
		assert.Equal(t, "eastmoney", attempts[0].Source)
		assert.Equal(t, OutcomeSuccess, attempts[0].Outcome)
		assert.Empty(t, sleeps)
	})

	t.Run("出错后退避重试再切换下一数据源", func(t *testing.T) {
		var sleeps []time.Duration
		f := newTestFailover(time.Second, 2, &sleeps)

		var firstCalls int
		calls := []Call{
			{Source: "eastmoney", Do: func(ctx context.Context) (*core.RawTable, error) {
				firstCalls++
				return nil, errors.New("http 502")
			}},
			{Source: "tencent", Do: func(ctx context.Context) (*core.RawTable, error) {
				return barTable(3), nil
			}},
		}

		table, attempts, err := f.Fetch(context.Background(), "fetch_bars", calls)

		require.NoError(t, err)
		assert.Equal(t, 3, table.Len())
		assert.Equal(t, 2, firstCalls)

		require.Len(t, attempts, 3)
		assert.Equal(t, OutcomeError, attempts[0].Outcome)
		assert.Equal(t, OutcomeError, attempts[1].Outcome)
		assert.Equal(t, OutcomeSuccess, attempts[2].Outcome)

		// 仅首次出错后退避，末次尝试失败直接切换数据源
		assert.Equal(t, []time.Duration{2 * time.Second}, sleeps)
	})

	t.Run("空结果不等待直接进入下一次尝试", func(t *testing.T) {
		var sleeps []time.Duration
		f := newTestFailover(time.Second, 2, &sleeps)

		calls := []Call{
			{Source: "eastmoney", Do: func(ctx context.Context) (*core.RawTable, error) {
				return core.NewRawTable("trade_date"), nil
			}},
			{Source: "tencent", Do: func(ctx context.Context) (*core.RawTable, error) {
				return barTable(1), nil
			}},
		}

		table, attempts, err := f.Fetch(context.Background(), "fetch_bars", calls)

		require.NoError(t, err)
		assert.Equal(t, 1, table.Len())
		require.Len(t, attempts, 3)
		assert.Equal(t, OutcomeEmpty, attempts[0].Outcome)
		assert.Equal(t, OutcomeEmpty, attempts[1].Outcome)
		assert.Empty(t, sleeps)
	})

	t.Run("超时后等待重试间隔", func(t *testing.T) {
		var sleeps []time.Duration
		f := newTestFailover(20*time.Millisecond, 2, &sleeps)

		calls := []Call{
			blockingCall("eastmoney"),
			{Source: "tencent", Do: func(ctx context.Context) (*core.RawTable, error) {
				return barTable(20), nil
			}},
		}

		table, attempts, err := f.Fetch(context.Background(), "fetch_bars", calls)

		require.NoError(t, err)
		assert.Equal(t, 20, table.Len())

		require.Len(t, attempts, 3)
		assert.Equal(t, OutcomeTimeout, attempts[0].Outcome)
		assert.Equal(t, OutcomeTimeout, attempts[1].Outcome)
		assert.Equal(t, OutcomeSuccess, attempts[2].Outcome)

		// 超时后每次尝试都等待重试间隔，包括末次
		assert.Equal(t, []time.Duration{time.Second, time.Second}, sleeps)
	})

	t.Run("全部耗尽返回AllSourcesExhausted", func(t *testing.T) {
		var sleeps []time.Duration
		f := newTestFailover(time.Second, 3, &sleeps)

		lastErr := errors.New("http 503")
		calls := []Call{
			{Source: "eastmoney", Do: func(ctx context.Context) (*core.RawTable, error) {
				return core.NewRawTable("trade_date"), nil
			}},
			{Source: "tencent", Do: func(ctx context.Context) (*core.RawTable, error) {
				return nil, lastErr
			}},
		}

		table, attempts, err := f.Fetch(context.Background(), "fetch_bars", calls)

		assert.Nil(t, table)
		// 每个数据源都经历完整的重试次数
		assert.Len(t, attempts, 6)

		require.Error(t, err)
		assert.True(t, IsExhausted(err))

		var exhausted *AllSourcesExhausted
		require.ErrorAs(t, err, &exhausted)
		assert.Equal(t, "fetch_bars", exhausted.Operation)
		assert.Equal(t, lastErr, exhausted.LastErr)
	})

	t.Run("全部为空时耗尽错误不含底层错误", func(t *testing.T) {
		var sleeps []time.Duration
		f := newTestFailover(time.Second, 2, &sleeps)

		calls := []Call{
			{Source: "eastmoney", Do: func(ctx context.Context) (*core.RawTable, error) {
				return core.NewRawTable("trade_date"), nil
			}},
		}

		_, attempts, err := f.Fetch(context.Background(), "fetch_ticks", calls)

		assert.Len(t, attempts, 2)
		var exhausted *AllSourcesExhausted
		require.ErrorAs(t, err, &exhausted)
		assert.Nil(t, exhausted.LastErr)
		assert.Contains(t, exhausted.Error(), "no data returned")
	})

	t.Run("上下文取消立即终止切换", func(t *testing.T) {
		var sleeps []time.Duration
		f := newTestFailover(time.Second, 3, &sleeps)

		ctx, cancel := context.WithCancel(context.Background())
		calls := []Call{
			{Source: "eastmoney", Do: func(ctx context.Context) (*core.RawTable, error) {
				cancel()
				<-ctx.Done()
				return nil, ctx.Err()
			}},
			{Source: "tencent", Do: func(ctx context.Context) (*core.RawTable, error) {
				t.Fatal("should not try next source after cancellation")
				return nil, nil
			}},
		}

		_, _, err := f.Fetch(ctx, "fetch_bars", calls)
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, IsExhausted(err))
	})

	t.Run("包装上下文哨兵错误的数据源错误照常切换", func(t *testing.T) {
		var sleeps []time.Duration
		f := newTestFailover(time.Second, 1, &sleeps)

		// HTTP 客户端超时等底层错误会包装 context 哨兵错误，
		// 只要调用方上下文仍然有效就按普通错误处理，继续切换
		calls := []Call{
			{Source: "eastmoney", Do: func(ctx context.Context) (*core.RawTable, error) {
				return nil, fmt.Errorf("HTTP request failed: %w", context.DeadlineExceeded)
			}},
			{Source: "tencent", Do: func(ctx context.Context) (*core.RawTable, error) {
				return nil, fmt.Errorf("HTTP request failed: %w", context.Canceled)
			}},
			{Source: "sina", Do: func(ctx context.Context) (*core.RawTable, error) {
				return barTable(1), nil
			}},
		}

		table, attempts, err := f.Fetch(context.Background(), "fetch_bars", calls)

		require.NoError(t, err)
		assert.Equal(t, 1, table.Len())
		require.Len(t, attempts, 3)
		assert.Equal(t, OutcomeError, attempts[0].Outcome)
		assert.Equal(t, OutcomeError, attempts[1].Outcome)
		assert.Equal(t, OutcomeSuccess, attempts[2].Outcome)
		assert.Empty(t, sleeps)
	})

	t.Run("单次尝试耗时不超过时限加重试间隔", func(t *testing.T) {
		timeout := 30 * time.Millisecond
		retryDelay := 20 * time.Millisecond

		f := NewFailover(executor.NewBounded(timeout), 1, retryDelay, 2*time.Second)

		start := time.Now()
		_, _, err := f.Fetch(context.Background(), "fetch_bars", []Call{blockingCall("eastmoney")})
		elapsed := time.Since(start)

		assert.True(t, IsExhausted(err))
		assert.Less(t, elapsed, timeout+retryDelay+100*time.Millisecond)
	})
}

func TestIsExhausted(t *testing.T) {
	assert.False(t, IsExhausted(nil))
	assert.False(t, IsExhausted(errors.New("plain")))
	assert.True(t, IsExhausted(&AllSourcesExhausted{Operation: "fetch_bars"}))
	assert.True(t, IsExhausted(fmt.Errorf("wrapped: %w", &AllSourcesExhausted{Operation: "fetch_bars"})))
}
