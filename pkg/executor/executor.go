// Package executor 提供带硬超时的受限执行器。
//
// 每次调用在独立的 goroutine 中运行数据源操作，并在墙钟超时后放弃等待。
// 被放弃的 worker 不会被强制终止，其结果写入带缓冲的通道后自然退出；
// 因此交给执行器的操作必须是只读取不落库的纯抓取操作。
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stockfetch/pkg/core"
)

// TimeoutError 操作超出执行器时限
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("operation timed out after %v", e.Timeout)
}

// IsTimeout 判断错误是否为执行器超时
func IsTimeout(err error) bool {
	_, ok := err.(*TimeoutError)
	return ok
}

// Operation 一次数据源抓取操作
type Operation func(ctx context.Context) (*core.RawTable, error)

// Bounded 受限执行器
type Bounded struct {
	timeout time.Duration
}

// NewBounded 创建受限执行器
func NewBounded(timeout time.Duration) *Bounded {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Bounded{timeout: timeout}
}

// Timeout 返回执行器的单次调用时限
func (b *Bounded) Timeout() time.Duration {
	return b.timeout
}

// Run 执行操作并强制墙钟超时。
// 操作在时限内完成时原样返回其结果或错误；超时后返回 *TimeoutError，
// worker 被放弃继续在后台运行至自然结束，结果被丢弃。
func (b *Bounded) Run(ctx context.Context, op Operation) (*core.RawTable, error) {
	type outcome struct {
		table *core.RawTable
		err   error
	}

	// 缓冲通道保证被放弃的 worker 完成时不会永久阻塞
	done := make(chan outcome, 1)

	opCtx, cancel := context.WithTimeout(ctx, b.timeout)

	go func() {
		defer cancel()
		table, err := op(opCtx)
		done <- outcome{table: table, err: err}
	}()

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	select {
	case o := <-done:
		// worker 观察到执行器时限后自行中止时，统一归类为执行器超时，
		// 不把内部上下文的截止错误泄露给调用方
		if o.err != nil && errors.Is(o.err, context.DeadlineExceeded) &&
			opCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return nil, &TimeoutError{Timeout: b.timeout}
		}
		return o.table, o.err
	case <-timer.C:
		return nil, &TimeoutError{Timeout: b.timeout}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
