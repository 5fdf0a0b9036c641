// Package fetcher 多数据源获取层。
//
// 故障切换编排器按配置的优先级顺序依次尝试各数据源，每个数据源允许
// 有限次重试；规范化器把各数据源的原始表统一成规范结构；门面函数
// 组合两者并提供参数默认值。
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stockfetch/pkg/core"
	"stockfetch/pkg/executor"
	"stockfetch/pkg/logger"

	"github.com/sirupsen/logrus"
)

// Outcome 单次数据源尝试的结果分类
type Outcome string

const (
	OutcomeSuccess Outcome = "success" // 返回非空结果
	OutcomeEmpty   Outcome = "empty"   // 成功但无数据
	OutcomeTimeout Outcome = "timeout" // 超出执行器时限
	OutcomeError   Outcome = "error"   // 调用出错
)

// SourceAttempt 一次（数据源，尝试序号）组合的结果记录
// 仅用于日志和诊断，不落库
type SourceAttempt struct {
	Source  string        `json:"source"`
	Attempt int           `json:"attempt"`
	Outcome Outcome       `json:"outcome"`
	Err     error         `json:"-"`
	Elapsed time.Duration `json:"elapsed"`
}

// AllSourcesExhausted 所有数据源的所有尝试均失败或为空
type AllSourcesExhausted struct {
	Operation string // 操作名，例如 "fetch_bars"
	LastErr   error  // 最后一个底层错误，可能为 nil（全部为空结果时）
}

func (e *AllSourcesExhausted) Error() string {
	if e.LastErr != nil {
		return fmt.Sprintf("%s: all sources exhausted, last error: %v", e.Operation, e.LastErr)
	}
	return fmt.Sprintf("%s: all sources exhausted, no data returned", e.Operation)
}

func (e *AllSourcesExhausted) Unwrap() error {
	return e.LastErr
}

// IsExhausted 判断错误是否为数据源耗尽
func IsExhausted(err error) bool {
	var exhausted *AllSourcesExhausted
	return errors.As(err, &exhausted)
}

// Call 一个已绑定请求参数的数据源调用
type Call struct {
	Source string             // 数据源名称
	Do     executor.Operation // 绑定参数后的抓取操作
}

// Failover 故障切换编排器
type Failover struct {
	exec         *executor.Bounded
	maxRetries   int
	retryDelay   time.Duration // 超时后的重试间隔
	backoffDelay time.Duration // 出错后的退避间隔
	sleep        func(ctx context.Context, d time.Duration) error
	log          *logrus.Entry
}

// NewFailover 创建故障切换编排器
func NewFailover(exec *executor.Bounded, maxRetries int, retryDelay, backoffDelay time.Duration) *Failover {
	if maxRetries <= 0 {
		maxRetries = 1
	}
	return &Failover{
		exec:         exec,
		maxRetries:   maxRetries,
		retryDelay:   retryDelay,
		backoffDelay: backoffDelay,
		sleep:        sleepCtx,
		log:          logger.WithComponent("Failover"),
	}
}

// Fetch 按优先级顺序执行数据源调用，返回第一个非空结果。
// 同一数据源内：超时后等待重试间隔再试，出错后等待退避间隔再试，
// 空结果立即进入下一次尝试。所有组合耗尽后返回 *AllSourcesExhausted，
// 附带最后一个底层错误。attempts 记录每次尝试的结果，无论成败都返回。
func (f *Failover) Fetch(ctx context.Context, operation string, calls []Call) (*core.RawTable, []SourceAttempt, error) {
	attempts := make([]SourceAttempt, 0, len(calls)*f.maxRetries)
	var lastErr error

	for _, call := range calls {
		for attempt := 1; attempt <= f.maxRetries; attempt++ {
			start := time.Now()
			table, err := f.exec.Run(ctx, call.Do)
			elapsed := time.Since(start)

			switch {
			case err == nil && table != nil && !table.IsEmpty():
				attempts = append(attempts, SourceAttempt{
					Source: call.Source, Attempt: attempt, Outcome: OutcomeSuccess, Elapsed: elapsed,
				})
				f.log.WithFields(logrus.Fields{
					"operation": operation,
					"source":    call.Source,
					"attempt":   attempt,
					"rows":      table.Len(),
					"elapsed":   elapsed,
				}).Debug("source returned data")
				return table, attempts, nil

			case err == nil:
				// 成功但无数据，不等待直接进入下一次尝试
				attempts = append(attempts, SourceAttempt{
					Source: call.Source, Attempt: attempt, Outcome: OutcomeEmpty, Elapsed: elapsed,
				})
				f.log.WithFields(logrus.Fields{
					"operation": operation,
					"source":    call.Source,
					"attempt":   attempt,
				}).Debug("source returned empty result")

			case ctx.Err() != nil:
				// 调用方取消，不再继续切换。只看调用方上下文本身，
				// 数据源包装出来的 context 哨兵错误属于普通错误，照常切换
				return nil, attempts, ctx.Err()

			case executor.IsTimeout(err):
				lastErr = err
				attempts = append(attempts, SourceAttempt{
					Source: call.Source, Attempt: attempt, Outcome: OutcomeTimeout, Err: err, Elapsed: elapsed,
				})
				f.log.WithFields(logrus.Fields{
					"operation": operation,
					"source":    call.Source,
					"attempt":   attempt,
				}).Warn("source attempt timed out")
				if sleepErr := f.sleep(ctx, f.retryDelay); sleepErr != nil {
					return nil, attempts, sleepErr
				}

			default:
				lastErr = err
				attempts = append(attempts, SourceAttempt{
					Source: call.Source, Attempt: attempt, Outcome: OutcomeError, Err: err, Elapsed: elapsed,
				})
				f.log.WithFields(logrus.Fields{
					"operation": operation,
					"source":    call.Source,
					"attempt":   attempt,
					"error":     err.Error(),
				}).Warn("source attempt failed")
				if attempt < f.maxRetries {
					if sleepErr := f.sleep(ctx, f.backoffDelay); sleepErr != nil {
						return nil, attempts, sleepErr
					}
				}
			}
		}
	}

	f.log.WithFields(logrus.Fields{
		"operation": operation,
		"sources":   len(calls),
		"attempts":  len(attempts),
	}).Error("all sources exhausted")

	return nil, attempts, &AllSourcesExhausted{Operation: operation, LastErr: lastErr}
}

// sleepCtx 可被上下文打断的等待
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
