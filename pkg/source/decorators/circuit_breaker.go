// Package decorators 数据源装饰器。
// 熔断器装饰器跟踪被包装数据源的滚动失败计数，连续失败达到阈值后
// 在一段时间内直接拒绝调用，让故障切换编排器立即转向下一数据源。
package decorators

import (
	"context"
	"fmt"
	"sync"
	"time"

	"stockfetch/pkg/core"
	"stockfetch/pkg/logger"
	"stockfetch/pkg/source"

	"github.com/sony/gobreaker"
)

// CircuitBreakerConfig 熔断器配置
type CircuitBreakerConfig struct {
	Name        string        `yaml:"name"`          // 熔断器名称
	MaxRequests uint32        `yaml:"max_requests"`  // 半开状态下的最大请求数
	Interval    time.Duration `yaml:"interval"`      // 统计窗口时间
	Timeout     time.Duration `yaml:"timeout"`       // 熔断器打开后的超时时间
	ReadyToTrip uint32        `yaml:"ready_to_trip"` // 触发熔断的连续失败次数阈值
	Enabled     bool          `yaml:"enabled"`       // 是否启用熔断器
}

// DefaultCircuitBreakerConfig 返回默认熔断器配置
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Name:        "DataSource",
		MaxRequests: 5,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: 5,
		Enabled:     true,
	}
}

// CircuitBreakerStats 熔断器统计信息
type CircuitBreakerStats struct {
	TotalRequests      int64     `json:"total_requests"`
	SuccessfulRequests int64     `json:"successful_requests"`
	FailedRequests     int64     `json:"failed_requests"`
	LastFailure        time.Time `json:"last_failure"`
}

// circuitBreaker 各数据源装饰器共用的熔断核心
type circuitBreaker struct {
	cb     *gobreaker.CircuitBreaker
	config *CircuitBreakerConfig

	mu    sync.RWMutex
	stats CircuitBreakerStats
}

func newCircuitBreaker(sourceName string, config *CircuitBreakerConfig) *circuitBreaker {
	if config == nil {
		config = DefaultCircuitBreakerConfig()
	}

	log := logger.WithComponent("CircuitBreaker")
	settings := gobreaker.Settings{
		Name:        fmt.Sprintf("%s(%s)", config.Name, sourceName),
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.ReadyToTrip
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warnf("circuit breaker %s state changed from %v to %v", name, from, to)
		},
	}

	return &circuitBreaker{
		cb:     gobreaker.NewCircuitBreaker(settings),
		config: config,
	}
}

// execute 通过熔断器执行一次抓取操作
func (c *circuitBreaker) execute(fn func() (*core.RawTable, error)) (*core.RawTable, error) {
	if !c.config.Enabled {
		return fn()
	}

	c.mu.Lock()
	c.stats.TotalRequests++
	c.mu.Unlock()

	result, err := c.cb.Execute(func() (interface{}, error) {
		return fn()
	})

	c.handleResult(err)

	if err != nil {
		return nil, err
	}

	table, ok := result.(*core.RawTable)
	if !ok {
		err := fmt.Errorf("circuit breaker returned unexpected result type")
		c.handleResult(err)
		return nil, err
	}

	return table, nil
}

// handleResult 更新统计信息
func (c *circuitBreaker) handleResult(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.stats.FailedRequests++
		c.stats.LastFailure = time.Now()
	} else {
		c.stats.SuccessfulRequests++
	}
}

// Stats 返回统计信息快照
func (c *circuitBreaker) Stats() CircuitBreakerStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// IsHealthy 熔断器打开状态视为不健康
func (c *circuitBreaker) IsHealthy() bool {
	if !c.config.Enabled {
		return true
	}
	return c.cb.State() != gobreaker.StateOpen
}

// CircuitBreakerBarSource 带熔断器的K线数据源
type CircuitBreakerBarSource struct {
	*circuitBreaker
	inner source.BarSource
}

// NewBarSource 包装K线数据源
func NewBarSource(inner source.BarSource, config *CircuitBreakerConfig) *CircuitBreakerBarSource {
	return &CircuitBreakerBarSource{
		circuitBreaker: newCircuitBreaker(inner.Name(), config),
		inner:          inner,
	}
}

// Name 返回被包装数据源的名称，保持故障切换日志中的来源可读
func (s *CircuitBreakerBarSource) Name() string {
	return s.inner.Name()
}

// FetchBars 带熔断保护的K线获取
func (s *CircuitBreakerBarSource) FetchBars(ctx context.Context, symbol string, period core.Period, start, end time.Time) (*core.RawTable, error) {
	return s.execute(func() (*core.RawTable, error) {
		return s.inner.FetchBars(ctx, symbol, period, start, end)
	})
}

// CircuitBreakerTickSource 带熔断器的分笔数据源
type CircuitBreakerTickSource struct {
	*circuitBreaker
	inner source.TickSource
}

// NewTickSource 包装分笔数据源
func NewTickSource(inner source.TickSource, config *CircuitBreakerConfig) *CircuitBreakerTickSource {
	return &CircuitBreakerTickSource{
		circuitBreaker: newCircuitBreaker(inner.Name(), config),
		inner:          inner,
	}
}

func (s *CircuitBreakerTickSource) Name() string {
	return s.inner.Name()
}

// FetchTicks 带熔断保护的分笔获取
func (s *CircuitBreakerTickSource) FetchTicks(ctx context.Context, symbol string, tradeDate time.Time) (*core.RawTable, error) {
	return s.execute(func() (*core.RawTable, error) {
		return s.inner.FetchTicks(ctx, symbol, tradeDate)
	})
}

// CircuitBreakerInfoSource 带熔断器的基本信息数据源
type CircuitBreakerInfoSource struct {
	*circuitBreaker
	inner source.InfoSource
}

// NewInfoSource 包装基本信息数据源
func NewInfoSource(inner source.InfoSource, config *CircuitBreakerConfig) *CircuitBreakerInfoSource {
	return &CircuitBreakerInfoSource{
		circuitBreaker: newCircuitBreaker(inner.Name(), config),
		inner:          inner,
	}
}

func (s *CircuitBreakerInfoSource) Name() string {
	return s.inner.Name()
}

// FetchInfo 带熔断保护的基本信息获取
func (s *CircuitBreakerInfoSource) FetchInfo(ctx context.Context, symbol string) (*core.RawTable, error) {
	return s.execute(func() (*core.RawTable, error) {
		return s.inner.FetchInfo(ctx, symbol)
	})
}
