package fetcher

import (
	"context"
	"sync"
	"time"

	"stockfetch/pkg/core"

	"github.com/sirupsen/logrus"
)

// BatchBarsResult 批量K线抓取结果，按股票代码归档
type BatchBarsResult struct {
	Bars   map[string][]core.BarData `json:"bars"`
	Errors map[string]error          `json:"-"`
}

// BatchTicksResult 批量分笔抓取结果，按股票代码归档
type BatchTicksResult struct {
	Ticks  map[string][]core.TickData `json:"ticks"`
	Errors map[string]error           `json:"-"`
}

// FetchBarsBatch 并发抓取多只股票的K线数据。
// 固定大小的工作池，每个 worker 独立完成完整的门面调用链；
// 单只股票失败只记入结果，不影响其它股票
func (s *Service) FetchBarsBatch(ctx context.Context, symbols []string, period core.Period, start, end time.Time) *BatchBarsResult {
	result := &BatchBarsResult{
		Bars:   make(map[string][]core.BarData, len(symbols)),
		Errors: make(map[string]error),
	}

	var mu sync.Mutex
	s.runPool(ctx, symbols, func(ctx context.Context, symbol string) {
		bars, err := s.FetchBars(ctx, symbol, period, start, end)

		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			result.Errors[symbol] = err
			return
		}
		result.Bars[symbol] = bars
	})

	s.log.WithFields(logrus.Fields{
		"symbols": len(symbols),
		"period":  period,
		"failed":  len(result.Errors),
	}).Info("batch bar fetch completed")

	return result
}

// FetchTicksBatch 并发抓取多只股票的分笔数据
func (s *Service) FetchTicksBatch(ctx context.Context, symbols []string, tradeDate time.Time) *BatchTicksResult {
	result := &BatchTicksResult{
		Ticks:  make(map[string][]core.TickData, len(symbols)),
		Errors: make(map[string]error),
	}

	var mu sync.Mutex
	s.runPool(ctx, symbols, func(ctx context.Context, symbol string) {
		ticks, err := s.FetchTicks(ctx, symbol, tradeDate)

		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			result.Errors[symbol] = err
			return
		}
		result.Ticks[symbol] = ticks
	})

	s.log.WithFields(logrus.Fields{
		"symbols": len(symbols),
		"failed":  len(result.Errors),
	}).Info("batch tick fetch completed")

	return result
}

// runPool 以配置的并发数运行工作池，上下文取消时停止派发剩余任务
func (s *Service) runPool(ctx context.Context, symbols []string, work func(ctx context.Context, symbol string)) {
	concurrency := s.cfg.BatchConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	if concurrency > len(symbols) {
		concurrency = len(symbols)
	}

	jobs := make(chan string)
	var wg sync.WaitGroup

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for symbol := range jobs {
				work(ctx, symbol)
			}
		}()
	}

	for _, symbol := range symbols {
		select {
		case jobs <- symbol:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return
		}
	}
	close(jobs)
	wg.Wait()
}
