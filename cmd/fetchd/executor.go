package main

import (
	"context"
	"fmt"
	"time"

	"stockfetch/pkg/core"
	"stockfetch/pkg/fetcher"
	"stockfetch/pkg/logger"
	"stockfetch/pkg/message"
	"stockfetch/pkg/scheduler"

	"github.com/go-redis/redis/v8"
)

// FetchExecutor 任务执行器
// bars/ticks/info 任务走故障切换抓取并落库，
// quotes 任务抓取实时行情并发布到 Redis Stream
type FetchExecutor struct {
	service     *fetcher.Service
	redisClient *redis.Client
	nodeID      string
	log         *logger.Entry
}

// NewFetchExecutor 创建任务执行器
func NewFetchExecutor(service *fetcher.Service, redisClient *redis.Client, nodeID string) *FetchExecutor {
	return &FetchExecutor{
		service:     service,
		redisClient: redisClient,
		nodeID:      nodeID,
		log:         logger.WithComponent("FetchExecutor"),
	}
}

// Execute 实现 JobExecutor 接口
func (e *FetchExecutor) Execute(ctx context.Context, job *scheduler.Job) error {
	log := e.log.WithFields(map[string]interface{}{
		"job":    job.Config.Name,
		"jobID":  job.ID,
		"nodeID": e.nodeID,
	})

	task := job.Config.Task
	log.Infof("开始执行任务: kind=%s, symbols=%d", task.Kind, len(task.Symbols))
	start := time.Now()

	var err error
	switch task.Kind {
	case scheduler.TaskKindBars:
		err = e.executeBars(ctx, task)
	case scheduler.TaskKindTicks:
		err = e.executeTicks(ctx, task)
	case scheduler.TaskKindInfo:
		err = e.executeInfo(ctx, task)
	case scheduler.TaskKindQuotes:
		err = e.executeQuotes(ctx, task)
	default:
		err = fmt.Errorf("不支持的任务类型: %s", task.Kind)
	}

	if err != nil {
		return err
	}

	log.Infof("任务执行完成，耗时 %v", time.Since(start))
	return nil
}

// executeBars 批量抓取K线，落库由门面内的网关完成
func (e *FetchExecutor) executeBars(ctx context.Context, task scheduler.TaskConfig) error {
	result := e.service.FetchBarsBatch(ctx, task.Symbols, core.Period(task.Period), time.Time{}, time.Time{})

	for symbol, err := range result.Errors {
		e.log.Warnf("K线抓取失败: %s: %v", symbol, err)
	}

	if len(result.Errors) == len(task.Symbols) {
		return fmt.Errorf("所有股票的K线抓取均失败")
	}
	return nil
}

// executeTicks 批量抓取最近交易日的分笔数据
func (e *FetchExecutor) executeTicks(ctx context.Context, task scheduler.TaskConfig) error {
	result := e.service.FetchTicksBatch(ctx, task.Symbols, time.Time{})

	for symbol, err := range result.Errors {
		e.log.Warnf("分笔抓取失败: %s: %v", symbol, err)
	}

	if len(result.Errors) == len(task.Symbols) {
		return fmt.Errorf("所有股票的分笔抓取均失败")
	}
	return nil
}

// executeInfo 逐只更新股票基本信息
func (e *FetchExecutor) executeInfo(ctx context.Context, task scheduler.TaskConfig) error {
	var failed int
	for _, symbol := range task.Symbols {
		if _, err := e.service.FetchInfo(ctx, symbol); err != nil {
			failed++
			e.log.Warnf("基本信息抓取失败: %s: %v", symbol, err)
		}
	}

	if failed == len(task.Symbols) {
		return fmt.Errorf("所有股票的基本信息抓取均失败")
	}
	return nil
}

// executeQuotes 抓取实时行情并发布到 Redis Stream
func (e *FetchExecutor) executeQuotes(ctx context.Context, task scheduler.TaskConfig) error {
	quotes, err := e.service.FetchQuotes(ctx, task.Symbols)
	if err != nil {
		return fmt.Errorf("获取实时行情失败: %w", err)
	}

	if len(quotes) == 0 {
		e.log.Warn("没有获取到行情数据")
		return nil
	}

	msg := message.NewMessageFormat(e.nodeID, "tencent", "quote", quotes)
	msg.SetMarket("A-share")

	jsonData, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("序列化消息失败: %w", err)
	}

	streamName := task.Stream
	if streamName == "" {
		streamName = message.GetStreamName("quote")
	}

	result := e.redisClient.XAdd(ctx, &redis.XAddArgs{
		Stream: streamName,
		Values: map[string]interface{}{
			"data": jsonData,
		},
	})
	if err := result.Err(); err != nil {
		return fmt.Errorf("发布消息到 Redis Stream 失败: %w", err)
	}

	e.log.WithFields(map[string]interface{}{
		"stream":    streamName,
		"messageID": result.Val(),
		"quotes":    len(quotes),
	}).Info("行情消息发布成功")

	return nil
}
