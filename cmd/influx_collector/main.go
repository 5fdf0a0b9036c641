package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/sirupsen/logrus"

	"stockfetch/pkg/config"
	"stockfetch/pkg/core"
	"stockfetch/pkg/logger"
	"stockfetch/pkg/message"
)

var (
	configPath   = flag.String("config", "", "配置文件路径")
	consumerName = flag.String("consumer", "influx_collector_1", "消费者名称")
	groupName    = flag.String("group", "influx_collectors", "消费者组名称")
)

// Collector 把行情推送流落到 InfluxDB
type Collector struct {
	redisClient   *redis.Client
	influxClient  influxdb2.Client
	writeAPI      api.WriteAPI
	consumerGroup string
	consumerName  string
	streams       []string
	log           *logrus.Entry
	ctx           context.Context
	cancel        context.CancelFunc
}

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	logger.Init(logger.Config{
		Level:  cfg.Logger.Level,
		Format: cfg.Logger.Format,
	})
	log := logger.WithComponent("influx_collector")

	collector, err := NewCollector(cfg)
	if err != nil {
		log.WithError(err).Error("创建采集器失败")
		os.Exit(1)
	}
	defer collector.Close()

	if err := collector.Start(); err != nil {
		log.WithError(err).Error("启动采集器失败")
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("正在关闭采集器...")
	collector.Stop()
}

// NewCollector 创建采集器
func NewCollector(cfg *config.Config) (*Collector, error) {
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to Redis failed: %w", err)
	}

	influxClient := influxdb2.NewClient(cfg.InfluxDB.URL, cfg.InfluxDB.Token)

	health, err := influxClient.Health(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect to InfluxDB failed: %w", err)
	}
	if health.Status != "pass" {
		return nil, fmt.Errorf("InfluxDB health check failed: %s", health.Status)
	}

	writeAPI := influxClient.WriteAPI(cfg.InfluxDB.Org, cfg.InfluxDB.Bucket)

	runCtx, runCancel := context.WithCancel(context.Background())

	return &Collector{
		redisClient:   redisClient,
		influxClient:  influxClient,
		writeAPI:      writeAPI,
		consumerGroup: *groupName,
		consumerName:  *consumerName,
		streams:       []string{message.GetStreamName("quote")},
		log:           logger.WithComponent("Collector"),
		ctx:           runCtx,
		cancel:        runCancel,
	}, nil
}

// Start 创建消费者组并开始消费
func (c *Collector) Start() error {
	for _, stream := range c.streams {
		err := c.redisClient.XGroupCreateMkStream(c.ctx, stream, c.consumerGroup, "0").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			return fmt.Errorf("create consumer group for stream %s failed: %w", stream, err)
		}
	}

	go c.consumeMessages()
	go c.handleWriteErrors()

	c.log.WithFields(logrus.Fields{
		"consumer_group": c.consumerGroup,
		"consumer_name":  c.consumerName,
		"streams":        c.streams,
	}).Info("采集器已启动")

	return nil
}

// Stop 停止消费并刷新未提交的写入
func (c *Collector) Stop() {
	c.cancel()
	c.writeAPI.Flush()
	c.log.Info("采集器已停止")
}

// Close 释放连接
func (c *Collector) Close() {
	if c.redisClient != nil {
		c.redisClient.Close()
	}
	if c.influxClient != nil {
		c.influxClient.Close()
	}
}

// consumeMessages 消费循环
func (c *Collector) consumeMessages() {
	for {
		select {
		case <-c.ctx.Done():
			return
		default:
			streams := make([]string, 0, len(c.streams)*2)
			for _, stream := range c.streams {
				streams = append(streams, stream, ">")
			}

			result, err := c.redisClient.XReadGroup(c.ctx, &redis.XReadGroupArgs{
				Group:    c.consumerGroup,
				Consumer: c.consumerName,
				Streams:  streams,
				Count:    10,
				Block:    time.Second,
			}).Result()

			if err != nil {
				if err == redis.Nil {
					continue
				}
				c.log.WithError(err).Error("读取 Redis Stream 失败")
				time.Sleep(time.Second)
				continue
			}

			for _, stream := range result {
				for _, msg := range stream.Messages {
					if err := c.processMessage(msg); err != nil {
						c.log.WithError(err).WithFields(logrus.Fields{
							"stream":     stream.Stream,
							"message_id": msg.ID,
						}).Error("处理消息失败")
						continue
					}

					if err := c.redisClient.XAck(c.ctx, stream.Stream, c.consumerGroup, msg.ID).Err(); err != nil {
						c.log.WithError(err).WithField("message_id", msg.ID).Error("确认消息失败")
					}
				}
			}
		}
	}
}

// processMessage 解析消息、验证校验和并写入 InfluxDB
func (c *Collector) processMessage(msg redis.XMessage) error {
	data, ok := msg.Values["data"].(string)
	if !ok {
		return fmt.Errorf("message data is not a string")
	}

	msgFormat, err := message.FromJSON(data)
	if err != nil {
		return fmt.Errorf("unmarshal message failed: %w", err)
	}

	if err := msgFormat.Validate(); err != nil {
		return fmt.Errorf("message checksum verification failed: %w", err)
	}

	switch msgFormat.Metadata.DataType {
	case "quote":
		return c.processQuotes(msgFormat)
	default:
		c.log.WithField("data_type", msgFormat.Metadata.DataType).Warn("未知数据类型，跳过")
		return nil
	}
}

// processQuotes 把行情快照写为 InfluxDB 数据点
func (c *Collector) processQuotes(msgFormat *message.MessageFormat) error {
	payloadBytes, err := json.Marshal(msgFormat.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload failed: %w", err)
	}

	var quotes []core.QuoteData
	if err := json.Unmarshal(payloadBytes, &quotes); err != nil {
		return fmt.Errorf("unmarshal quotes failed: %w", err)
	}

	for _, quote := range quotes {
		point := influxdb2.NewPointWithMeasurement("quote_realtime").
			AddTag("symbol", quote.Symbol).
			AddTag("name", quote.Name).
			AddTag("source", msgFormat.Metadata.Source).
			AddTag("market", msgFormat.Metadata.Market).
			AddField("price", quote.Price).
			AddField("change", quote.Change).
			AddField("change_percent", quote.ChangePercent).
			AddField("open", quote.Open).
			AddField("high", quote.High).
			AddField("low", quote.Low).
			AddField("prev_close", quote.PrevClose).
			AddField("volume", quote.Volume).
			AddField("turnover", quote.Turnover).
			SetTime(quote.Timestamp)

		c.writeAPI.WritePoint(point)
	}

	c.log.WithFields(logrus.Fields{
		"count":  len(quotes),
		"source": msgFormat.Metadata.Source,
	}).Debug("行情数据点已写入")

	return nil
}

// handleWriteErrors 异步处理 InfluxDB 写入错误
func (c *Collector) handleWriteErrors() {
	errorsCh := c.writeAPI.Errors()
	for {
		select {
		case <-c.ctx.Done():
			return
		case err := <-errorsCh:
			c.log.WithError(err).Error("InfluxDB 写入错误")
		}
	}
}
