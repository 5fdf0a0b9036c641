package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stockfetch/pkg/config"
	"stockfetch/pkg/fetcher"
	"stockfetch/pkg/logger"
	"stockfetch/pkg/scheduler"
	"stockfetch/pkg/storage"

	"github.com/go-redis/redis/v8"
)

var (
	configPath = flag.String("config", "", "配置文件路径")
	jobsPath   = flag.String("jobs", "config/jobs.yaml", "任务配置文件路径")
	nodeID     = flag.String("node-id", "", "节点ID（默认自动生成）")
)

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
	log := logger.WithComponent("fetchd")

	if *nodeID == "" {
		*nodeID = fmt.Sprintf("fetchd-%d", time.Now().Unix())
	}
	log.WithField("nodeID", *nodeID).Info("启动 fetchd")

	// 创建 Redis 客户端（实时行情推送）
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Errorf("无法连接到 Redis: %v", err)
		os.Exit(1)
	}
	log.Info("Redis 连接成功")

	// 创建存储后端和持久化网关
	backend, err := storage.NewSQLBackend(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		log.Errorf("创建存储后端失败: %v", err)
		os.Exit(1)
	}
	gateway := storage.NewGateway(backend)
	log.Infof("存储后端就绪: %s", cfg.Database.Driver)

	// 创建数据获取门面
	service := fetcher.NewService(cfg.Fetcher, fetcher.WithGateway(gateway))

	// 创建任务执行器和调度器
	executor := NewFetchExecutor(service, redisClient, *nodeID)

	jobScheduler := scheduler.NewJobScheduler()
	jobScheduler.SetExecutor(executor)

	if err := jobScheduler.LoadConfig(*jobsPath); err != nil {
		log.Errorf("加载任务配置失败: %v", err)
		os.Exit(1)
	}

	if err := jobScheduler.Start(); err != nil {
		log.Errorf("启动任务调度器失败: %v", err)
		os.Exit(1)
	}

	jobs := jobScheduler.GetAllJobs()
	log.Infof("已加载 %d 个任务", len(jobs))
	for _, job := range jobs {
		status := "启用"
		if !job.Config.Enabled {
			status = "禁用"
		}
		log.Debugf("任务详情: %s (%s): %s", job.Config.Name, status, job.Config.Schedule)
	}

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	log.Info("fetchd 运行中，按 Ctrl+C 停止...")
	<-sigChan

	log.Info("收到停止信号，正在优雅关闭...")

	if err := jobScheduler.Stop(); err != nil {
		log.Errorf("停止任务调度器失败: %v", err)
	}

	if err := backend.Close(); err != nil {
		log.Errorf("关闭存储后端失败: %v", err)
	}

	if err := redisClient.Close(); err != nil {
		log.Errorf("关闭 Redis 连接失败: %v", err)
	}

	log.Info("fetchd 已停止")
}
