package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
)

// TaskKind 抓取任务类型
type TaskKind string

const (
	TaskKindBars   TaskKind = "bars"   // K线抓取
	TaskKindTicks  TaskKind = "ticks"  // 分笔抓取
	TaskKindInfo   TaskKind = "info"   // 基本信息抓取
	TaskKindQuotes TaskKind = "quotes" // 实时行情采集
)

// TaskConfig 定义抓取任务的内容
type TaskConfig struct {
	Kind    TaskKind `yaml:"kind" json:"kind"`                           // 任务类型
	Symbols []string `yaml:"symbols" json:"symbols"`                     // 股票代码列表
	Period  string   `yaml:"period,omitempty" json:"period,omitempty"`   // K线周期（仅 bars）
	Persist bool     `yaml:"persist" json:"persist"`                     // 是否落库
	Stream  string   `yaml:"stream,omitempty" json:"stream,omitempty"`   // 推送流名称（仅 quotes）
}

// JobConfig 定义单个任务的配置
type JobConfig struct {
	Name     string     `yaml:"name" json:"name"`
	Enabled  bool       `yaml:"enabled" json:"enabled"`
	Schedule string     `yaml:"schedule" json:"schedule"`
	Task     TaskConfig `yaml:"task" json:"task"`
}

// JobsConfig 定义整个任务配置文件结构
type JobsConfig struct {
	Jobs []JobConfig `yaml:"jobs" json:"jobs"`
}

// Job 表示一个运行中的任务
type Job struct {
	ID         string
	Config     JobConfig
	EntryID    cron.EntryID
	Status     JobStatus
	LastRun    *time.Time
	NextRun    *time.Time
	RunCount   int64
	ErrorCount int64
	LastError  error
}

// JobStatus 任务状态
type JobStatus string

const (
	JobStatusPending  JobStatus = "pending"
	JobStatusRunning  JobStatus = "running"
	JobStatusStopped  JobStatus = "stopped"
	JobStatusError    JobStatus = "error"
	JobStatusDisabled JobStatus = "disabled"
)

// JobExecutor 任务执行器接口
// 调度器只负责触发，抓取逻辑由执行器实现
type JobExecutor interface {
	Execute(ctx context.Context, job *Job) error
}
