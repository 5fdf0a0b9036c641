// Package scheduler 定时抓取任务调度。
// 任务配置从 YAML 加载，按 cron 表达式触发，实际抓取逻辑由执行器承担。
package scheduler

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"stockfetch/pkg/core"
	"stockfetch/pkg/logger"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// JobScheduler 定时任务调度器
type JobScheduler struct {
	cron     *cron.Cron
	jobs     map[string]*Job
	executor JobExecutor
	mu       sync.RWMutex
	log      *logrus.Entry
	ctx      context.Context
	cancel   context.CancelFunc

	// jobTimeout 单次任务执行的上限
	jobTimeout time.Duration
}

// NewJobScheduler 创建任务调度器
func NewJobScheduler() *JobScheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &JobScheduler{
		cron:       cron.New(cron.WithSeconds()),
		jobs:       make(map[string]*Job),
		log:        logger.WithComponent("Scheduler"),
		ctx:        ctx,
		cancel:     cancel,
		jobTimeout: 5 * time.Minute,
	}
}

// LoadConfig 从配置文件加载任务配置
func (s *JobScheduler) LoadConfig(configPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return fmt.Errorf("jobs config file not found: %s", configPath)
	}

	v := viper.New()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read jobs config failed: %w", err)
	}

	var config JobsConfig
	if err := v.Unmarshal(&config); err != nil {
		return fmt.Errorf("unmarshal jobs config failed: %w", err)
	}

	for _, jobConfig := range config.Jobs {
		if err := s.validateJobConfig(jobConfig); err != nil {
			s.log.WithError(err).Warnf("skipping invalid job config: %s", jobConfig.Name)
			continue
		}

		if err := s.addJobInternal(jobConfig); err != nil {
			s.log.WithError(err).Errorf("add job failed: %s", jobConfig.Name)
			continue
		}
	}

	s.log.Infof("loaded %d jobs", len(s.jobs))
	return nil
}

// Start 启动调度器
func (s *JobScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.executor == nil {
		return fmt.Errorf("job executor not set")
	}

	s.cron.Start()
	s.log.Info("job scheduler started")

	s.updateNextRunTimes()
	return nil
}

// Stop 停止调度器，等待运行中的任务结束
func (s *JobScheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancel()
	ctx := s.cron.Stop()

	select {
	case <-ctx.Done():
		s.log.Info("job scheduler stopped")
	case <-time.After(30 * time.Second):
		s.log.Warn("job scheduler stop timed out")
	}

	return nil
}

// AddJob 添加任务
func (s *JobScheduler) AddJob(config JobConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.validateJobConfig(config); err != nil {
		return err
	}

	return s.addJobInternal(config)
}

// RemoveJob 移除任务
func (s *JobScheduler) RemoveJob(jobName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[jobName]
	if !exists {
		return fmt.Errorf("job not found: %s", jobName)
	}

	s.cron.Remove(job.EntryID)
	delete(s.jobs, jobName)

	s.log.Infof("job removed: %s", jobName)
	return nil
}

// GetJob 获取任务状态副本
func (s *JobScheduler) GetJob(jobName string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[jobName]
	if !exists {
		return nil, fmt.Errorf("job not found: %s", jobName)
	}

	jobCopy := *job
	return &jobCopy, nil
}

// GetAllJobs 获取所有任务的状态副本
func (s *JobScheduler) GetAllJobs() []*Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobCopy := *job
		jobs = append(jobs, &jobCopy)
	}

	return jobs
}

// RunJob 手动触发一次任务
func (s *JobScheduler) RunJob(jobName string) error {
	s.mu.RLock()
	job, exists := s.jobs[jobName]
	s.mu.RUnlock()

	if !exists {
		return fmt.Errorf("job not found: %s", jobName)
	}

	if !job.Config.Enabled {
		return fmt.Errorf("job disabled: %s", jobName)
	}

	go s.executeJob(job)
	return nil
}

// SetExecutor 设置任务执行器
func (s *JobScheduler) SetExecutor(executor JobExecutor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executor = executor
}

// validateJobConfig 验证任务配置
func (s *JobScheduler) validateJobConfig(config JobConfig) error {
	if config.Name == "" {
		return fmt.Errorf("job name cannot be empty")
	}

	if config.Schedule == "" {
		return fmt.Errorf("job schedule cannot be empty")
	}

	// 支持秒级调度的 cron 表达式
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(config.Schedule); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", config.Schedule, err)
	}

	switch config.Task.Kind {
	case TaskKindBars:
		if !core.Period(config.Task.Period).IsValid() {
			return fmt.Errorf("invalid period %q for job %s", config.Task.Period, config.Name)
		}
	case TaskKindTicks, TaskKindInfo, TaskKindQuotes:
	default:
		return fmt.Errorf("unknown task kind: %s", config.Task.Kind)
	}

	if len(config.Task.Symbols) == 0 {
		return fmt.Errorf("job %s has no symbols", config.Name)
	}

	return nil
}

// addJobInternal 内部添加任务方法（需要持有锁）
func (s *JobScheduler) addJobInternal(config JobConfig) error {
	if _, exists := s.jobs[config.Name]; exists {
		return fmt.Errorf("job already exists: %s", config.Name)
	}

	job := &Job{
		ID:     uuid.New().String(),
		Config: config,
		Status: JobStatusPending,
	}

	if !config.Enabled {
		job.Status = JobStatusDisabled
		s.jobs[config.Name] = job
		s.log.Infof("job added (disabled): %s", config.Name)
		return nil
	}

	entryID, err := s.cron.AddFunc(config.Schedule, func() {
		s.executeJob(job)
	})
	if err != nil {
		return fmt.Errorf("register job failed: %w", err)
	}

	job.EntryID = entryID
	s.jobs[config.Name] = job

	s.log.Infof("job added: %s (schedule: %s, kind: %s)", config.Name, config.Schedule, config.Task.Kind)
	return nil
}

// executeJob 执行任务，同一任务不允许并发运行
func (s *JobScheduler) executeJob(job *Job) {
	s.mu.Lock()
	if job.Status == JobStatusRunning {
		s.mu.Unlock()
		s.log.Warnf("job still running, skipping: %s", job.Config.Name)
		return
	}
	job.Status = JobStatusRunning
	now := time.Now()
	job.LastRun = &now
	job.RunCount++
	s.mu.Unlock()

	s.log.Infof("executing job: %s", job.Config.Name)

	ctx, cancel := context.WithTimeout(s.ctx, s.jobTimeout)
	defer cancel()

	err := s.executor.Execute(ctx, job)

	s.mu.Lock()
	if err != nil {
		job.Status = JobStatusError
		job.LastError = err
		job.ErrorCount++
		s.log.WithError(err).Errorf("job failed: %s", job.Config.Name)
	} else {
		job.Status = JobStatusPending
		job.LastError = nil
		s.log.Infof("job completed: %s", job.Config.Name)
	}
	s.mu.Unlock()
}

// updateNextRunTimes 更新所有任务的下次运行时间
func (s *JobScheduler) updateNextRunTimes() {
	entries := s.cron.Entries()
	for _, job := range s.jobs {
		if job.Config.Enabled {
			for _, entry := range entries {
				if entry.ID == job.EntryID {
					nextRun := entry.Next
					job.NextRun = &nextRun
					break
				}
			}
		}
	}
}
