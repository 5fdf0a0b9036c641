package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockJobExecutor 模拟任务执行器
type MockJobExecutor struct {
	mu           sync.Mutex
	executedJobs []string
	shouldError  bool
}

func (m *MockJobExecutor) Execute(ctx context.Context, job *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executedJobs = append(m.executedJobs, job.Config.Name)
	if m.shouldError {
		return errors.New("executor failed")
	}
	return nil
}

func (m *MockJobExecutor) executed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.executedJobs...)
}

func validJobConfig(name string) JobConfig {
	return JobConfig{
		Name:     name,
		Enabled:  true,
		Schedule: "*/5 * * * * *",
		Task: TaskConfig{
			Kind:    TaskKindBars,
			Period:  "daily",
			Symbols: []string{"600000"},
		},
	}
}

func TestNewJobScheduler(t *testing.T) {
	scheduler := NewJobScheduler()

	assert.NotNil(t, scheduler)
	assert.NotNil(t, scheduler.cron)
	assert.NotNil(t, scheduler.jobs)
	assert.NotNil(t, scheduler.ctx)
}

func TestJobScheduler_LoadConfig(t *testing.T) {
	tests := []struct {
		name       string
		configYAML string
		expectJobs int
	}{
		{
			name: "有效配置",
			configYAML: `
jobs:
  - name: "daily-bars"
    enabled: true
    schedule: "*/5 * * * * *"
    task:
      kind: bars
      period: daily
      symbols: ["600000"]
  - name: "daily-ticks"
    enabled: false
    schedule: "0 * * * * *"
    task:
      kind: ticks
      symbols: ["000001"]
`,
			expectJobs: 2,
		},
		{
			name: "无效的cron表达式被跳过",
			configYAML: `
jobs:
  - name: "invalid-job"
    enabled: true
    schedule: "invalid-cron"
    task:
      kind: bars
      period: daily
      symbols: ["600000"]
`,
			expectJobs: 0,
		},
		{
			name: "缺少任务名称被跳过",
			configYAML: `
jobs:
  - name: ""
    enabled: true
    schedule: "*/5 * * * * *"
    task:
      kind: bars
      period: daily
      symbols: ["600000"]
`,
			expectJobs: 0,
		},
		{
			name: "非法周期被跳过",
			configYAML: `
jobs:
  - name: "bad-period"
    enabled: true
    schedule: "*/5 * * * * *"
    task:
      kind: bars
      period: 2min
      symbols: ["600000"]
`,
			expectJobs: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(t.TempDir(), "jobs.yaml")
			require.NoError(t, os.WriteFile(configPath, []byte(tt.configYAML), 0644))

			scheduler := NewJobScheduler()
			err := scheduler.LoadConfig(configPath)

			assert.NoError(t, err)
			assert.Len(t, scheduler.jobs, tt.expectJobs)
		})
	}
}

func TestJobScheduler_LoadConfigMissingFile(t *testing.T) {
	scheduler := NewJobScheduler()
	err := scheduler.LoadConfig("/nonexistent/jobs.yaml")
	assert.Error(t, err)
}

func TestJobScheduler_AddJob(t *testing.T) {
	scheduler := NewJobScheduler()

	// 添加有效任务
	err := scheduler.AddJob(validJobConfig("test-job"))
	assert.NoError(t, err)

	job, err := scheduler.GetJob("test-job")
	assert.NoError(t, err)
	assert.Equal(t, "test-job", job.Config.Name)
	assert.Equal(t, JobStatusPending, job.Status)

	// 重复添加报错
	err = scheduler.AddJob(validJobConfig("test-job"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	// 无效 cron 表达式报错
	invalid := validJobConfig("invalid-job")
	invalid.Schedule = "invalid-cron"
	assert.Error(t, scheduler.AddJob(invalid))

	// 禁用任务直接记为禁用状态
	disabled := validJobConfig("disabled-job")
	disabled.Enabled = false
	require.NoError(t, scheduler.AddJob(disabled))

	job, err = scheduler.GetJob("disabled-job")
	require.NoError(t, err)
	assert.Equal(t, JobStatusDisabled, job.Status)
}

func TestJobScheduler_RemoveJob(t *testing.T) {
	scheduler := NewJobScheduler()

	require.NoError(t, scheduler.AddJob(validJobConfig("test-job")))

	assert.NoError(t, scheduler.RemoveJob("test-job"))

	_, err := scheduler.GetJob("test-job")
	assert.Error(t, err)

	err = scheduler.RemoveJob("non-existent")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestJobScheduler_GetAllJobs(t *testing.T) {
	scheduler := NewJobScheduler()

	assert.Len(t, scheduler.GetAllJobs(), 0)

	for i := 0; i < 3; i++ {
		require.NoError(t, scheduler.AddJob(validJobConfig(fmt.Sprintf("test-job-%d", i))))
	}

	jobs := scheduler.GetAllJobs()
	assert.Len(t, jobs, 3)

	// 返回的是副本，修改不影响内部状态
	jobs[0].Status = JobStatusError
	original, err := scheduler.GetJob(jobs[0].Config.Name)
	require.NoError(t, err)
	assert.NotEqual(t, JobStatusError, original.Status)
}

func TestJobScheduler_RunJob(t *testing.T) {
	scheduler := NewJobScheduler()
	executor := &MockJobExecutor{}
	scheduler.SetExecutor(executor)

	require.NoError(t, scheduler.AddJob(validJobConfig("test-job")))

	assert.NoError(t, scheduler.RunJob("test-job"))
	time.Sleep(100 * time.Millisecond)
	assert.Contains(t, executor.executed(), "test-job")

	err := scheduler.RunJob("non-existent")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	disabled := validJobConfig("disabled-job")
	disabled.Enabled = false
	require.NoError(t, scheduler.AddJob(disabled))

	err = scheduler.RunJob("disabled-job")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "disabled")
}

func TestJobScheduler_RunJobRecordsError(t *testing.T) {
	scheduler := NewJobScheduler()
	executor := &MockJobExecutor{shouldError: true}
	scheduler.SetExecutor(executor)

	require.NoError(t, scheduler.AddJob(validJobConfig("failing-job")))
	require.NoError(t, scheduler.RunJob("failing-job"))
	time.Sleep(100 * time.Millisecond)

	job, err := scheduler.GetJob("failing-job")
	require.NoError(t, err)
	assert.Equal(t, JobStatusError, job.Status)
	assert.Equal(t, int64(1), job.ErrorCount)
	assert.Error(t, job.LastError)
}

func TestJobScheduler_StartStop(t *testing.T) {
	scheduler := NewJobScheduler()
	scheduler.SetExecutor(&MockJobExecutor{})

	assert.NoError(t, scheduler.Start())
	assert.NoError(t, scheduler.Stop())

	// 没有执行器时不允许启动
	scheduler2 := NewJobScheduler()
	err := scheduler2.Start()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "executor not set")
}

func TestJobScheduler_validateJobConfig(t *testing.T) {
	scheduler := NewJobScheduler()

	tests := []struct {
		name        string
		mutate      func(*JobConfig)
		expectError bool
	}{
		{"有效配置", func(c *JobConfig) {}, false},
		{"缺少任务名称", func(c *JobConfig) { c.Name = "" }, true},
		{"缺少调度表达式", func(c *JobConfig) { c.Schedule = "" }, true},
		{"无效的调度表达式", func(c *JobConfig) { c.Schedule = "invalid-cron" }, true},
		{"未知任务类型", func(c *JobConfig) { c.Task.Kind = "unknown" }, true},
		{"K线任务缺少周期", func(c *JobConfig) { c.Task.Period = "" }, true},
		{"缺少股票列表", func(c *JobConfig) { c.Task.Symbols = nil }, true},
		{"分笔任务无需周期", func(c *JobConfig) { c.Task.Kind = TaskKindTicks; c.Task.Period = "" }, false},
		{"行情任务无需周期", func(c *JobConfig) { c.Task.Kind = TaskKindQuotes; c.Task.Period = "" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validJobConfig("test-job")
			tt.mutate(&cfg)

			err := scheduler.validateJobConfig(cfg)
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestJobScheduler_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping scheduler integration test in short mode")
	}

	configYAML := `
jobs:
  - name: "integration-test-job"
    enabled: true
    schedule: "*/1 * * * * *"
    task:
      kind: quotes
      symbols: ["600000", "000001"]
`
	configPath := filepath.Join(t.TempDir(), "jobs.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(configYAML), 0644))

	scheduler := NewJobScheduler()
	executor := &MockJobExecutor{}
	scheduler.SetExecutor(executor)

	require.NoError(t, scheduler.LoadConfig(configPath))

	jobs := scheduler.GetAllJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "integration-test-job", jobs[0].Config.Name)

	require.NoError(t, scheduler.Start())
	time.Sleep(2500 * time.Millisecond)
	require.NoError(t, scheduler.Stop())

	executed := executor.executed()
	assert.GreaterOrEqual(t, len(executed), 2, "任务应该至少执行2次")

	job, err := scheduler.GetJob("integration-test-job")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, job.RunCount, int64(2))
	assert.NotNil(t, job.LastRun)
}
