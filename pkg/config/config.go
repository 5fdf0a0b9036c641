package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 主配置结构
type Config struct {
	// 数据库配置
	Database DatabaseConfig `json:"database" mapstructure:"database"`

	// 数据获取配置
	Fetcher FetcherConfig `json:"fetcher" mapstructure:"fetcher"`

	// Redis 配置（实时行情推送）
	Redis RedisConfig `json:"redis" mapstructure:"redis"`

	// InfluxDB 配置（行情采集器）
	InfluxDB InfluxDBConfig `json:"influxdb" mapstructure:"influxdb"`

	// API 服务配置
	Server ServerConfig `json:"server" mapstructure:"server"`

	// 日志配置
	Logger LoggerConfig `json:"logger" mapstructure:"logger"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver string `json:"driver" mapstructure:"driver"` // 驱动名 ("sqlite")
	DSN    string `json:"dsn" mapstructure:"dsn"`       // 连接串
}

// FetcherConfig 数据获取配置
type FetcherConfig struct {
	Timeout          time.Duration `json:"timeout" mapstructure:"timeout"`                       // 单次数据源调用超时
	MaxRetries       int           `json:"max_retries" mapstructure:"max_retries"`               // 每个数据源的最大尝试次数
	RetryDelay       time.Duration `json:"retry_delay" mapstructure:"retry_delay"`               // 超时后的重试间隔
	BackoffDelay     time.Duration `json:"backoff_delay" mapstructure:"backoff_delay"`           // 出错后的退避间隔
	BarSources       []string      `json:"bar_sources" mapstructure:"bar_sources"`               // K线数据源优先级
	TickSources      []string      `json:"tick_sources" mapstructure:"tick_sources"`             // 分笔数据源优先级
	InfoSources      []string      `json:"info_sources" mapstructure:"info_sources"`             // 基本信息数据源优先级
	DefaultRangeDays int           `json:"default_range_days" mapstructure:"default_range_days"` // K线默认回溯天数
	BatchConcurrency int           `json:"batch_concurrency" mapstructure:"batch_concurrency"`   // 批量抓取并发数
	UserAgent        string        `json:"user_agent" mapstructure:"user_agent"`                 // HTTP 用户代理

	// TickErrorOnExhausted 为 true 时分笔接口在所有数据源耗尽后返回错误，
	// 默认返回空结果以便批量任务继续处理后续股票
	TickErrorOnExhausted bool `json:"tick_error_on_exhausted" mapstructure:"tick_error_on_exhausted"`

	// CircuitBreaker 为 true 时给内置数据源套上熔断器，
	// 连续失败的数据源会被短路，故障切换立即转向下一数据源
	CircuitBreaker bool `json:"circuit_breaker" mapstructure:"circuit_breaker"`
}

// RedisConfig Redis 连接配置
type RedisConfig struct {
	Addr     string `json:"addr" mapstructure:"addr"`
	Password string `json:"password" mapstructure:"password"`
	DB       int    `json:"db" mapstructure:"db"`
}

// InfluxDBConfig InfluxDB 连接配置
type InfluxDBConfig struct {
	URL    string `json:"url" mapstructure:"url"`
	Token  string `json:"token" mapstructure:"token"`
	Org    string `json:"org" mapstructure:"org"`
	Bucket string `json:"bucket" mapstructure:"bucket"`
}

// ServerConfig API 服务配置
type ServerConfig struct {
	Port string `json:"port" mapstructure:"port"`
	Mode string `json:"mode" mapstructure:"mode"` // debug, release, test
}

// LoggerConfig 日志配置
type LoggerConfig struct {
	Level  string `json:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `json:"format" mapstructure:"format"` // text, json
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "stockfetch.db",
		},
		Fetcher: FetcherConfig{
			Timeout:          10 * time.Second,
			MaxRetries:       3,
			RetryDelay:       1 * time.Second,
			BackoffDelay:     2 * time.Second,
			BarSources:       []string{"eastmoney", "tencent", "sina"},
			TickSources:      []string{"tencent", "tencent_prefixed", "sina_spot"},
			InfoSources:      []string{"eastmoney", "sina"},
			DefaultRangeDays: 365,
			BatchConcurrency: 10,
			UserAgent:        "StockFetch/1.0",
			CircuitBreaker:   true,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		InfluxDB: InfluxDBConfig{
			URL:    "http://localhost:8086",
			Org:    "stockfetch",
			Bucket: "stock_data",
		},
		Server: ServerConfig{
			Port: "8080",
			Mode: "release",
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load 从配置文件和环境变量加载配置
// path 为空时按默认搜索路径查找 stockfetch.yaml，找不到时使用默认值
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("stockfetch")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	setDefaults(v)

	v.SetEnvPrefix("STOCKFETCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setDefaults 注册所有默认值
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.dsn", d.Database.DSN)

	v.SetDefault("fetcher.timeout", d.Fetcher.Timeout)
	v.SetDefault("fetcher.max_retries", d.Fetcher.MaxRetries)
	v.SetDefault("fetcher.retry_delay", d.Fetcher.RetryDelay)
	v.SetDefault("fetcher.backoff_delay", d.Fetcher.BackoffDelay)
	v.SetDefault("fetcher.bar_sources", d.Fetcher.BarSources)
	v.SetDefault("fetcher.tick_sources", d.Fetcher.TickSources)
	v.SetDefault("fetcher.info_sources", d.Fetcher.InfoSources)
	v.SetDefault("fetcher.default_range_days", d.Fetcher.DefaultRangeDays)
	v.SetDefault("fetcher.batch_concurrency", d.Fetcher.BatchConcurrency)
	v.SetDefault("fetcher.user_agent", d.Fetcher.UserAgent)
	v.SetDefault("fetcher.tick_error_on_exhausted", d.Fetcher.TickErrorOnExhausted)
	v.SetDefault("fetcher.circuit_breaker", d.Fetcher.CircuitBreaker)

	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)

	v.SetDefault("influxdb.url", d.InfluxDB.URL)
	v.SetDefault("influxdb.token", d.InfluxDB.Token)
	v.SetDefault("influxdb.org", d.InfluxDB.Org)
	v.SetDefault("influxdb.bucket", d.InfluxDB.Bucket)

	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.mode", d.Server.Mode)

	v.SetDefault("logger.level", d.Logger.Level)
	v.SetDefault("logger.format", d.Logger.Format)
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Database.Driver == "" {
		return errors.New("database driver cannot be empty")
	}

	if c.Database.DSN == "" {
		return errors.New("database dsn cannot be empty")
	}

	if c.Fetcher.Timeout <= 0 {
		return errors.New("fetcher timeout must be positive")
	}

	if c.Fetcher.MaxRetries <= 0 {
		return errors.New("fetcher max_retries must be positive")
	}

	if c.Fetcher.RetryDelay < 0 {
		return errors.New("fetcher retry_delay cannot be negative")
	}

	if c.Fetcher.BackoffDelay < 0 {
		return errors.New("fetcher backoff_delay cannot be negative")
	}

	if len(c.Fetcher.BarSources) == 0 {
		return errors.New("fetcher bar_sources cannot be empty")
	}

	if c.Fetcher.DefaultRangeDays <= 0 {
		return errors.New("fetcher default_range_days must be positive")
	}

	if c.Fetcher.BatchConcurrency <= 0 {
		return errors.New("fetcher batch_concurrency must be positive")
	}

	return nil
}
