package logger

import (
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

type Entry = logrus.Entry

// Config 日志配置
type Config struct {
	Level  string `json:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `json:"format" mapstructure:"format"` // text, json
}

var (
	defaultLogger *logrus.Logger
	once          sync.Once
)

// New 根据配置创建日志器
func New(cfg Config) *logrus.Logger {
	l := logrus.New()

	level, err := logrus.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if cfg.Format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05.000",
		})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: "2006-01-02 15:04:05.000",
			FullTimestamp:   true,
		})
	}

	l.SetOutput(os.Stdout)
	return l
}

// Init 按配置初始化全局默认日志器
// 需在首次使用 Default/WithComponent 之前调用，否则回退到环境变量配置
func Init(cfg Config) {
	once.Do(func() {
		defaultLogger = New(cfg)
	})
}

// Default 返回全局默认日志器，首次调用时按环境变量初始化
func Default() *logrus.Logger {
	once.Do(func() {
		level := os.Getenv("LOG_LEVEL")
		if level == "" {
			level = "info"
		}
		defaultLogger = New(Config{Level: level, Format: os.Getenv("LOG_FORMAT")})
	})
	return defaultLogger
}

// WithComponent 创建带组件名的日志器
func WithComponent(component string) *logrus.Entry {
	return Default().WithField("component", component)
}
