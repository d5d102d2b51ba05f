package logger

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/HKCalvinYau/wati-automation/internal/config"
	"github.com/sirupsen/logrus"
)

var (
	defaultLogger *logrus.Logger
	defaultMu     sync.Mutex
)

const timestampFormat = "2006-01-02T15:04:05.000Z07:00"

func jsonFormatter() *logrus.JSONFormatter {
	return &logrus.JSONFormatter{
		TimestampFormat: timestampFormat,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "time",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "msg",
		},
	}
}

// New 创建新的日志记录器
func New() *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(jsonFormatter())
	l.SetLevel(logrus.InfoLevel)
	l.SetOutput(os.Stdout)
	return l
}

// NewFromConfig 根据配置创建日志记录器
func NewFromConfig(cfg *config.LogConfig) (*logrus.Logger, error) {
	l := logrus.New()

	if cfg.Format == "json" {
		l.SetFormatter(jsonFormatter())
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: timestampFormat,
			FullTimestamp:   true,
		})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	var writers []io.Writer
	if cfg.Output == "stdout" || cfg.Output == "both" {
		writers = append(writers, os.Stdout)
	}
	if cfg.Output == "file" || cfg.Output == "both" {
		logDir := cfg.Dir
		if logDir == "" {
			logDir = "logs"
		}
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return nil, err
		}
		file, err := os.OpenFile(filepath.Join(logDir, "wati-automation.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return nil, err
		}
		writers = append(writers, file)
	}
	if len(writers) == 0 {
		writers = []io.Writer{os.Stdout}
	}
	l.SetOutput(io.MultiWriter(writers...))

	// 默认字段,便于日志聚合
	l.AddHook(&defaultFieldsHook{
		fields: logrus.Fields{
			"service": "wati-automation",
		},
	})

	return l, nil
}

// defaultFieldsHook 添加默认字段的 Hook
type defaultFieldsHook struct {
	fields logrus.Fields
}

func (h *defaultFieldsHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *defaultFieldsHook) Fire(entry *logrus.Entry) error {
	for k, v := range h.fields {
		if _, exists := entry.Data[k]; !exists {
			entry.Data[k] = v
		}
	}
	return nil
}

// Get 获取默认日志记录器
func Get() *logrus.Logger {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger == nil {
		defaultLogger = New()
	}
	return defaultLogger
}

// Set 替换默认日志记录器
func Set(l *logrus.Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = l
}

// SetOutput 设置默认日志输出
func SetOutput(w io.Writer) {
	Get().SetOutput(w)
}

// SetLevel 设置默认日志级别
func SetLevel(level logrus.Level) {
	Get().SetLevel(level)
}
