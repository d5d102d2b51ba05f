package config

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// ConfigChange 一次配置文件变更
type ConfigChange struct {
	Old *Config
	New *Config
}

// LogLevelChanged 日志级别是否变化,这是唯一可以热更新的配置
func (c ConfigChange) LogLevelChanged() bool {
	return c.Old.Log.Level != c.New.Log.Level
}

// RestartRequired 返回变化了但需要重启才能生效的配置段
func (c ConfigChange) RestartRequired() []string {
	o, n := c.Old, c.New
	var sections []string
	add := func(name string, changed bool) {
		if changed {
			sections = append(sections, name)
		}
	}

	add("env", o.Env != n.Env)
	add("server", o.Server != n.Server)
	add("store", o.Store != n.Store)
	add("usage", o.Usage != n.Usage)
	add("redis", o.Redis != n.Redis)
	add("database", o.Database != n.Database)
	add("backup", o.Backup != n.Backup)
	add("cors", !corsEqual(o.CORS, n.CORS))
	add("log", o.Log.Format != n.Log.Format || o.Log.Output != n.Log.Output || o.Log.Dir != n.Log.Dir)
	add("auth", o.Auth != n.Auth)
	add("rate_limit", o.RateLimit != n.RateLimit)
	add("tracing", o.Tracing != n.Tracing)
	return sections
}

func corsEqual(a, b CORSConfig) bool {
	return a.MaxAge == b.MaxAge &&
		slices.Equal(a.AllowedOrigins, b.AllowedOrigins) &&
		slices.Equal(a.AllowedMethods, b.AllowedMethods) &&
		slices.Equal(a.AllowedHeaders, b.AllowedHeaders)
}

// ConfigWatcher 监听配置文件,变更经过校验后通知回调
type ConfigWatcher struct {
	path   string
	viper  *viper.Viper
	logger logrus.FieldLogger

	mu        sync.RWMutex
	current   *Config
	callbacks []func(ConfigChange)

	stopped atomic.Bool
}

// NewConfigWatcher 创建配置监听器,cfg 为当前生效的配置
func NewConfigWatcher(cfg *Config, path string, logger logrus.FieldLogger) *ConfigWatcher {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	v := newViper()
	v.SetConfigFile(path)

	return &ConfigWatcher{
		path:    path,
		viper:   v,
		logger:  logger.WithField("config", path),
		current: cfg,
	}
}

// OnChange 注册变更回调
func (w *ConfigWatcher) OnChange(callback func(ConfigChange)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Start 读取配置文件并开始监听
func (w *ConfigWatcher) Start() error {
	if err := w.viper.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	w.viper.OnConfigChange(func(e fsnotify.Event) {
		if w.stopped.Load() {
			return
		}
		w.reload(e.Name)
	})
	w.viper.WatchConfig()

	w.logger.Debug("config watcher started")
	return nil
}

func (w *ConfigWatcher) reload(name string) {
	newCfg, err := unmarshal(w.viper)
	if err != nil {
		// 保留上一份有效配置
		w.logger.WithError(err).WithField("event", name).Warn("ignoring invalid config change")
		return
	}

	w.mu.Lock()
	change := ConfigChange{Old: w.current, New: newCfg}
	w.current = newCfg
	callbacks := slices.Clone(w.callbacks)
	w.mu.Unlock()

	if !change.LogLevelChanged() && len(change.RestartRequired()) == 0 {
		w.logger.Debug("config file touched without changes")
		return
	}

	for _, callback := range callbacks {
		callback(change)
	}
}

// Stop 停止通知,viper 的文件监听随进程退出
func (w *ConfigWatcher) Stop() {
	w.stopped.Store(true)
}

// Current 当前生效的配置
func (w *ConfigWatcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}
