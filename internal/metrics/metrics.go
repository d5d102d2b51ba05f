package metrics

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

var (
	// API 请求计数器
	apiRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "path", "status"},
	)

	// API 请求响应时间
	apiRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// 模板变更数
	templateMutationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "template_mutations_total",
			Help: "Total number of template mutations",
		},
		[]string{"operation"}, // create, upsert, merge, delete, etc.
	)

	templateUsageTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "template_usage_total",
			Help: "Total number of template usage increments",
		},
	)

	// 数据库连接数
	databaseConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "database_connections_active",
			Help: "Number of active database connections",
		},
	)

	databaseConnectionsIdle = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "database_connections_idle",
			Help: "Number of idle database connections",
		},
	)

	databaseConnectionsMax = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "database_connections_max",
			Help: "Maximum number of database connections",
		},
	)

	// 模板分布
	templatesByCategory = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "templates_by_category",
			Help: "Number of templates by category",
		},
		[]string{"category"},
	)

	templatesByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "templates_by_status",
			Help: "Number of templates by status",
		},
		[]string{"status"},
	)

	// 变更推送连接数
	websocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_clients",
			Help: "Number of connected change-feed clients",
		},
	)
)

var (
	once sync.Once
)

func init() {
	// 注册指标
	prometheus.MustRegister(apiRequestsTotal)
	prometheus.MustRegister(apiRequestDuration)
	prometheus.MustRegister(templateMutationsTotal)
	prometheus.MustRegister(templateUsageTotal)
	prometheus.MustRegister(databaseConnectionsActive)
	prometheus.MustRegister(databaseConnectionsIdle)
	prometheus.MustRegister(databaseConnectionsMax)
	prometheus.MustRegister(templatesByCategory)
	prometheus.MustRegister(templatesByStatus)
	prometheus.MustRegister(websocketClients)

	// 注册 Go 运行时指标（只注册一次）
	once.Do(func() {
		// 已注册时忽略错误
		_ = prometheus.Register(prometheus.NewGoCollector())
		_ = prometheus.Register(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	})
}

// Handler 返回 Prometheus 指标处理器
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordAPIRequest 记录 API 请求
func RecordAPIRequest(method, path string, status int, duration float64) {
	statusText := http.StatusText(status)
	if statusText == "" {
		statusText = fmt.Sprintf("%d", status)
	}
	apiRequestsTotal.WithLabelValues(method, path, statusText).Inc()
	apiRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// RecordTemplateMutation 记录模板变更
func RecordTemplateMutation(operation string) {
	templateMutationsTotal.WithLabelValues(operation).Inc()
}

// RecordTemplateUsage 记录一次模板使用
func RecordTemplateUsage() {
	templateUsageTotal.Inc()
}

// SetWebSocketClients 更新推送连接数
func SetWebSocketClients(n int) {
	websocketClients.Set(float64(n))
}

// UpdateDatabaseConnections 更新数据库连接数指标
func UpdateDatabaseConnections(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("database connection is nil")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}

	stats := sqlDB.Stats()
	databaseConnectionsActive.Set(float64(stats.OpenConnections - stats.Idle))
	databaseConnectionsIdle.Set(float64(stats.Idle))
	databaseConnectionsMax.Set(float64(stats.MaxOpenConnections))

	return nil
}

// UpdateTemplateDistribution 以最新统计覆盖模板分布指标
func UpdateTemplateDistribution(byCategory, byStatus map[string]int) {
	templatesByCategory.Reset()
	for k, v := range byCategory {
		templatesByCategory.WithLabelValues(k).Set(float64(v))
	}
	templatesByStatus.Reset()
	for k, v := range byStatus {
		templatesByStatus.WithLabelValues(k).Set(float64(v))
	}
}
