package metrics

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// DistributionSource 提供模板分布统计
type DistributionSource interface {
	Distribution(ctx context.Context) (byCategory, byStatus map[string]int, err error)
}

// Collector 指标收集器
type Collector struct {
	db       *gorm.DB
	source   DistributionSource
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewCollector 创建指标收集器,db 为空时跳过连接池指标
func NewCollector(db *gorm.DB, source DistributionSource, interval time.Duration) *Collector {
	ctx, cancel := context.WithCancel(context.Background())
	return &Collector{
		db:       db,
		source:   source,
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Start 启动指标收集器
func (c *Collector) Start() {
	go c.collect()
}

// Stop 停止指标收集器
func (c *Collector) Stop() {
	c.cancel()
	<-c.done
}

// CollectOnce 立即收集一次
func (c *Collector) CollectOnce() {
	if c.db != nil {
		_ = UpdateDatabaseConnections(c.db)
	}
	if c.source == nil {
		return
	}
	byCategory, byStatus, err := c.source.Distribution(c.ctx)
	if err != nil {
		logrus.WithError(err).Debug("failed to collect template distribution")
		return
	}
	UpdateTemplateDistribution(byCategory, byStatus)
}

// collect 定期收集指标
func (c *Collector) collect() {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	defer close(c.done)

	c.CollectOnce()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.CollectOnce()
		}
	}
}
