// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// defaultModule labels migrations that belong to no module.
const defaultModule = "default"

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 迁移指标收集器，每个实例持有独立的 Registry，
// 一次 CLI 运行结束后整体写入 node_exporter textfile。
type Collector struct {
	registry *prometheus.Registry

	migrationsTotal   *prometheus.CounterVec
	migrationDuration *prometheus.HistogramVec
	appliedMigrations *prometheus.GaugeVec
	lastRunTimestamp  prometheus.Gauge

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	c := &Collector{
		registry: reg,
		logger:   logger.With(zap.String("component", "metrics")),
	}

	c.migrationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "migrations_total",
			Help:      "Total number of migrations processed",
		},
		[]string{"module", "direction", "status"},
	)

	c.migrationDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "migration_duration_seconds",
			Help:      "Migration execution duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120, 600},
		},
		[]string{"module", "direction"},
	)

	c.appliedMigrations = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "applied_migrations",
			Help:      "Number of applied migrations per module",
		},
		[]string{"module"},
	)

	c.lastRunTimestamp = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the last migration run",
		},
	)

	return c
}

// =============================================================================
// 📝 记录方法
// =============================================================================

// ObserveMigration 记录一次迁移（up / down / fake）
func (c *Collector) ObserveMigration(module, direction, status string, duration time.Duration) {
	module = moduleLabel(module)
	c.migrationsTotal.WithLabelValues(module, direction, status).Inc()
	c.migrationDuration.WithLabelValues(module, direction).Observe(duration.Seconds())

	c.logger.Debug("migration observed",
		zap.String("module", module),
		zap.String("direction", direction),
		zap.String("status", status),
		zap.Duration("duration", duration),
	)
}

// SetApplied 设置模块当前已应用的迁移数量
func (c *Collector) SetApplied(module string, count int) {
	c.appliedMigrations.WithLabelValues(moduleLabel(module)).Set(float64(count))
}

// Registry 返回底层 Registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// WriteTextfile 以 textfile collector 格式原子写出全部指标
func (c *Collector) WriteTextfile(path string) error {
	c.lastRunTimestamp.Set(float64(time.Now().Unix()))
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	c.logger.Debug("metrics written", zap.String("path", path))
	return nil
}

func moduleLabel(module string) string {
	if module == "" {
		return defaultModule
	}
	return module
}
