// Package metrics 提供 Prometheus helper，包含常用 counter/gauge/histogram 模板
package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wyfcoding/evservicecenter/pkg/logger"
)

// Metrics 指标集合
type Metrics struct {
	// HTTP 请求计数
	HTTPRequestsTotal prometheus.Counter
	// HTTP 请求耗时
	HTTPRequestDuration prometheus.Histogram

	// 数据库查询计数
	DBQueriesTotal prometheus.Counter
	// 数据库查询耗时
	DBQueryDuration prometheus.Histogram

	// 缓存命中计数
	CacheHitsTotal prometheus.Counter
	// 缓存未命中计数
	CacheMissesTotal prometheus.Counter
	// 缓存失效删除的键数
	CacheInvalidationsTotal prometheus.Counter

	// 事件发布计数
	EventsPublishedTotal prometheus.Counter
	// 事件消费计数
	EventsConsumedTotal prometheus.Counter
	// 事件处理失败计数
	EventFailuresTotal prometheus.Counter

	// 业务指标
	WorkOrdersCompletedTotal prometheus.Counter
	StockDeductionsTotal     prometheus.Counter
	StockDeductionRejects    prometheus.Counter
	LowStockAlertsTotal      prometheus.Counter
}

// New 创建指标实例
func New(serviceName string) *Metrics {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "evsc",
			Subsystem: serviceName,
			Name:      name,
			Help:      help,
		})
	}
	histogram := func(name, help string) prometheus.Histogram {
		return prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "evsc",
			Subsystem: serviceName,
			Name:      name,
			Help:      help,
			Buckets:   prometheus.DefBuckets,
		})
	}

	return &Metrics{
		HTTPRequestsTotal:   counter("http_requests_total", "Total HTTP requests"),
		HTTPRequestDuration: histogram("http_request_duration_seconds", "HTTP request duration in seconds"),

		DBQueriesTotal:  counter("db_queries_total", "Total database queries"),
		DBQueryDuration: histogram("db_query_duration_seconds", "Database query duration in seconds"),

		CacheHitsTotal:          counter("cache_hits_total", "Cache-aside read hits"),
		CacheMissesTotal:        counter("cache_misses_total", "Cache-aside read misses"),
		CacheInvalidationsTotal: counter("cache_invalidations_total", "Cache keys deleted by invalidation"),

		EventsPublishedTotal: counter("events_published_total", "Events published to the bus"),
		EventsConsumedTotal:  counter("events_consumed_total", "Events consumed from the bus"),
		EventFailuresTotal:   counter("event_failures_total", "Event handler failures"),

		WorkOrdersCompletedTotal: counter("work_orders_completed_total", "Work orders marked completed"),
		StockDeductionsTotal:     counter("stock_deductions_total", "Committed stock deduction batches"),
		StockDeductionRejects:    counter("stock_deduction_rejects_total", "Stock deduction batches rolled back"),
		LowStockAlertsTotal:      counter("low_stock_alerts_total", "Low stock alerts emitted"),
	}
}

// Register 注册所有指标
func (m *Metrics) Register() error {
	collectors := []prometheus.Collector{
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.DBQueriesTotal,
		m.DBQueryDuration,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CacheInvalidationsTotal,
		m.EventsPublishedTotal,
		m.EventsConsumedTotal,
		m.EventFailuresTotal,
		m.WorkOrdersCompletedTotal,
		m.StockDeductionsTotal,
		m.StockDeductionRejects,
		m.LowStockAlertsTotal,
	}

	for _, collector := range collectors {
		if err := prometheus.DefaultRegisterer.Register(collector); err != nil {
			logger.Error(context.Background(), "Failed to register metric", "error", err)
			return err
		}
	}

	logger.Info(context.Background(), "Metrics registered successfully")
	return nil
}

// StartHTTPServer 启动 Prometheus HTTP 服务器
func StartHTTPServer(port int, path string) error {
	if path == "" {
		path = "/metrics"
	}

	http.Handle(path, promhttp.Handler())

	addr := fmt.Sprintf(":%d", port)
	logger.Info(context.Background(), "Starting Prometheus HTTP server", "addr", addr, "path", path)

	go func() {
		if err := http.ListenAndServe(addr, nil); err != nil {
			logger.Error(context.Background(), "Failed to start Prometheus HTTP server", "error", err)
		}
	}()

	return nil
}
