// internal/metrics/metrics.go
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	transactionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "suibot_transactions_total",
			Help: "Количество отправленных транзакций по статусу, операции и DEX",
		},
		[]string{"status", "operation", "dex"},
	)

	transactionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "suibot_transaction_duration_seconds",
			Help:    "Длительность исполнения транзакций",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "dex"},
	)

	rpcLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "suibot_rpc_latency_seconds",
			Help:    "Латентность вызовов JSON-RPC",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "endpoint"},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "suibot_cache_lookups_total",
			Help: "Обращения к кешу по namespace и результату",
		},
		[]string{"namespace", "result"},
	)

	retryAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "suibot_retry_attempts_total",
			Help: "Повторные попытки сетевых операций по исходу",
		},
		[]string{"operation", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		transactionCounter,
		transactionDuration,
		rpcLatency,
		cacheLookups,
		retryAttempts,
	)
}

// Collector — точка записи метрик, внедряется в компоненты при создании.
type Collector struct{}

// NewCollector создаёт коллектор метрик.
func NewCollector() *Collector {
	return &Collector{}
}

// RecordTransaction записывает итог отправленной транзакции.
func (c *Collector) RecordTransaction(operation, dex string, duration time.Duration, success bool) {
	if c == nil {
		return
	}
	status := "success"
	if !success {
		status = "failed"
	}
	transactionCounter.WithLabelValues(status, operation, dex).Inc()
	transactionDuration.WithLabelValues(operation, dex).Observe(duration.Seconds())
}

// RecordRPCLatency записывает латентность одного RPC-вызова.
func (c *Collector) RecordRPCLatency(method, endpoint string, duration time.Duration) {
	if c == nil {
		return
	}
	rpcLatency.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordCacheLookup записывает попадание либо промах кеша.
func (c *Collector) RecordCacheLookup(namespace string, hit bool) {
	if c == nil {
		return
	}
	result := "hit"
	if !hit {
		result = "miss"
	}
	cacheLookups.WithLabelValues(namespace, result).Inc()
}

// RecordRetry записывает исход попытки: retried, exhausted, gave_up, succeeded.
func (c *Collector) RecordRetry(operation, outcome string) {
	if c == nil {
		return
	}
	retryAttempts.WithLabelValues(operation, outcome).Inc()
}
