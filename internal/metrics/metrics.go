package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

// 清算结果状态标签。
const (
	StatusLiquidated = "liquidated"
	StatusSkipped    = "skipped"
	StatusFailed     = "failed"
)

var (
	RunsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "liquidation_runs_total", Help: "Completed liquidation passes"},
	)
	OutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "liquidation_outcomes_total", Help: "Per-asset liquidation outcomes"},
		[]string{"asset", "status"},
	)
	AmountTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "liquidation_amount_total", Help: "Units sold per asset"},
		[]string{"asset"},
	)
	RunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "liquidation_run_duration_seconds",
			Help:    "Wall time of a liquidation pass",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(RunsTotal, OutcomesTotal, AmountTotal, RunDuration)
}

// ObserveOutcome 记录单个资产的清算结果。
func ObserveOutcome(asset string, amount decimal.Decimal, err error) {
	switch {
	case err != nil:
		OutcomesTotal.WithLabelValues(asset, StatusFailed).Inc()
	case amount.IsPositive():
		OutcomesTotal.WithLabelValues(asset, StatusLiquidated).Inc()
		AmountTotal.WithLabelValues(asset).Add(amount.InexactFloat64())
	default:
		OutcomesTotal.WithLabelValues(asset, StatusSkipped).Inc()
	}
}

// ObserveRun 记录一次清算的耗时。
func ObserveRun(elapsed time.Duration) {
	RunsTotal.Inc()
	RunDuration.Observe(elapsed.Seconds())
}

// Handler 返回 /metrics 处理器。
func Handler() http.Handler {
	return promhttp.Handler()
}
