package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StockOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_operations_total",
		Help: "Stock engine operations by type and outcome.",
	}, []string{"operation", "outcome"})

	OperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stock_operation_duration_seconds",
		Help:    "Duration of stock engine operations.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
)
