package projector

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	appliedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "s01l_projector_entities_applied_total",
		Help: "Entities inserted by the projector",
	}, []string{"kind"})

	duplicateTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "s01l_projector_duplicates_total",
		Help: "Redelivered logs whose entity was already stored",
	})

	retractedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "s01l_projector_entities_retracted_total",
		Help: "Entities removed because their block was rolled back",
	})

	reorgTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "s01l_projector_reorgs_total",
		Help: "Chain reorganizations detected",
	})

	retryTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "s01l_projector_retries_total",
		Help: "Retried store or source operations",
	})

	headLag = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "s01l_projector_head_lag_blocks",
		Help: "Blocks between the source head and the checkpoint",
	})

	applyDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "s01l_projector_block_apply_seconds",
		Help:    "Time to apply one block",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
	})
)
