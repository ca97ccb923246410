package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	Namespace = "goblog"

	LabelTable  = "table"
	LabelResult = "result"
)

var ScanPages = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name:      "store_scan_pages_total",
		Help:      "Scan pages fetched from the record store",
		Namespace: Namespace,
	},
	[]string{LabelTable},
)

var ViewIncrementFailures = promauto.NewCounter(
	prometheus.CounterOpts{
		Name:      "view_increment_failures_total",
		Help:      "View counter increments that failed and were ignored",
		Namespace: Namespace,
	},
)

var PostCacheLookups = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name:      "post_cache_lookups_total",
		Help:      "Published post cache lookups by result",
		Namespace: Namespace,
	},
	[]string{LabelResult},
)
