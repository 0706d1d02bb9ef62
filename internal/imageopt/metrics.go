package imageopt

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultOptimized   = "optimized"
	resultPassthrough = "passthrough"
	resultFallback    = "fallback"
)

var (
	optimizeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webclient_image_optimize_total",
			Help: "Total number of files seen by the image optimizer by result",
		},
		[]string{"result"},
	)

	bytesSavedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "webclient_image_bytes_saved_total",
			Help: "Total number of bytes removed from uploads by image optimization",
		},
	)
)
