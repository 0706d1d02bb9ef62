package transport

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webclient_requests_total",
			Help: "Total number of request attempts by mode and status",
		},
		[]string{"mode", "status"},
	)

	authRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webclient_auth_retries_total",
			Help: "Total number of requests retried after a 401",
		},
		[]string{"mode"},
	)

	sessionLostTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "webclient_session_lost_total",
			Help: "Total number of unauthorized signals fired",
		},
	)

	uploadBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "webclient_upload_bytes_total",
			Help: "Total number of request body bytes streamed in upload mode",
		},
	)
)
