package auth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

var refreshTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "webclient_token_refresh_total",
		Help: "Total number of token refresh network calls by outcome",
	},
	[]string{"outcome"},
)
