package h1

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	activeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hearth_connections_active",
			Help: "Current number of open client connections",
		},
	)

	rejectedConnections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hearth_connections_rejected_total",
			Help: "Total number of connections rejected by the connection limit",
		},
	)

	parseErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hearth_request_parse_errors_total",
			Help: "Total number of requests answered with 400 because they could not be parsed",
		},
	)
)
