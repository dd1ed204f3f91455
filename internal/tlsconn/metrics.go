package tlsconn

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	handshakesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hearth_tls_handshakes_total",
			Help: "Total number of server TLS handshakes by result",
		},
		[]string{"result"},
	)

	certificateReloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hearth_tls_certificate_reloads_total",
			Help: "Total number of certificate reload attempts by result",
		},
		[]string{"result"},
	)
)
