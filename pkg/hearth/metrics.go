package hearth

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hearth_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hearth_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds, measured from receipt of the request line",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hearth_http_requests_in_flight",
			Help: "Current number of HTTP requests being served",
		},
	)

	httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hearth_http_response_size_bytes",
			Help:    "HTTP response body size in bytes",
			Buckets: []float64{100, 1000, 10000, 100000, 1000000},
		},
		[]string{"method", "path", "status"},
	)
)

// MetricsConfig holds configuration for the Metrics hook.
type MetricsConfig struct {
	// SkipPaths lists paths to skip metrics collection (e.g., /metrics, /health)
	SkipPaths []string
}

// DefaultMetricsConfig returns a MetricsConfig with sensible defaults.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{SkipPaths: []string{"/metrics"}}
}

// Metrics returns a hook that records Prometheus request metrics.
func Metrics() Hook {
	return MetricsWithConfig(DefaultMetricsConfig())
}

// MetricsWithConfig returns a Metrics hook with custom configuration.
func MetricsWithConfig(config MetricsConfig) Hook {
	skipMap := make(map[string]bool, len(config.SkipPaths))
	for _, path := range config.SkipPaths {
		skipMap[path] = true
	}

	return HookFuncs{
		BeforeFunc: func(req *Request, _ *Response) (Action, error) {
			if !skipMap[req.Path()] {
				httpRequestsInFlight.Inc()
			}
			return Continue, nil
		},
		AfterFunc: func(req *Request, resp *Response) error {
			if skipMap[req.Path()] {
				return nil
			}
			httpRequestsInFlight.Dec()

			method := req.Method().String()
			path := req.Path()
			status := strconv.Itoa(resp.Status())

			httpRequestsTotal.WithLabelValues(method, path, status).Inc()
			if !req.ReceivedAt().IsZero() {
				httpRequestDuration.WithLabelValues(method, path, status).
					Observe(time.Since(req.ReceivedAt()).Seconds())
			}
			httpResponseSize.WithLabelValues(method, path, status).Observe(float64(len(resp.Body())))
			return nil
		},
	}
}

// MetricsHandler returns a handler that serves the gatherer's metrics in
// the Prometheus text format. A nil gatherer means the default registry.
func MetricsHandler(gatherer prometheus.Gatherer) Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	format := expfmt.NewFormat(expfmt.TypeTextPlain)

	return HandlerFunc(func(_ *Request, resp *Response) error {
		families, err := gatherer.Gather()
		if err != nil {
			return fmt.Errorf("gather metrics: %w", err)
		}
		var buf bytes.Buffer
		enc := expfmt.NewEncoder(&buf, format)
		for _, mf := range families {
			if err := enc.Encode(mf); err != nil {
				return fmt.Errorf("encode metrics: %w", err)
			}
		}
		resp.SetHeader("Content-Type", string(format))
		resp.SetBody(buf.Bytes())
		return nil
	})
}
