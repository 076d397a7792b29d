package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	DirectionRead  = "read"
	DirectionWrite = "write"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "memdev",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "memdev",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	transferBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "memdev",
			Subsystem: "device",
			Name:      "transfer_bytes_total",
			Help:      "Bytes moved between callers and device buffers.",
		},
		[]string{"device", "direction"},
	)
	transferOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "memdev",
			Subsystem: "device",
			Name:      "transfers_total",
			Help:      "Device read and write calls.",
		},
		[]string{"device", "direction", "success"},
	)
	openSessions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "memdev",
			Subsystem: "device",
			Name:      "open_sessions",
			Help:      "Sessions currently open per device.",
		},
		[]string{"device"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, transferBytes, transferOps, openSessions)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

// RecordTransfer counts one read or write call and the bytes it moved.
func RecordTransfer(device, direction string, n int, success bool) {
	RegisterMetrics()
	transferOps.WithLabelValues(device, direction, strconv.FormatBool(success)).Inc()
	if n > 0 {
		transferBytes.WithLabelValues(device, direction).Add(float64(n))
	}
}

func SessionOpened(device string) {
	RegisterMetrics()
	openSessions.WithLabelValues(device).Inc()
}

func SessionReleased(device string) {
	RegisterMetrics()
	openSessions.WithLabelValues(device).Dec()
}
