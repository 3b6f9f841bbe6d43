package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "iorelay",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"relay", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "iorelay",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"relay", "method", "path", "status"},
	)
	inboundEnvelopes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "iorelay",
			Subsystem: "relay",
			Name:      "inbound_envelopes_total",
			Help:      "Inbound envelopes dispatched, by command and outcome.",
		},
		[]string{"relay", "command", "outcome"},
	)
	droppedEnvelopes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "iorelay",
			Subsystem: "relay",
			Name:      "dropped_envelopes_total",
			Help:      "Inbound envelopes dropped before dispatch, by reason.",
		},
		[]string{"relay", "reason"},
	)
	outboundEnvelopes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "iorelay",
			Subsystem: "relay",
			Name:      "outbound_envelopes_total",
			Help:      "Outbound envelopes written to the bridge, by kind and success.",
		},
		[]string{"relay", "kind", "success"},
	)
	callbackFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "iorelay",
			Subsystem: "relay",
			Name:      "callback_failures_total",
			Help:      "Application callbacks that returned an error or panicked.",
		},
		[]string{"relay", "command"},
	)
	liveSessions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "iorelay",
			Subsystem: "relay",
			Name:      "live_sessions",
			Help:      "Sessions currently registered.",
		},
		[]string{"relay"},
	)
)

// Drop reasons for RecordDropped.
const (
	DropMalformed      = "malformed"
	DropOversize       = "oversize"
	DropUnknownSession = "unknown_session"
	DropDuplicate      = "duplicate"
)

// Outbound kinds for RecordOutbound.
const (
	KindUnicast   = "unicast"
	KindBroadcast = "broadcast"
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			inboundEnvelopes,
			droppedEnvelopes,
			outboundEnvelopes,
			callbackFailures,
			liveSessions,
		)
	})
}

func RecordHTTPRequest(relay, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(relay, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(relay, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordInbound(relay, command, outcome string) {
	RegisterMetrics()
	inboundEnvelopes.WithLabelValues(relay, command, outcome).Inc()
}

func RecordDropped(relay, reason string) {
	RegisterMetrics()
	droppedEnvelopes.WithLabelValues(relay, reason).Inc()
}

func RecordOutbound(relay, kind string, success bool) {
	RegisterMetrics()
	outboundEnvelopes.WithLabelValues(relay, kind, strconv.FormatBool(success)).Inc()
}

func RecordCallbackFailure(relay, command string) {
	RegisterMetrics()
	callbackFailures.WithLabelValues(relay, command).Inc()
}

func SetLiveSessions(relay string, n int) {
	RegisterMetrics()
	liveSessions.WithLabelValues(relay).Set(float64(n))
}

// ForgetRelay drops the per-relay gauge once a relay stops.
func ForgetRelay(relay string) {
	RegisterMetrics()
	liveSessions.DeleteLabelValues(relay)
}
