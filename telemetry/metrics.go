// Package telemetry provides Prometheus metrics, OpenTelemetry tracing and correlation-id aware
// logging helpers shared by the supervisor and the capture worker.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Request outcomes used as the "outcome" label of APIRequests.
const (
	OutcomeOK        = "ok"
	OutcomeQuota     = "quota"
	OutcomeTransient = "transient"
	OutcomeFatal     = "fatal"
)

var (
	once sync.Once

	// Counters
	APIRequests      *prometheus.CounterVec
	KeyRotations     prometheus.Counter
	ServerRetries    prometheus.Counter
	PollCycles       prometheus.Counter
	LivesDetected    prometheus.Counter
	CapturesStarted  prometheus.Counter
	CapturesFailed   prometheus.Counter
	MessagesCaptured prometheus.Counter
	MessagesSkipped  prometheus.Counter

	// Histograms (seconds)
	APIRequestDuration prometheus.Observer

	// Gauges
	ActiveLives       prometheus.Gauge
	CurrentCredential prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		APIRequests = promauto.NewCounterVec(prometheus.CounterOpts{Name: "ytchat_api_requests_total", Help: "YouTube API attempts by outcome"}, []string{"outcome"})
		KeyRotations = promauto.NewCounter(prometheus.CounterOpts{Name: "ytchat_key_rotations_total", Help: "Credential rotations after quota exhaustion"})
		ServerRetries = promauto.NewCounter(prometheus.CounterOpts{Name: "ytchat_server_retries_total", Help: "Retries after transient server errors"})
		PollCycles = promauto.NewCounter(prometheus.CounterOpts{Name: "ytchat_poll_cycles_total", Help: "Supervisor polling rounds"})
		LivesDetected = promauto.NewCounter(prometheus.CounterOpts{Name: "ytchat_lives_detected_total", Help: "New live streams detected by the supervisor"})
		CapturesStarted = promauto.NewCounter(prometheus.CounterOpts{Name: "ytchat_captures_started_total", Help: "Capture workers launched"})
		CapturesFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "ytchat_captures_failed_total", Help: "Capture worker launches that failed"})
		MessagesCaptured = promauto.NewCounter(prometheus.CounterOpts{Name: "ytchat_messages_captured_total", Help: "Chat messages written"})
		MessagesSkipped = promauto.NewCounter(prometheus.CounterOpts{Name: "ytchat_messages_skipped_total", Help: "Chat items without display text"})
		APIRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "ytchat_api_request_duration_seconds", Help: "YouTube API attempt duration seconds", Buckets: prometheus.DefBuckets})
		ActiveLives = promauto.NewGauge(prometheus.GaugeOpts{Name: "ytchat_active_lives", Help: "Lives currently tracked by the supervisor"})
		CurrentCredential = promauto.NewGauge(prometheus.GaugeOpts{Name: "ytchat_current_credential_index", Help: "Index of the credential in use"})
	})
}

// RecordRequest counts one API attempt. Safe to call before Init (no-op).
func RecordRequest(outcome string, d time.Duration) {
	if APIRequests == nil {
		return
	}
	APIRequests.WithLabelValues(outcome).Inc()
	if APIRequestDuration != nil {
		APIRequestDuration.Observe(d.Seconds())
	}
}

// RecordRotation counts a rotation and publishes the new credential index.
func RecordRotation(idx int) {
	if KeyRotations != nil {
		KeyRotations.Inc()
	}
	SetCredentialIndex(idx)
}

// SetCredentialIndex publishes the credential index in use.
func SetCredentialIndex(idx int) {
	if CurrentCredential != nil {
		CurrentCredential.Set(float64(idx))
	}
}

// Inc increments c if it has been registered.
func Inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// Add adds n to c if it has been registered.
func Add(c prometheus.Counter, n int) {
	if c != nil && n > 0 {
		c.Add(float64(n))
	}
}

// SetActiveLives records the number of lives tracked by the supervisor.
func SetActiveLives(n int) {
	if ActiveLives != nil {
		ActiveLives.Set(float64(n))
	}
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
