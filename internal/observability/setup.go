package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

var (
	// Logger serves the metrics/ops plane; application logging stays on logrus.
	// A no-op logger until Init swaps in the production one, so emitting
	// before setup is safe.
	Logger = zap.NewNop()

	messagesCheckedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "messages_checked_total",
			Help: "Total number of messages sent to the classifier",
		},
	)

	spamActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spam_actions_total",
			Help: "Total number of punishment actions applied, by action",
		},
		[]string{"action"},
	)

	apiQuotaRemaining = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_quota_remaining",
			Help: "Remaining classifier calls for the current day",
		},
	)

	classifyDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "classify_duration_seconds",
			Help:    "Time spent on classifier calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)
)

func Init() error {
	var err error
	Logger, err = zap.NewProduction()
	if err != nil {
		return err
	}

	prometheus.MustRegister(messagesCheckedTotal)
	prometheus.MustRegister(spamActionsTotal)
	prometheus.MustRegister(apiQuotaRemaining)
	prometheus.MustRegister(classifyDuration)

	tp := trace.NewTracerProvider()
	otel.SetTracerProvider(tp)

	return nil
}

func RecordMessageChecked() {
	messagesCheckedTotal.Inc()
}

func RecordSpamAction(action string) {
	spamActionsTotal.WithLabelValues(action).Inc()
}

func SetQuotaRemaining(remaining int) {
	apiQuotaRemaining.Set(float64(remaining))
}

// StartClassification returns a closure recording the call duration under the
// final status label.
func StartClassification() func(status string) {
	start := time.Now()
	return func(status string) {
		classifyDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	}
}

// MetricsServer exposes /metrics; wired as a lifecycle component.
type MetricsServer struct {
	server *http.Server
}

func NewMetricsServer(addr string) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &MetricsServer{
		server: &http.Server{Addr: addr, Handler: mux},
	}
}

func (m *MetricsServer) Start(_ context.Context) error {
	go func() {
		if err := m.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("metrics server failed")
		}
	}()
	return nil
}

func (m *MetricsServer) Stop(ctx context.Context) error {
	return m.server.Shutdown(ctx)
}
