package metrics

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

type Outcome string

const (
	Success Outcome = "success"
	Error   Outcome = "error"
)

func (O Outcome) String() string {
	return string(O)
}

var (
	once                         sync.Once
	metricsRouter                *chi.Mux
	httpRequestDurationHistogram *prometheus.HistogramVec
	sagaPhaseDurationHistogram   *prometheus.HistogramVec
	sagaOutcomeCounter           *prometheus.CounterVec
	approvalCounter              *prometheus.CounterVec
	collaboratorLatencyHistogram *prometheus.HistogramVec
)

// Init initializes the metrics package.
func Init(metricsPort int) {
	once.Do(func() {
		initMetricsRouter(metricsPort)
		registerMetrics()
	})
}

// initMetricsRouter initializes the metrics router.
func initMetricsRouter(metricsPort int) {
	metricsRouter = chi.NewRouter()
	metricsRouter.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	go func() {
		metricsAddr := fmt.Sprintf(":%d", metricsPort)
		err := http.ListenAndServe(metricsAddr, metricsRouter)
		if err != nil {
			log.Fatal().Err(err).Msgf("error starting metrics server on %s", metricsAddr)
		}
	}()
}

// registerMetrics initializes and register the Prometheus metrics.
func registerMetrics() {
	defaultHistogramBucketsSeconds := []float64{0.1, 0.5, 1, 2.5, 5, 10, 30}
	// Saga phases are dominated by cross-chain confirmation latency.
	sagaPhaseBucketsSeconds := []float64{1, 5, 15, 60, 300, 900, 1800}

	httpRequestDurationHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of http request durations in seconds.",
			Buckets: defaultHistogramBucketsSeconds,
		},
		[]string{"endpoint", "status"},
	)

	sagaPhaseDurationHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recovery_saga_phase_duration_seconds",
			Help:    "Histogram of recovery saga phase durations in seconds.",
			Buckets: sagaPhaseBucketsSeconds,
		},
		[]string{"phase", "outcome"},
	)

	sagaOutcomeCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recovery_saga_outcome_total",
			Help: "Count of terminal saga outcomes.",
		},
		[]string{"outcome"},
	)

	approvalCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guardian_approvals_total",
			Help: "Count of guardian approval submissions by result.",
		},
		[]string{"result"},
	)

	collaboratorLatencyHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "collaborator_request_duration_seconds",
			Help:    "Histogram of collaborator request durations in seconds.",
			Buckets: defaultHistogramBucketsSeconds,
		},
		[]string{"collaborator", "outcome"},
	)

	prometheus.MustRegister(
		httpRequestDurationHistogram,
		sagaPhaseDurationHistogram,
		sagaOutcomeCounter,
		approvalCounter,
		collaboratorLatencyHistogram,
	)
}

// StartHttpRequestDurationTimer starts a timer to measure http request handling duration.
func StartHttpRequestDurationTimer(endpoint string) func(statusCode int) {
	startTime := time.Now()
	return func(statusCode int) {
		duration := time.Since(startTime).Seconds()
		httpRequestDurationHistogram.WithLabelValues(endpoint, fmt.Sprintf("%d", statusCode)).Observe(duration)
	}
}

// StartSagaPhaseDurationTimer starts a timer to measure one saga phase.
func StartSagaPhaseDurationTimer(phase string) func(outcome Outcome) {
	startTime := time.Now()
	return func(outcome Outcome) {
		duration := time.Since(startTime).Seconds()
		sagaPhaseDurationHistogram.WithLabelValues(phase, outcome.String()).Observe(duration)
	}
}

// RecordSagaOutcome counts a terminal saga outcome.
func RecordSagaOutcome(outcome string) {
	sagaOutcomeCounter.WithLabelValues(outcome).Inc()
}

// RecordApproval counts a guardian approval submission result.
func RecordApproval(result string) {
	approvalCounter.WithLabelValues(result).Inc()
}

// StartCollaboratorRequestTimer starts a timer for an external collaborator call.
func StartCollaboratorRequestTimer(collaborator string) func(outcome Outcome) {
	startTime := time.Now()
	return func(outcome Outcome) {
		duration := time.Since(startTime).Seconds()
		collaboratorLatencyHistogram.WithLabelValues(collaborator, outcome.String()).Observe(duration)
	}
}
