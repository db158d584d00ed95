package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Turn metrics
	turnsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "luna_turns_started_total",
		Help: "Total number of turns entering the pipeline",
	})

	turnsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "luna_turns_completed_total",
		Help: "Total number of completed turns",
	}, []string{"status"})

	messagesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "luna_messages_dropped_total",
		Help: "Total number of silently dropped inbound messages",
	}, []string{"reason"})

	// Generation metrics
	generationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "luna_generation_duration_seconds",
		Help:    "Duration of generation backend calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"backend", "status"})

	generationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "luna_generations_total",
		Help: "Total number of generation backend calls",
	}, []string{"backend", "status"})

	// Arbiter metrics
	deflections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "luna_deflections_total",
		Help: "Total number of deflected escalating turns",
	}, []string{"reason"})

	initiations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "luna_initiations_total",
		Help: "Total number of Luna-initiated flirtatious threads",
	})

	climaxes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "luna_climaxes_total",
		Help: "Total number of detected climax cycles",
	})

	// Monetization metrics
	paywallsShown = promauto.NewCounter(prometheus.CounterOpts{
		Name: "luna_paywalls_shown_total",
		Help: "Total number of paywall messages emitted",
	})

	conversionsOffered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "luna_conversions_offered_total",
		Help: "Total number of soft conversion offers shown",
	})

	// Storage metrics
	storageOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "luna_storage_operations_total",
		Help: "Total number of storage operations",
	}, []string{"operation", "status"})

	storageOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "luna_storage_operation_duration_seconds",
		Help:    "Duration of storage operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	// Extraction metrics
	extractionJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "luna_extraction_jobs_total",
		Help: "Total number of async memory extraction jobs",
	}, []string{"status"})

	// Active users gauge
	activeUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "luna_active_users",
		Help: "Number of users seen in the last session window",
	})
)

// Metrics provides methods to record metrics
type Metrics struct{}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordTurnStarted records a turn entering the pipeline
func (m *Metrics) RecordTurnStarted() {
	turnsStarted.Inc()
}

// RecordTurnCompleted records a completed turn
func (m *Metrics) RecordTurnCompleted(status string) {
	turnsCompleted.WithLabelValues(status).Inc()
}

// RecordMessageDropped records a silent drop
func (m *Metrics) RecordMessageDropped(reason string) {
	messagesDropped.WithLabelValues(reason).Inc()
}

// RecordGeneration records a generation backend call
func (m *Metrics) RecordGeneration(backend, status string, duration time.Duration) {
	generationDuration.WithLabelValues(backend, status).Observe(duration.Seconds())
	generationsTotal.WithLabelValues(backend, status).Inc()
}

// RecordDeflection records a deflected escalating turn
func (m *Metrics) RecordDeflection(reason string) {
	deflections.WithLabelValues(reason).Inc()
}

// RecordInitiation records a Luna-initiated thread
func (m *Metrics) RecordInitiation() {
	initiations.Inc()
}

// RecordClimax records a detected climax cycle
func (m *Metrics) RecordClimax() {
	climaxes.Inc()
}

// RecordPaywallShown records an emitted paywall message
func (m *Metrics) RecordPaywallShown() {
	paywallsShown.Inc()
}

// RecordConversionOffered records a soft conversion offer
func (m *Metrics) RecordConversionOffered() {
	conversionsOffered.Inc()
}

// RecordStorageOperation records a storage operation
func (m *Metrics) RecordStorageOperation(operation, status string, duration time.Duration) {
	storageOperations.WithLabelValues(operation, status).Inc()
	storageOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordExtractionJob records an async extraction job result
func (m *Metrics) RecordExtractionJob(status string) {
	extractionJobs.WithLabelValues(status).Inc()
}

// SetActiveUsers sets the number of active users
func (m *Metrics) SetActiveUsers(count float64) {
	activeUsers.Set(count)
}

// StartMetricsServer starts the metrics HTTP server
func StartMetricsServer(port int, path string) error {
	router := mux.NewRouter()
	router.Handle(path, promhttp.Handler())

	// Health check endpoint
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	addr := fmt.Sprintf(":%d", port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return server.ListenAndServe()
}
