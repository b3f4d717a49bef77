package infra

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/hyperledger/fabric-protos-go/peer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/atomic"
)

var (
	Metric = NewMetricInstance()
)

type MetricInstance struct {
	Valid        *atomic.Int64
	Abort        *atomic.Int64
	Failed       *atomic.Int64
	lastProgress *atomic.Int64

	registry       *prometheus.Registry
	stageTotal     *prometheus.CounterVec
	commitTotal    *prometheus.CounterVec
	commitDuration prometheus.Histogram
}

func NewMetricInstance() *MetricInstance {
	m := &MetricInstance{
		Valid:        atomic.NewInt64(0),
		Abort:        atomic.NewInt64(0),
		Failed:       atomic.NewInt64(0),
		lastProgress: atomic.NewInt64(time.Now().UnixNano()),
		registry:     prometheus.NewRegistry(),
		stageTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fabgw_stage_total",
			Help: "Transactions that passed (status=ok) or failed a pipeline stage.",
		}, []string{"stage", "status"}),
		commitTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fabgw_commits_total",
			Help: "Committed transactions by validation code.",
		}, []string{"code"}),
		commitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fabgw_commit_latency_seconds",
			Help:    "Time from endorsement request to observed commit.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
	}

	m.registry.MustRegister(m.stageTotal, m.commitTotal, m.commitDuration)
	return m
}

func (m *MetricInstance) progress() {
	m.lastProgress.Store(time.Now().UnixNano())
}

func (m *MetricInstance) AddValid() {
	m.Valid.Inc()
	m.commitTotal.WithLabelValues(peer.TxValidationCode_VALID.String()).Inc()
	m.progress()
	checkObserverEnd()
}

// AddAbort counts a transaction that committed with a validation code other than VALID
func (m *MetricInstance) AddAbort(code peer.TxValidationCode) {
	m.Abort.Inc()
	m.commitTotal.WithLabelValues(code.String()).Inc()
	m.progress()
	checkObserverEnd()
}

// AddFailure counts a transaction that never reached the ledger because stage failed
func (m *MetricInstance) AddFailure(stage string) {
	m.Failed.Inc()
	m.stageTotal.WithLabelValues(stage, "failed").Inc()
	m.progress()
	checkObserverEnd()
}

func (m *MetricInstance) AddStage(stage string) {
	m.stageTotal.WithLabelValues(stage, "ok").Inc()
}

func (m *MetricInstance) ObserveCommitLatency(d time.Duration) {
	m.commitDuration.Observe(d.Seconds())
}

// Finished is the number of transactions that will not make further progress
func (m *MetricInstance) Finished() int64 {
	return m.Valid.Load() + m.Abort.Load() + m.Failed.Load()
}

func (m *MetricInstance) LastProgress() time.Time {
	return time.Unix(0, m.lastProgress.Load())
}

// NewMetricsRouter serves the metrics and a liveness probe
func NewMetricsRouter(m *MetricInstance) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})).Methods("GET")
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")
	return r
}

// ServeMetrics serves NewMetricsRouter on addr until ctx is cancelled
func ServeMetrics(ctx context.Context, addr string, m *MetricInstance) {
	server := &http.Server{
		Addr:              addr,
		Handler:           NewMetricsRouter(m),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	logger.Infof("Serving metrics on %s", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Errorf("Metrics server failed: %v", err)
	}
}
