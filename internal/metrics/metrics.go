package metrics

import (
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Captures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "apex_captures_total",
		Help: "Tweets captured, by source tag",
	}, []string{"source"})
	ParseMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "apex_parse_misses_total",
		Help: "Payloads that matched no known tweet shape",
	})
	BufferInserts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "apex_buffer_inserts_total",
		Help: "New records persisted to the local buffer",
	})
	BufferDuplicates = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "apex_buffer_duplicates_total",
		Help: "Captures skipped because the tweet id was already buffered",
	})
	PollCycles = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "apex_poll_cycles_total",
		Help: "Miner poll cycles, by outcome",
	}, []string{"result"})
	SyncBatches = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "apex_sync_batches_total",
		Help: "Successful remote upsert batches",
	})
	SyncErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "apex_sync_errors_total",
		Help: "Failed remote upsert batches",
	})
	SyncDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "apex_sync_duration_seconds",
		Help:    "Remote upsert batch duration seconds",
		Buckets: prometheus.DefBuckets,
	})
	PollDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "apex_poll_duration_seconds",
		Help:    "Miner poll cycle duration seconds",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(Captures, ParseMisses, BufferInserts, BufferDuplicates,
		PollCycles, SyncBatches, SyncErrors, SyncDuration, PollDuration)
}

// StartServer starts a metrics HTTP server on addr (e.g., ":9090").
func StartServer(addr string) {
	if addr == "" {
		addr = os.Getenv("METRICS_ADDR")
	}
	if addr == "" {
		return
	}
	http.Handle("/metrics", promhttp.Handler())
	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	go func() { _ = http.ListenAndServe(addr, nil) }()
}

// ObserveSyncDuration records a sync batch duration.
func ObserveSyncDuration(start time.Time) {
	SyncDuration.Observe(time.Since(start).Seconds())
}

// ObservePollDuration records a poll cycle duration.
func ObservePollDuration(start time.Time) {
	PollDuration.Observe(time.Since(start).Seconds())
}
