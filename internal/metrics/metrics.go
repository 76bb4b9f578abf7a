package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ragline_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ragline_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	AsksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ragline_asks_total",
			Help: "Total number of ask requests by mode and outcome.",
		},
		[]string{"mode", "status"},
	)

	StreamChunksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ragline_stream_chunks_total",
			Help: "Total number of streamed content chunks emitted.",
		},
	)

	SummarizationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ragline_summarizations_total",
			Help: "Total number of history summarizations by result.",
		},
		[]string{"result"},
	)

	DocumentsIngestedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ragline_documents_ingested_total",
			Help: "Total number of documents ingested into the memory store.",
		},
	)

	MemoryEntriesSavedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ragline_memory_entries_saved_total",
			Help: "Total number of memory entries written, by source.",
		},
		[]string{"source"},
	)

	ModelSwitchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ragline_model_switches_total",
			Help: "Total number of model switch attempts by outcome.",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		AsksTotal,
		StreamChunksTotal,
		SummarizationsTotal,
		DocumentsIngestedTotal,
		MemoryEntriesSavedTotal,
		ModelSwitchesTotal,
	)
}
