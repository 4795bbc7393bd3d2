// Package metrics 定义 Prometheus 指标并提供记录函数。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	classificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querybot_classifications_total",
			Help: "Questions classified, by kind and whether the fallback policy was used.",
		},
		[]string{"kind", "fallback"},
	)
	guardDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querybot_guard_decisions_total",
			Help: "SQL guard decisions by rule (allowed for accepted statements).",
		},
		[]string{"rule"},
	)
	queryDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "querybot_query_duration_seconds",
			Help:    "Wall-clock execution time of validated SQL statements.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)
	ingestedDocumentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querybot_ingested_documents_total",
			Help: "Documents processed by the ingestion pipeline, by outcome.",
		},
		[]string{"status"},
	)
	indexRebuildSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "querybot_index_rebuild_seconds",
			Help:    "Duration of full vector index rebuilds.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)
	routerResponsesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querybot_router_responses_total",
			Help: "Router outcomes by path and result.",
		},
		[]string{"path", "result"},
	)
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querybot_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		classificationsTotal,
		guardDecisionsTotal,
		queryDurationSeconds,
		ingestedDocumentsTotal,
		indexRebuildSeconds,
		routerResponsesTotal,
		httpRequestsTotal,
	)
}

// Handler 返回 /metrics 的 HTTP 处理器。
func Handler() http.Handler {
	return promhttp.Handler()
}

func ObserveClassification(kind string, fallback bool) {
	classificationsTotal.WithLabelValues(kind, strconv.FormatBool(fallback)).Inc()
}

func ObserveGuardDecision(rule string) {
	guardDecisionsTotal.WithLabelValues(rule).Inc()
}

func ObserveQuery(d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	queryDurationSeconds.WithLabelValues(status).Observe(d.Seconds())
}

func ObserveIngestion(status string) {
	ingestedDocumentsTotal.WithLabelValues(status).Inc()
}

func ObserveIndexRebuild(d time.Duration) {
	indexRebuildSeconds.Observe(d.Seconds())
}

func ObserveRouterResponse(path, result string) {
	routerResponsesTotal.WithLabelValues(path, result).Inc()
}

func ObserveHTTPRequest(method, path string, status int) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
}
