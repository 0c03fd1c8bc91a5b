package handler

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/tokenledger/tokenledger/internal/metrics"
)

// MetricsHandler exposes in-memory metrics.
type MetricsHandler struct {
	snapshotter metrics.Snapshotter
}

// NewMetricsHandler creates a new MetricsHandler.
func NewMetricsHandler(snapshotter metrics.Snapshotter) *MetricsHandler {
	return &MetricsHandler{snapshotter: snapshotter}
}

// Metrics returns metrics in Prometheus exposition format.
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.snapshotter == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	snap := h.snapshotter.Snapshot()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	writeMetric(w, "tokenledger_exchanges_completed_total %d\n", snap.ExchangesCompleted)
	writeLabeledCounts(w, "tokenledger_exchanges_rejected_total", "reason", snap.ExchangesRejected)

	writeMetric(w, "tokenledger_provider_failures_total %d\n", snap.ProviderFailures)
	writeMetric(w, "tokenledger_provider_duration_seconds_count %d\n", snap.ProviderDurationCount)
	writeMetric(w, "tokenledger_provider_duration_seconds_sum %.6f\n", float64(snap.ProviderDurationTotalNs)/1e9)

	writeMetric(w, "tokenledger_tokens_debited_total %d\n", snap.TokensDebited)

	writeLabeledCounts(w, "tokenledger_billing_events_processed_total", "kind", snap.BillingEventsProcessed)
	writeLabeledCounts(w, "tokenledger_billing_events_ignored_total", "kind", snap.BillingEventsIgnored)

	writeLabeledCounts(w, "tokenledger_usage_events_published_total", "status", snap.UsageEventsPublished)
	writeLabeledCounts(w, "tokenledger_usage_events_processed_total", "status", snap.UsageEventsProcessed)
	writeMetric(w, "tokenledger_usage_queue_depth %d\n", snap.UsageQueueDepth)
}

func writeMetric(w http.ResponseWriter, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}

// writeLabeledCounts emits one sample per label value in stable order.
func writeLabeledCounts(w http.ResponseWriter, name, label string, counts map[string]uint64) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeMetric(w, "%s{%s=%q} %d\n", name, label, k, counts[k])
	}
}
