// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Exchange metrics
	IncExchangeCompleted()
	IncExchangeRejected(reason string) // reason: "quota", "not_found", "invalid"
	IncProviderFailure()
	ObserveProviderDuration(duration time.Duration)
	AddTokensDebited(tokens int64)

	// Billing reconciler metrics
	IncBillingEventProcessed(kind string)
	IncBillingEventIgnored(kind string)

	// Usage pipeline metrics
	IncUsageEventPublished(status string) // status: "success" or "dropped"
	IncUsageEventProcessed(status string) // status: "success", "failed", "skipped"
	ObserveUsageBatchSize(size int)
	SetUsageQueueDepth(depth int64)
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
