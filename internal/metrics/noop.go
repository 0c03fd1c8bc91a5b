package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// IncExchangeCompleted is a no-op.
func (n *NoopRecorder) IncExchangeCompleted() {}

// IncExchangeRejected is a no-op.
func (n *NoopRecorder) IncExchangeRejected(reason string) {}

// IncProviderFailure is a no-op.
func (n *NoopRecorder) IncProviderFailure() {}

// ObserveProviderDuration is a no-op.
func (n *NoopRecorder) ObserveProviderDuration(duration time.Duration) {}

// AddTokensDebited is a no-op.
func (n *NoopRecorder) AddTokensDebited(tokens int64) {}

// IncBillingEventProcessed is a no-op.
func (n *NoopRecorder) IncBillingEventProcessed(kind string) {}

// IncBillingEventIgnored is a no-op.
func (n *NoopRecorder) IncBillingEventIgnored(kind string) {}

// IncUsageEventPublished is a no-op.
func (n *NoopRecorder) IncUsageEventPublished(status string) {}

// IncUsageEventProcessed is a no-op.
func (n *NoopRecorder) IncUsageEventProcessed(status string) {}

// ObserveUsageBatchSize is a no-op.
func (n *NoopRecorder) ObserveUsageBatchSize(size int) {}

// SetUsageQueueDepth is a no-op.
func (n *NoopRecorder) SetUsageQueueDepth(depth int64) {}
