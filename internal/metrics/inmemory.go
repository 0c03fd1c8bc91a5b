package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	ExchangesCompleted      uint64
	ExchangesRejected       map[string]uint64
	ProviderFailures        uint64
	ProviderDurationCount   uint64
	ProviderDurationTotalNs int64
	TokensDebited           int64
	BillingEventsProcessed  map[string]uint64
	BillingEventsIgnored    map[string]uint64
	UsageEventsPublished    map[string]uint64
	UsageEventsProcessed    map[string]uint64
	UsageQueueDepth         int64
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	exchangesCompleted      uint64
	providerFailures        uint64
	providerDurationCount   uint64
	providerDurationTotalNs int64
	tokensDebited           int64
	usageQueueDepth         int64

	mu                     sync.Mutex
	exchangesRejected      map[string]uint64
	billingEventsProcessed map[string]uint64
	billingEventsIgnored   map[string]uint64
	usageEventsPublished   map[string]uint64
	usageEventsProcessed   map[string]uint64
	usageBatchSizes        []int
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{
		exchangesRejected:      make(map[string]uint64),
		billingEventsProcessed: make(map[string]uint64),
		billingEventsIgnored:   make(map[string]uint64),
		usageEventsPublished:   make(map[string]uint64),
		usageEventsProcessed:   make(map[string]uint64),
	}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Snapshot{
		ExchangesCompleted:      atomic.LoadUint64(&m.exchangesCompleted),
		ExchangesRejected:       copyCounts(m.exchangesRejected),
		ProviderFailures:        atomic.LoadUint64(&m.providerFailures),
		ProviderDurationCount:   atomic.LoadUint64(&m.providerDurationCount),
		ProviderDurationTotalNs: atomic.LoadInt64(&m.providerDurationTotalNs),
		TokensDebited:           atomic.LoadInt64(&m.tokensDebited),
		BillingEventsProcessed:  copyCounts(m.billingEventsProcessed),
		BillingEventsIgnored:    copyCounts(m.billingEventsIgnored),
		UsageEventsPublished:    copyCounts(m.usageEventsPublished),
		UsageEventsProcessed:    copyCounts(m.usageEventsProcessed),
		UsageQueueDepth:         atomic.LoadInt64(&m.usageQueueDepth),
	}
}

// IncExchangeCompleted increments the completed exchange counter.
func (m *InMemoryRecorder) IncExchangeCompleted() {
	atomic.AddUint64(&m.exchangesCompleted, 1)
}

// IncExchangeRejected increments the rejection counter for a reason.
func (m *InMemoryRecorder) IncExchangeRejected(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exchangesRejected[reason]++
}

// IncProviderFailure increments the provider failure counter.
func (m *InMemoryRecorder) IncProviderFailure() {
	atomic.AddUint64(&m.providerFailures, 1)
}

// ObserveProviderDuration records a provider call duration.
func (m *InMemoryRecorder) ObserveProviderDuration(duration time.Duration) {
	atomic.AddUint64(&m.providerDurationCount, 1)
	atomic.AddInt64(&m.providerDurationTotalNs, duration.Nanoseconds())
}

// AddTokensDebited accumulates debited tokens.
func (m *InMemoryRecorder) AddTokensDebited(tokens int64) {
	atomic.AddInt64(&m.tokensDebited, tokens)
}

// IncBillingEventProcessed increments the processed counter for a kind.
func (m *InMemoryRecorder) IncBillingEventProcessed(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.billingEventsProcessed[kind]++
}

// IncBillingEventIgnored increments the ignored counter for a kind.
func (m *InMemoryRecorder) IncBillingEventIgnored(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.billingEventsIgnored[kind]++
}

// IncUsageEventPublished increments the published counter for a status.
func (m *InMemoryRecorder) IncUsageEventPublished(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usageEventsPublished[status]++
}

// IncUsageEventProcessed increments the processed counter for a status.
func (m *InMemoryRecorder) IncUsageEventProcessed(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usageEventsProcessed[status]++
}

// ObserveUsageBatchSize records a processed batch size.
func (m *InMemoryRecorder) ObserveUsageBatchSize(size int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usageBatchSizes = append(m.usageBatchSizes, size)
}

// SetUsageQueueDepth records the current stream depth.
func (m *InMemoryRecorder) SetUsageQueueDepth(depth int64) {
	atomic.StoreInt64(&m.usageQueueDepth, depth)
}

func copyCounts(in map[string]uint64) map[string]uint64 {
	out := make(map[string]uint64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
