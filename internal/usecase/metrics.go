package usecase

import (
	"sync"
	"time"
)

// MetricsSummary represents aggregated analysis insights for the process.
type MetricsSummary struct {
	TotalRequests              int64                     `json:"total_requests"`
	SuccessfulRequests         int64                     `json:"successful_requests"`
	FailedRequests             int64                     `json:"failed_requests"`
	SupersededRequests         int64                     `json:"superseded_requests"`
	SuccessRate                float64                   `json:"success_rate"`
	AverageProcessingLatencyMs float64                   `json:"average_processing_latency_ms"`
	Verdicts                   map[VerdictCategory]int64 `json:"verdicts"`
	FailureKinds               map[string]int64          `json:"failure_kinds"`
}

// Metrics accumulates analysis outcomes in memory. A nil *Metrics ignores records.
type Metrics struct {
	mu           sync.Mutex
	total        int64
	succeeded    int64
	failed       int64
	superseded   int64
	latencyTotal time.Duration
	verdicts     map[VerdictCategory]int64
	failures     map[string]int64
}

// NewMetrics constructs an empty accumulator.
func NewMetrics() *Metrics {
	return &Metrics{
		verdicts: make(map[VerdictCategory]int64),
		failures: make(map[string]int64),
	}
}

func (m *Metrics) recordSuccess(category VerdictCategory, latency time.Duration) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total++
	m.succeeded++
	m.latencyTotal += latency
	m.verdicts[category]++
}

func (m *Metrics) recordFailure(kind string, latency time.Duration) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total++
	m.failed++
	m.latencyTotal += latency
	m.failures[kind]++
}

func (m *Metrics) recordSuperseded() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.superseded++
}

// Summary aggregates the recorded outcomes. Superseded calls are not part of
// the success rate or the latency average.
func (m *Metrics) Summary() *MetricsSummary {
	summary := &MetricsSummary{
		Verdicts:     make(map[VerdictCategory]int64),
		FailureKinds: make(map[string]int64),
	}
	if m == nil {
		return summary
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	summary.TotalRequests = m.total
	summary.SuccessfulRequests = m.succeeded
	summary.FailedRequests = m.failed
	summary.SupersededRequests = m.superseded
	for k, v := range m.verdicts {
		summary.Verdicts[k] = v
	}
	for k, v := range m.failures {
		summary.FailureKinds[k] = v
	}
	if m.total > 0 {
		summary.SuccessRate = float64(m.succeeded) / float64(m.total)
		summary.AverageProcessingLatencyMs = float64(m.latencyTotal.Milliseconds()) / float64(m.total)
	}
	return summary
}
