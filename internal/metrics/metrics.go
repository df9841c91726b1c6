// Package metrics provides metrics collection for the API detection engine.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Collector collects and aggregates pipeline metrics.
type Collector struct {
	// Capture
	exchangesCaptured atomic.Int64
	captureBytes      atomic.Int64

	// Filter
	candidatesKept    atomic.Int64
	assetsDiscarded   atomic.Int64
	duplicatesMerged  atomic.Int64

	// Score
	batchesSent     atomic.Int64
	batchesFailed   atomic.Int64
	endpointsScored atomic.Int64

	// Match
	endpointsMatched atomic.Int64
	endpointsDropped atomic.Int64

	// Minimize
	replaysTotal   atomic.Int64
	replayRetries  atomic.Int64
	headersDropped atomic.Int64
	headersKept    atomic.Int64

	errorsTotal atomic.Int64

	// Error breakdown
	errorCounts map[string]*atomic.Int64
	errorMu     sync.RWMutex

	startTime time.Time
}

// New creates a new metrics collector.
func New() *Collector {
	return &Collector{
		errorCounts: make(map[string]*atomic.Int64),
		startTime:   time.Now(),
	}
}

// RecordExchange records a captured network exchange.
func (c *Collector) RecordExchange(bytes int64) {
	c.exchangesCaptured.Add(1)
	c.captureBytes.Add(bytes)
}

// RecordCandidate records a kept filter candidate.
func (c *Collector) RecordCandidate() {
	c.candidatesKept.Add(1)
}

// RecordAssetDiscarded records a static asset discarded during filtering.
func (c *Collector) RecordAssetDiscarded() {
	c.assetsDiscarded.Add(1)
}

// RecordDuplicateMerged records a deduplicated exchange.
func (c *Collector) RecordDuplicateMerged() {
	c.duplicatesMerged.Add(1)
}

// RecordBatch records a judgment batch by outcome.
func (c *Collector) RecordBatch(ok bool) {
	c.batchesSent.Add(1)
	if !ok {
		c.batchesFailed.Add(1)
	}
}

// RecordScored records scored endpoints returned by the judgment service.
func (c *Collector) RecordScored(n int) {
	c.endpointsScored.Add(int64(n))
}

// RecordMatch records a matched endpoint.
func (c *Collector) RecordMatch() {
	c.endpointsMatched.Add(1)
}

// RecordUnmatched records a scored endpoint with no raw exchange.
func (c *Collector) RecordUnmatched() {
	c.endpointsDropped.Add(1)
}

// RecordReplay records a minimizer replay request.
func (c *Collector) RecordReplay() {
	c.replaysTotal.Add(1)
}

// RecordReplayRetry records a retried replay.
func (c *Collector) RecordReplayRetry() {
	c.replayRetries.Add(1)
}

// RecordHeaderDecision records the verdict on one tested header.
func (c *Collector) RecordHeaderDecision(kept bool) {
	if kept {
		c.headersKept.Add(1)
	} else {
		c.headersDropped.Add(1)
	}
}

// RecordError records an error by category.
func (c *Collector) RecordError(errorType string) {
	c.errorsTotal.Add(1)

	c.errorMu.Lock()
	if c.errorCounts[errorType] == nil {
		c.errorCounts[errorType] = &atomic.Int64{}
	}
	c.errorCounts[errorType].Add(1)
	c.errorMu.Unlock()
}

// Snapshot is a point-in-time view of the collected metrics.
type Snapshot struct {
	ExchangesCaptured int64            `json:"exchanges_captured"`
	CaptureBytes      int64            `json:"capture_bytes"`
	CandidatesKept    int64            `json:"candidates_kept"`
	AssetsDiscarded   int64            `json:"assets_discarded"`
	DuplicatesMerged  int64            `json:"duplicates_merged"`
	BatchesSent       int64            `json:"batches_sent"`
	BatchesFailed     int64            `json:"batches_failed"`
	EndpointsScored   int64            `json:"endpoints_scored"`
	EndpointsMatched  int64            `json:"endpoints_matched"`
	EndpointsDropped  int64            `json:"endpoints_dropped"`
	ReplaysTotal      int64            `json:"replays_total"`
	ReplayRetries     int64            `json:"replay_retries"`
	HeadersDropped    int64            `json:"headers_dropped"`
	HeadersKept       int64            `json:"headers_kept"`
	ErrorsTotal       int64            `json:"errors_total"`
	ErrorBreakdown    map[string]int64 `json:"error_breakdown,omitempty"`
	Elapsed           time.Duration    `json:"elapsed"`
}

// Snapshot returns the current metric values.
func (c *Collector) Snapshot() Snapshot {
	s := Snapshot{
		ExchangesCaptured: c.exchangesCaptured.Load(),
		CaptureBytes:      c.captureBytes.Load(),
		CandidatesKept:    c.candidatesKept.Load(),
		AssetsDiscarded:   c.assetsDiscarded.Load(),
		DuplicatesMerged:  c.duplicatesMerged.Load(),
		BatchesSent:       c.batchesSent.Load(),
		BatchesFailed:     c.batchesFailed.Load(),
		EndpointsScored:   c.endpointsScored.Load(),
		EndpointsMatched:  c.endpointsMatched.Load(),
		EndpointsDropped:  c.endpointsDropped.Load(),
		ReplaysTotal:      c.replaysTotal.Load(),
		ReplayRetries:     c.replayRetries.Load(),
		HeadersDropped:    c.headersDropped.Load(),
		HeadersKept:       c.headersKept.Load(),
		ErrorsTotal:       c.errorsTotal.Load(),
		Elapsed:           time.Since(c.startTime),
	}

	c.errorMu.RLock()
	if len(c.errorCounts) > 0 {
		s.ErrorBreakdown = make(map[string]int64, len(c.errorCounts))
		for k, v := range c.errorCounts {
			s.ErrorBreakdown[k] = v.Load()
		}
	}
	c.errorMu.RUnlock()

	return s
}
