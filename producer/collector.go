package producer

import (
	"sync"

	"github.com/c360/omprogbridge/metric"
)

// Collector gathers the results of one submission. It is created immediately before the
// records are sent and sealed once the submission is reconciled; results delivered after
// Seal are dropped and counted so they never reach the next submission's collector.
type Collector struct {
	mu      sync.Mutex
	results []Result
	sealed  bool
	late    int
	metrics *metric.Metrics
}

// NewCollector creates an empty collector. metrics may be nil.
func NewCollector(metrics *metric.Metrics) *Collector {
	return &Collector{metrics: metrics}
}

// Add records a result in arrival order. It reports false when the collector is sealed.
func (c *Collector) Add(r Result) bool {
	c.mu.Lock()
	if c.sealed {
		c.late++
		c.mu.Unlock()
		c.metrics.RecordLateResults(1)
		return false
	}
	c.results = append(c.results, r)
	c.mu.Unlock()
	return true
}

// Done returns a callback suitable for Producer.SendAsync.
func (c *Collector) Done() func(Result) {
	return func(r Result) { c.Add(r) }
}

// Len returns the number of results collected so far.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.results)
}

// Results returns a copy of the collected results in arrival order.
func (c *Collector) Results() []Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Result, len(c.results))
	copy(out, c.results)
	return out
}

// FirstFailure returns the earliest-arriving failed result.
func (c *Collector) FirstFailure() (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.results {
		if !r.OK() {
			return r, true
		}
	}
	return Result{}, false
}

// Seal stops the collector from accepting results. Sealing twice is a no-op.
func (c *Collector) Seal() {
	c.mu.Lock()
	c.sealed = true
	c.mu.Unlock()
}

// Sealed reports whether Seal has been called.
func (c *Collector) Sealed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sealed
}

// Late returns how many results arrived after Seal.
func (c *Collector) Late() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.late
}
