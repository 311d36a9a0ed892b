package executable

import "sync/atomic"

// Metrics counts what the engine did on behalf of one client. A nil *Metrics
// is valid and counts nothing.
type Metrics struct {
	executions      int64
	attempts        int64
	retries         int64
	failovers       int64
	connectFailures int64
	failures        int64
}

// MetricsSnapshot ...
type MetricsSnapshot struct {
	Executions      int64 `json:"executions"`
	Attempts        int64 `json:"attempts"`
	Retries         int64 `json:"retries"`
	Failovers       int64 `json:"failovers"`
	ConnectFailures int64 `json:"connect_failures"`
	Failures        int64 `json:"failures"`
}

// add increments the counter picked by field. The field is resolved only
// once m is known to be non-nil.
func (m *Metrics) add(field func(*Metrics) *int64) {
	if m != nil {
		atomic.AddInt64(field(m), 1)
	}
}

func executions(m *Metrics) *int64      { return &m.executions }
func attempts(m *Metrics) *int64        { return &m.attempts }
func retries(m *Metrics) *int64         { return &m.retries }
func failovers(m *Metrics) *int64       { return &m.failovers }
func connectFailures(m *Metrics) *int64 { return &m.connectFailures }
func failures(m *Metrics) *int64        { return &m.failures }

func (m *Metrics) observe(o outcomeKind) {
	switch o {
	case outcomeRetry, outcomeTransient:
		m.add(retries)
	case outcomeServerError, outcomeRetryNextNode:
		m.add(failovers)
	case outcomeChannelFailure:
		m.add(connectFailures)
	}
}

// Snapshot ...
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	return MetricsSnapshot{
		Executions:      atomic.LoadInt64(&m.executions),
		Attempts:        atomic.LoadInt64(&m.attempts),
		Retries:         atomic.LoadInt64(&m.retries),
		Failovers:       atomic.LoadInt64(&m.failovers),
		ConnectFailures: atomic.LoadInt64(&m.connectFailures),
		Failures:        atomic.LoadInt64(&m.failures),
	}
}
