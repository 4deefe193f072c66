// Package monitoring records what each pipeline stage did: how long it took
// and how many rows went in and came out.
package monitoring

import (
	"log/slog"
	"sync"
	"time"
)

// StageMetrics describes one executed stage.
type StageMetrics struct {
	Stage    string        `json:"stage" yaml:"stage"`
	Duration time.Duration `json:"duration" yaml:"duration"`
	RowsIn   int           `json:"rows_in" yaml:"rows_in"`
	RowsOut  int           `json:"rows_out" yaml:"rows_out"`
	Err      string        `json:"error,omitempty" yaml:"error,omitempty"`
}

// RowsDropped is the number of rows the stage removed; negative when the
// stage produced more rows than it consumed (a join with duplicated keys).
func (m StageMetrics) RowsDropped() int {
	return m.RowsIn - m.RowsOut
}

// Collector accumulates stage metrics in execution order. It is safe for
// concurrent use; stages that run in parallel are recorded in completion
// order.
type Collector struct {
	mu      sync.Mutex
	metrics []StageMetrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewCollector creates a collector that also logs every stage at debug
// level. A nil logger disables logging.
func NewCollector(logger *slog.Logger) *Collector {
	return &Collector{logger: logger, now: time.Now}
}

// Record runs fn as the named stage. fn reports the rows it produced; the
// stage is recorded whether or not fn fails.
func (c *Collector) Record(stage string, rowsIn int, fn func() (int, error)) error {
	start := c.now()
	rowsOut, err := fn()
	m := StageMetrics{
		Stage:    stage,
		Duration: c.now().Sub(start),
		RowsIn:   rowsIn,
		RowsOut:  rowsOut,
	}
	if err != nil {
		m.Err = err.Error()
	}

	c.mu.Lock()
	c.metrics = append(c.metrics, m)
	c.mu.Unlock()

	if c.logger != nil {
		c.logger.Debug("stage finished",
			slog.String("stage", stage),
			slog.Duration("duration", m.Duration),
			slog.Int("rows_in", rowsIn),
			slog.Int("rows_out", rowsOut),
			slog.Bool("failed", err != nil))
	}
	return err
}

// Metrics returns a copy of the recorded stages.
func (c *Collector) Metrics() []StageMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]StageMetrics, len(c.metrics))
	copy(out, c.metrics)
	return out
}

// Reset forgets all recorded stages.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = c.metrics[:0]
}

// Summary totals the recorded stages.
func (c *Collector) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Summary{Stages: len(c.metrics)}
	for _, m := range c.metrics {
		s.TotalDuration += m.Duration
		s.RowsDropped += max(m.RowsDropped(), 0)
		if m.Err != "" {
			s.Failed++
		}
	}
	return s
}

// Summary provides aggregate statistics over a run.
type Summary struct {
	Stages        int           `json:"stages" yaml:"stages"`
	Failed        int           `json:"failed" yaml:"failed"`
	TotalDuration time.Duration `json:"total_duration" yaml:"total_duration"`
	RowsDropped   int           `json:"rows_dropped" yaml:"rows_dropped"`
}
