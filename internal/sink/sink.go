// Package sink provides destinations for published metrics. Every sink is
// safe for concurrent Emit calls from collectors running in parallel.
package sink

import (
	"encoding/json"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/Guliveer/vitalis/metricd/internal/metric"
)

// Writer encodes each metric as one JSON line on an io.Writer.
type Writer struct {
	mu     sync.Mutex
	enc    *json.Encoder
	logger *zap.Logger
}

// NewWriter creates a JSON-lines sink writing to w. Encoding failures are
// logged, never returned to the publishing collector.
func NewWriter(w io.Writer, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{enc: json.NewEncoder(w), logger: logger}
}

// Emit writes m as a single line.
func (s *Writer) Emit(m metric.Metric) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(m); err != nil {
		s.logger.Warn("Failed to write metric",
			zap.String("metric", m.Name()),
			zap.Error(err))
	}
}

// Recorder keeps every emitted metric in memory.
type Recorder struct {
	mu      sync.Mutex
	metrics []metric.Metric
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Emit appends m.
func (r *Recorder) Emit(m metric.Metric) {
	r.mu.Lock()
	r.metrics = append(r.metrics, m)
	r.mu.Unlock()
}

// Metrics returns a copy of the recorded metrics in emission order.
func (r *Recorder) Metrics() []metric.Metric {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]metric.Metric, len(r.metrics))
	copy(out, r.metrics)
	return out
}

// Len returns the number of recorded metrics.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.metrics)
}

// Reset drops everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.metrics = nil
	r.mu.Unlock()
}
