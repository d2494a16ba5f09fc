// Package telemetry emits per operation results of the engine to a
// reporting sink and wraps operations in OpenTelemetry spans.
package telemetry

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// OperationResult is what the engine reports for every operation
type OperationResult struct {
	Operation string        `json:"operation"`
	SessionID string        `json:"session_id,omitempty"`
	ActorID   string        `json:"actor_id,omitempty"`
	SkillID   string        `json:"skill_id,omitempty"`
	Round     int           `json:"round,omitempty"`
	Success   bool          `json:"success"`
	ErrorCode string        `json:"error_code,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	Message   string        `json:"message,omitempty"`
	Duration  time.Duration `json:"duration"`
	At        time.Time     `json:"at"`
}

// Sink receives operation results. Implementations must not block.
type Sink interface {
	Record(ctx context.Context, result OperationResult)
}

// LogSink writes results as structured log lines
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a log sink; a nil logger uses slog.Default
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Record logs the result
func (l *LogSink) Record(ctx context.Context, r OperationResult) {
	attrs := []any{
		"operation", r.Operation,
		"session_id", r.SessionID,
		"success", r.Success,
		"duration_ms", r.Duration.Milliseconds(),
	}
	if r.ActorID != "" {
		attrs = append(attrs, "actor_id", r.ActorID)
	}
	if r.SkillID != "" {
		attrs = append(attrs, "skill_id", r.SkillID)
	}
	if r.Success {
		l.logger.InfoContext(ctx, "Operation completed", attrs...)
		return
	}
	attrs = append(attrs, "error_code", r.ErrorCode, "reason", r.Reason, "message", r.Message)
	l.logger.WarnContext(ctx, "Operation failed", attrs...)
}

// Summary counts results of one operation
type Summary struct {
	Operation string        `json:"operation"`
	Total     int           `json:"total"`
	Failed    int           `json:"failed"`
	Slowest   time.Duration `json:"slowest"`
}

// Recorder keeps results in memory, for reports and tests
type Recorder struct {
	mu      sync.Mutex
	results []OperationResult
}

// NewRecorder creates an empty recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Record stores the result
func (r *Recorder) Record(_ context.Context, result OperationResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
}

// Results returns a copy of everything recorded
func (r *Recorder) Results() []OperationResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]OperationResult(nil), r.results...)
}

// Summaries aggregates per operation, sorted by operation name
func (r *Recorder) Summaries() []Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	byOp := make(map[string]*Summary)
	for _, res := range r.results {
		sum, ok := byOp[res.Operation]
		if !ok {
			sum = &Summary{Operation: res.Operation}
			byOp[res.Operation] = sum
		}
		sum.Total++
		if !res.Success {
			sum.Failed++
		}
		sum.Slowest = max(sum.Slowest, res.Duration)
	}

	out := make([]Summary, 0, len(byOp))
	for _, sum := range byOp {
		out = append(out, *sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Operation < out[j].Operation })
	return out
}

type multi []Sink

// Multi fans results out to several sinks
func Multi(sinks ...Sink) Sink {
	var m multi
	for _, s := range sinks {
		if s != nil {
			m = append(m, s)
		}
	}
	return m
}

func (m multi) Record(ctx context.Context, r OperationResult) {
	for _, s := range m {
		s.Record(ctx, r)
	}
}

// Discard drops every result
var Discard Sink = discard{}

type discard struct{}

func (discard) Record(context.Context, OperationResult) {}
