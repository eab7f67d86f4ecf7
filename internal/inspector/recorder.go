// Package inspector records the values a backtest logs and persists them
// through pluggable sinks selected by SaveData format.
package inspector

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/anthias-labs/arena/internal/domain"
)

// Sink persists a finished run. Target is the SaveData target, possibly empty.
type Sink interface {
	Save(ctx context.Context, run domain.RunRecord, target string) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, run domain.RunRecord, target string) error

func (f SinkFunc) Save(ctx context.Context, run domain.RunRecord, target string) error {
	return f(ctx, run, target)
}

// Recorder is an in-memory inspector over float64 values. Records are keyed
// by step and kept in step order; a step that was never logged has no record.
// Live publishers see every record as it is logged. It is safe for concurrent
// use.
type Recorder struct {
	runID      string
	sinks      map[string]Sink
	publishers []domain.StepPublisher
	now        func() time.Time
	logger     *slog.Logger

	mu      sync.RWMutex
	records []domain.StepRecord
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithRunID sets the id records are saved and published under. The default
// is a fresh UUID.
func WithRunID(id string) Option {
	return func(r *Recorder) { r.runID = id }
}

// WithSink registers s for the given SaveData format, replacing any sink
// already registered for it.
func WithSink(format string, s Sink) Option {
	return func(r *Recorder) { r.sinks[format] = s }
}

// WithPublisher streams every logged record to p.
func WithPublisher(p domain.StepPublisher) Option {
	return func(r *Recorder) { r.publishers = append(r.publishers, p) }
}

func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Recorder) { r.logger = l }
}

// NewRecorder returns a Recorder with the file sinks (csv, json, sqlite)
// registered.
func NewRecorder(opts ...Option) *Recorder {
	r := &Recorder{
		runID: uuid.NewString(),
		sinks: map[string]Sink{
			domain.SaveCSV:    CSVSink{},
			domain.SaveJSON:   JSONSink{},
			domain.SaveSQLite: SQLiteSink{},
		},
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	r.logger = r.logger.With(slog.String("component", "inspector"))
	return r
}

// RunID is the id records are saved under.
func (r *Recorder) RunID() string { return r.runID }

// Formats lists the SaveData formats this recorder can save to.
func (r *Recorder) Formats() []string {
	out := make([]string, 0, len(r.sinks))
	for f := range r.sinks {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Inspect returns the value logged at step.
func (r *Recorder) Inspect(step int) (float64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.find(step)
	if !ok {
		return 0, false
	}
	return r.records[i].Value, true
}

// find returns the index of step's record, or where it would be inserted.
// Callers hold r.mu.
func (r *Recorder) find(step int) (int, bool) {
	i := sort.Search(len(r.records), func(i int) bool { return r.records[i].Step >= step })
	return i, i < len(r.records) && r.records[i].Step == step
}

// Log records v as the step after the last one logged and publishes it.
func (r *Recorder) Log(ctx context.Context, v float64) error {
	r.mu.Lock()
	step := 0
	if n := len(r.records); n > 0 {
		step = r.records[n-1].Step + 1
	}
	r.mu.Unlock()
	return r.LogStep(ctx, step, v)
}

// LogStep records v for step, replacing any value already logged there, and
// publishes it.
func (r *Recorder) LogStep(ctx context.Context, step int, v float64) error {
	if step < 0 {
		return fmt.Errorf("inspector: log: negative step %d", step)
	}
	rec := domain.StepRecord{Step: step, Value: v, LoggedAt: r.now().UTC()}
	r.mu.Lock()
	if i, ok := r.find(step); ok {
		r.records[i] = rec
	} else {
		r.records = slices.Insert(r.records, i, rec)
	}
	r.mu.Unlock()

	for _, p := range r.publishers {
		if err := p.Publish(ctx, r.runID, rec); err != nil {
			return fmt.Errorf("inspector: publish step %d: %w", rec.Step, err)
		}
	}
	return nil
}

// Records returns a copy of everything logged so far.
func (r *Recorder) Records() []domain.StepRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.StepRecord(nil), r.records...)
}

// Save hands the run to the sink registered for sel.Format. A nil selector
// keeps the records in memory only.
func (r *Recorder) Save(ctx context.Context, sel *domain.SaveData) error {
	if sel == nil {
		r.logger.Debug("no save target, keeping records in memory")
		return nil
	}
	sink, ok := r.sinks[sel.Format]
	if !ok {
		return fmt.Errorf("inspector: save: no sink for format %q", sel.Format)
	}

	run := domain.RunRecord{
		RunID:   r.runID,
		Steps:   r.Records(),
		SavedAt: r.now().UTC(),
	}
	if err := sink.Save(ctx, run, sel.Target); err != nil {
		return fmt.Errorf("inspector: save %s: %w", sel, err)
	}
	r.logger.Info("run saved",
		slog.String("run_id", r.runID),
		slog.String("save_data", sel.String()),
		slog.Int("steps", len(run.Steps)),
	)
	return nil
}
