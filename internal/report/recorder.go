package report

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Logger is the logging interface used by the Recorder.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Warn(msg string, args ...any)
}

// Recorder owns the report of a running batch.
//
// It appends rows in processing order, forwards each row to the sinks,
// and writes the CSV file either after every change or only on Close.
// Rows are kept in memory even when a sink or the file write fails, so
// the final Close still persists everything recorded.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Recorder struct {
	mu           sync.Mutex
	report       *Report
	path         string
	flushEachRow bool
	sinks        []Sink
	logger       Logger
	closed       bool
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithSinks adds sinks that receive every recorded row.
func WithSinks(sinks ...Sink) RecorderOption {
	return func(r *Recorder) {
		r.sinks = append(r.sinks, sinks...)
	}
}

// WithFlushEachRow rewrites the report file after every change.
func WithFlushEachRow(enabled bool) RecorderOption {
	return func(r *Recorder) {
		r.flushEachRow = enabled
	}
}

// WithLogger sets the logger for sink and persistence warnings.
func WithLogger(l Logger) RecorderOption {
	return func(r *Recorder) {
		r.logger = l
	}
}

// NewRecorder returns a Recorder writing to path. base seeds the report
// (the previous provisioning rows for an activation run); nil starts empty.
func NewRecorder(path string, base *Report, opts ...RecorderOption) *Recorder {
	if base == nil {
		base = New()
	}
	r := &Recorder{
		report: base,
		path:   path,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Append records a new row.
//
// An invalid outcome is rejected. Otherwise the row is always kept; the
// returned error reports only a failed progressive file write.
func (r *Recorder) Append(ctx context.Context, o Outcome) error {
	if err := o.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.report.Append(o)
	r.forward(ctx, o)
	return r.persistProgress()
}

// MarkActivated sets the activated column of row index and forwards the
// updated row to the sinks. No other column changes.
func (r *Recorder) MarkActivated(ctx context.Context, index int, activated bool) (Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, err := r.report.setActivation(index, ActivationOf(activated))
	if err != nil {
		return Outcome{}, err
	}
	r.forward(ctx, o)
	return o, r.persistProgress()
}

// Rows returns a copy of the recorded rows.
func (r *Recorder) Rows() []Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.report.Rows()
}

// Summary counts the recorded rows.
func (r *Recorder) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.report.Summary()
}

// Path returns the report file path.
func (r *Recorder) Path() string {
	return r.path
}

// Close writes the report file and flushes every sink. It is safe to call
// more than once; later calls are no-ops.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error
	if err := Save(r.path, r.report.Rows()); err != nil {
		errs = append(errs, err)
	}
	for _, s := range r.sinks {
		if err := s.Flush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flushing sink: %w", err))
		}
	}
	return errors.Join(errs...)
}

// forward hands o to every sink. Callers hold r.mu.
func (r *Recorder) forward(ctx context.Context, o Outcome) {
	for _, s := range r.sinks {
		if err := s.Append(ctx, o); err != nil {
			r.warn("report sink append failed", "device", o.DeviceName, "error", err)
		}
	}
}

// persistProgress rewrites the file when progressive flushing is on.
// Callers hold r.mu.
func (r *Recorder) persistProgress() error {
	if !r.flushEachRow {
		return nil
	}
	if err := Save(r.path, r.report.Rows()); err != nil {
		r.warn("progressive report write failed", "path", r.path, "error", err)
		return err
	}
	return nil
}

func (r *Recorder) warn(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Warn(msg, args...)
	}
}
