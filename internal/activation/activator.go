package activation

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-provisioner/internal/report"
)

// Result is the outcome of activating one row.
type Result string

// Activation results.
const (
	ResultActivated Result = "ACTIVATED"
	ResultSkipped   Result = "SKIPPED"
	ResultFailed    Result = "FAILED"
)

// Session is a broker session authenticated as one device.
// *mqtt.Client satisfies it.
type Session interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Close() error
}

// SessionDialer opens a session for the device owning token.
type SessionDialer func(ctx context.Context, token string) (Session, error)

// Sink records the activation result for a row. *report.Recorder
// satisfies it.
type Sink interface {
	MarkActivated(ctx context.Context, index int, activated bool) (report.Outcome, error)
}

// Logger is the logging interface used by this package.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Info(string, ...any) {}
func (nopLogger) Warn(string, ...any) {}

// Summary counts activation results.
type Summary struct {
	Total     int
	Activated int
	Skipped   int
	Failed    int
}

// telemetry is the message a device publishes to announce itself.
type telemetry struct {
	Status   string `json:"status"`
	Firmware string `json:"firmware"`
}

// Option configures an Activator.
type Option func(*Activator)

// WithLogger sets the logger.
func WithLogger(l Logger) Option {
	return func(a *Activator) {
		if l != nil {
			a.logger = l
		}
	}
}

// Activator publishes one telemetry message per provisioned device.
type Activator struct {
	cfg    Config
	dial   SessionDialer
	sink   Sink
	logger Logger

	activated *atomic.Int64
	skipped   *atomic.Int64
	failed    *atomic.Int64
}

// New creates an Activator.
func New(cfg Config, dial SessionDialer, sink Sink, opts ...Option) *Activator {
	a := &Activator{
		cfg:       cfg.withDefaults(),
		dial:      dial,
		sink:      sink,
		logger:    nopLogger{},
		activated: atomic.NewInt64(0),
		skipped:   atomic.NewInt64(0),
		failed:    atomic.NewInt64(0),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run activates rows and records each result against its index.
//
// Cancelling ctx stops dispatching further rows; sessions already in
// flight complete and are recorded. Run then returns the partial summary
// with ErrInterrupted.
func (a *Activator) Run(ctx context.Context, rows []report.Outcome) (Summary, error) {
	a.activated.Store(0)
	a.skipped.Store(0)
	a.failed.Store(0)

	payload, err := json.Marshal(telemetry{Status: "online", Firmware: a.cfg.FirmwareVersion})
	if err != nil {
		return Summary{}, fmt.Errorf("encoding telemetry: %w", err)
	}

	a.logger.Info("activation started",
		"rows", len(rows),
		"workers", a.cfg.Workers,
	)

	// In-flight sessions and their results outlive an abort.
	workCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(a.cfg.Workers)

	dispatched := atomic.NewInt64(0)
	for i, row := range rows {
		if ctx.Err() != nil {
			break
		}
		i, row := i, row
		g.Go(func() error {
			// A worker slot may free up only after the abort.
			if ctx.Err() != nil {
				return nil
			}
			dispatched.Inc()
			result, cause := a.activate(workCtx, row, payload)
			a.record(workCtx, i, row, result, cause)
			return nil
		})
	}
	_ = g.Wait()

	summary := Summary{
		Total:     int(a.activated.Load() + a.skipped.Load() + a.failed.Load()),
		Activated: int(a.activated.Load()),
		Skipped:   int(a.skipped.Load()),
		Failed:    int(a.failed.Load()),
	}

	if err := ctx.Err(); err != nil && summary.Total < len(rows) {
		a.logger.Warn("activation interrupted",
			"dispatched", dispatched.Load(),
			"rows", len(rows),
		)
		return summary, fmt.Errorf("%w after %d of %d rows: %w", ErrInterrupted, dispatched.Load(), len(rows), err)
	}

	a.logger.Info("activation finished",
		"activated", summary.Activated,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
	)
	return summary, nil
}

// activate decides the result for one row. The session is always closed.
func (a *Activator) activate(ctx context.Context, row report.Outcome, payload []byte) (Result, error) {
	if !row.Activatable() {
		return ResultSkipped, nil
	}

	session, err := a.dial(ctx, row.Token)
	if err != nil {
		return ResultFailed, fmt.Errorf("connecting: %w", err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			a.logger.Warn("closing device session", "device", row.DeviceName, "error", cerr)
		}
	}()

	if err := session.Publish(a.cfg.TelemetryTopic, payload, a.cfg.QoS, false); err != nil {
		return ResultFailed, fmt.Errorf("publishing telemetry: %w", err)
	}
	return ResultActivated, nil
}

func (a *Activator) record(ctx context.Context, index int, row report.Outcome, result Result, cause error) {
	switch result {
	case ResultActivated:
		a.activated.Inc()
		a.logger.Info("device activated", "device", row.DeviceName, "token", row.TokenPreview())
	case ResultSkipped:
		a.skipped.Inc()
		a.logger.Info("device skipped", "device", row.DeviceName, "status", row.Status)
	default:
		a.failed.Inc()
		a.logger.Warn("device activation failed", "device", row.DeviceName, "error", cause)
	}

	if _, err := a.sink.MarkActivated(ctx, index, result == ResultActivated); err != nil {
		a.logger.Warn("recording activation",
			"device", row.DeviceName,
			"index", index,
			"error", err,
		)
	}
}
