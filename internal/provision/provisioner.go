package provision

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-provisioner/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-provisioner/internal/report"
)

// Transport is the shared broker session used for a whole batch.
// *mqtt.Client satisfies it.
type Transport interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	Publish(topic string, payload []byte, qos byte, retained bool) error
	HealthCheck(ctx context.Context) error
	Close() error
}

// DialFunc opens the shared session. Implementations bound the connect.
type DialFunc func(ctx context.Context) (Transport, error)

// Sink receives each outcome as soon as it is decided.
type Sink interface {
	Append(ctx context.Context, o report.Outcome) error
}

// Logger is the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}

// Option configures a Provisioner.
type Option func(*Provisioner)

// WithLogger sets the logger.
func WithLogger(l Logger) Option {
	return func(p *Provisioner) {
		if l != nil {
			p.logger = l
		}
	}
}

// Provisioner runs a batch of provisioning requests strictly one at a time
// over one shared session.
type Provisioner struct {
	cfg    Config
	dial   DialFunc
	sink   Sink
	logger Logger
}

// New creates a Provisioner.
func New(cfg Config, dial DialFunc, sink Sink, opts ...Option) *Provisioner {
	p := &Provisioner{
		cfg:    cfg.withDefaults(),
		dial:   dial,
		sink:   sink,
		logger: nopLogger{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run provisions every request in order and returns the batch summary.
//
// A failure to connect or subscribe returns ErrTransportFatal before any
// device is attempted. Cancelling ctx stops the batch between devices: the
// device in flight is still decided and recorded, and Run returns the
// partial summary with ErrInterrupted.
func (p *Provisioner) Run(ctx context.Context, requests []DeviceRequest) (report.Summary, error) {
	var summary report.Summary

	transport, err := p.dial(ctx)
	if err != nil {
		return summary, fmt.Errorf("%w: connecting: %w", ErrTransportFatal, err)
	}
	defer func() {
		if cerr := transport.Close(); cerr != nil {
			p.logger.Warn("closing provisioning session", "error", cerr)
		}
	}()

	correlator := NewCorrelator(p.cfg.SuccessStatus, p.logger)
	if err := transport.Subscribe(p.cfg.ResponseTopic, p.cfg.QoS, correlator.HandleMessage); err != nil {
		return summary, fmt.Errorf("%w: subscribing to %s: %w", ErrTransportFatal, p.cfg.ResponseTopic, err)
	}
	defer func() {
		if uerr := transport.Unsubscribe(p.cfg.ResponseTopic); uerr != nil {
			p.logger.Debug("unsubscribing from responses", "topic", p.cfg.ResponseTopic, "error", uerr)
		}
	}()

	p.logger.Info("provisioning batch started",
		"devices", len(requests),
		"timeout", p.cfg.DeviceTimeout,
	)

	// Outcomes decided before an abort must still reach the sinks.
	recordCtx := context.WithoutCancel(ctx)

	for i, req := range requests {
		if err := ctx.Err(); err != nil {
			p.logger.Warn("provisioning batch interrupted",
				"completed", i,
				"devices", len(requests),
			)
			return summary, fmt.Errorf("%w after %d of %d devices: %w", ErrInterrupted, i, len(requests), err)
		}

		outcome := p.provisionOne(recordCtx, transport, correlator, req)
		if err := p.sink.Append(recordCtx, outcome); err != nil {
			if errors.Is(err, report.ErrInvalidOutcome) {
				return summary, err
			}
			p.logger.Warn("recording outcome", "device", req.Name, "error", err)
		}
		summary.Add(outcome)
		p.logProgress(i+1, len(requests), outcome)
	}

	p.logger.Info("provisioning batch finished",
		"total", summary.Total,
		"success", summary.Success,
		"error", summary.Error,
		"timeout", summary.Timeout,
	)
	return summary, nil
}

func (p *Provisioner) provisionOne(ctx context.Context, transport Transport, correlator *Correlator, req DeviceRequest) report.Outcome {
	payload, err := req.Payload()
	if err != nil {
		return report.Outcome{DeviceName: req.Name, Status: report.StatusError, ErrorMsg: err.Error()}
	}

	ticket, err := correlator.Arm(req.Name)
	if err != nil {
		return report.Outcome{DeviceName: req.Name, Status: report.StatusError, ErrorMsg: err.Error()}
	}

	// A dropped session shows up here rather than as a run of timeouts.
	if err := transport.HealthCheck(ctx); err != nil {
		p.logger.Warn("provisioning session not connected", "device", req.Name, "error", err)
	}

	if err := transport.Publish(p.cfg.RequestTopic, payload, p.cfg.QoS, false); err != nil {
		ticket.Abandon()
		return report.Outcome{
			DeviceName: req.Name,
			Status:     report.StatusError,
			ErrorMsg:   fmt.Sprintf("publish failed: %v", err),
		}
	}

	return ticket.Await(p.cfg.DeviceTimeout)
}

func (p *Provisioner) logProgress(done, total int, o report.Outcome) {
	args := []any{
		"device", o.DeviceName,
		"progress", fmt.Sprintf("%d/%d", done, total),
		"status", o.Status,
		"latency", o.Latency,
	}
	switch o.Status {
	case report.StatusSuccess:
		p.logger.Info("device provisioned", append(args, "token", o.TokenPreview())...)
	case report.StatusError:
		p.logger.Warn("device rejected", append(args, "error", o.ErrorMsg)...)
	default:
		p.logger.Warn("device timed out", args...)
	}
}
