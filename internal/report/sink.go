package report

import (
	"context"
)

// Sink receives every recorded row in processing order.
//
// During activation the rows passed to Append are the updated provisioning
// rows with the activated column filled in.
type Sink interface {
	// Append records one row. It is called once per device.
	Append(ctx context.Context, o Outcome) error

	// Flush persists anything buffered. It is called once at batch end.
	Flush(ctx context.Context) error
}

// PointWriter is the subset of the InfluxDB client used by MetricsSink.
type PointWriter interface {
	WritePoint(measurement string, tags map[string]string, fields map[string]interface{})
	Flush()
}

// measurementOutcome is the InfluxDB measurement written per device.
const measurementOutcome = "provision_outcome"

// MetricsSink writes one point per recorded device.
//
// Tags are kept low-cardinality (phase, status, activated); the device
// name is a field.
type MetricsSink struct {
	writer PointWriter
	phase  Phase
}

// NewMetricsSink returns a sink that tags points with phase.
func NewMetricsSink(w PointWriter, phase Phase) *MetricsSink {
	return &MetricsSink{writer: w, phase: phase}
}

// Append writes the outcome point. Writes are asynchronous and never fail here.
func (m *MetricsSink) Append(_ context.Context, o Outcome) error {
	tags := map[string]string{
		"phase":  string(m.phase),
		"status": string(o.Status),
	}
	if o.Activated != ActivationUnknown {
		tags["activated"] = string(o.Activated)
	}

	fields := map[string]interface{}{
		"device_name": o.DeviceName,
		"latency_ms":  o.Latency.Milliseconds(),
		"success":     boolToInt(o.Status == StatusSuccess),
	}

	m.writer.WritePoint(measurementOutcome, tags, fields)
	return nil
}

// Flush pushes buffered points to the server.
func (m *MetricsSink) Flush(_ context.Context) error {
	m.writer.Flush()
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
