package report

import (
	"fmt"
	"strings"
	"time"
)

// Status is the terminal state of one device's provisioning attempt.
type Status string

// Provisioning statuses.
const (
	StatusSuccess Status = "SUCCESS"
	StatusError   Status = "ERROR"
	StatusTimeout Status = "TIMEOUT"
	StatusSkipped Status = "SKIPPED"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusSuccess, StatusError, StatusTimeout, StatusSkipped:
		return true
	}
	return false
}

// ParseStatus converts a persisted status value. Only the exact upper-case
// names are accepted, so a rewritten report carries the cell unchanged.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidReport, s)
	}
	return st, nil
}

// Activation is the persisted value of the activated column.
type Activation string

// Activation column values. ActivationUnknown means the activation phase
// has not run for the row.
const (
	ActivationUnknown Activation = ""
	ActivationTrue    Activation = "True"
	ActivationFalse   Activation = "False"
)

// ActivationOf converts a boolean activation result.
func ActivationOf(ok bool) Activation {
	if ok {
		return ActivationTrue
	}
	return ActivationFalse
}

// ParseActivation converts a persisted activated value.
// Matching is case-insensitive.
func ParseActivation(s string) (Activation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return ActivationUnknown, nil
	case "true":
		return ActivationTrue, nil
	case "false":
		return ActivationFalse, nil
	}
	return "", fmt.Errorf("%w: unknown activated value %q", ErrInvalidReport, s)
}

// Phase identifies which part of the workflow produced a row.
type Phase string

// Workflow phases.
const (
	PhaseProvision  Phase = "provision"
	PhaseActivation Phase = "activation"
)

// Outcome is the recorded result for one device.
//
// Token is set only for StatusSuccess and ErrorMsg only for StatusError.
// Latency is kept in memory and forwarded to sinks; it is not part of
// the CSV file.
type Outcome struct {
	DeviceName string
	Status     Status
	Token      string
	ErrorMsg   string
	Activated  Activation
	Latency    time.Duration
}

// Validate checks the fields every recorded outcome must carry.
func (o Outcome) Validate() error {
	if strings.TrimSpace(o.DeviceName) == "" {
		return fmt.Errorf("%w: empty device name", ErrInvalidOutcome)
	}
	if !o.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q for %s", ErrInvalidOutcome, o.Status, o.DeviceName)
	}
	return nil
}

// Activatable reports whether the row can be used by the activation phase.
func (o Outcome) Activatable() bool {
	return o.Status == StatusSuccess && strings.TrimSpace(o.Token) != ""
}

// TokenPreview returns a shortened token safe for log output.
func (o Outcome) TokenPreview() string {
	const keep = 6
	if len(o.Token) <= keep {
		return strings.Repeat("*", len(o.Token))
	}
	return o.Token[:keep] + "..."
}

// Summary counts outcomes by status and activation result.
type Summary struct {
	Total        int
	Success      int
	Error        int
	Timeout      int
	Skipped      int
	Activated    int
	NotActivated int
}

// Add counts one outcome.
func (s *Summary) Add(o Outcome) {
	s.Total++
	switch o.Status {
	case StatusSuccess:
		s.Success++
	case StatusError:
		s.Error++
	case StatusTimeout:
		s.Timeout++
	case StatusSkipped:
		s.Skipped++
	}
	switch o.Activated {
	case ActivationTrue:
		s.Activated++
	case ActivationFalse:
		s.NotActivated++
	}
}

// Summarize counts a slice of outcomes.
func Summarize(rows []Outcome) Summary {
	var s Summary
	for _, o := range rows {
		s.Add(o)
	}
	return s
}
