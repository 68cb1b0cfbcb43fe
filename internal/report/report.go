package report

import "fmt"

// Report is the ordered set of outcomes for one batch.
//
// Report is not safe for concurrent use; a Recorder serialises access
// while a batch is running.
type Report struct {
	rows []Outcome
}

// New returns a report holding rows in the given order.
func New(rows ...Outcome) *Report {
	r := &Report{rows: make([]Outcome, 0, len(rows))}
	r.rows = append(r.rows, rows...)
	return r
}

// Append adds an outcome at the end and returns its index.
func (r *Report) Append(o Outcome) int {
	r.rows = append(r.rows, o)
	return len(r.rows) - 1
}

// Len returns the number of rows.
func (r *Report) Len() int {
	return len(r.rows)
}

// Row returns the row at index i.
func (r *Report) Row(i int) (Outcome, bool) {
	if i < 0 || i >= len(r.rows) {
		return Outcome{}, false
	}
	return r.rows[i], true
}

// Rows returns a copy of all rows in order.
func (r *Report) Rows() []Outcome {
	out := make([]Outcome, len(r.rows))
	copy(out, r.rows)
	return out
}

// Summary counts the rows.
func (r *Report) Summary() Summary {
	return Summarize(r.rows)
}

// setActivation changes only the activated column of row i.
func (r *Report) setActivation(i int, a Activation) (Outcome, error) {
	if i < 0 || i >= len(r.rows) {
		return Outcome{}, fmt.Errorf("%w: index %d of %d", ErrRowNotFound, i, len(r.rows))
	}
	r.rows[i].Activated = a
	return r.rows[i], nil
}
