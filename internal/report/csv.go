package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Column names of the persisted report, in file order.
const (
	ColumnDeviceName = "deviceName"
	ColumnStatus     = "status"
	ColumnToken      = "token"
	ColumnActivated  = "activated"
	ColumnErrorMsg   = "errorMsg"
)

// Header is the fixed header row of the persisted report.
var Header = []string{ColumnDeviceName, ColumnStatus, ColumnToken, ColumnActivated, ColumnErrorMsg}

const (
	// filePermissions is the mode of a written report. Tokens are secrets.
	filePermissions = 0600

	// dirPermissions is the mode of a created report directory.
	dirPermissions = 0750
)

// Write encodes rows as CSV with the fixed header.
func Write(w io.Writer, rows []Outcome) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for _, o := range rows {
		record := []string{o.DeviceName, string(o.Status), o.Token, string(o.Activated), o.ErrorMsg}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("writing row %s: %w", o.DeviceName, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flushing csv: %w", err)
	}
	return nil
}

// Read decodes a CSV report.
//
// Columns are located by header name, so reports written by older tools
// without the activated column are accepted. deviceName and status are
// required; the other columns default to empty.
func Read(r io.Reader) ([]Outcome, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: missing header row", ErrInvalidReport)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading header: %w", ErrInvalidReport, err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[trimBOM(name, i)] = i
	}
	for _, required := range []string{ColumnDeviceName, ColumnStatus} {
		if _, ok := columns[required]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrInvalidReport, required)
		}
	}

	field := func(record []string, name string) string {
		i, ok := columns[name]
		if !ok || i >= len(record) {
			return ""
		}
		return record[i]
	}

	var rows []Outcome
	for line := 2; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrInvalidReport, line, err)
		}

		status, err := ParseStatus(field(record, ColumnStatus))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		activated, err := ParseActivation(field(record, ColumnActivated))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		o := Outcome{
			DeviceName: field(record, ColumnDeviceName),
			Status:     status,
			Token:      field(record, ColumnToken),
			Activated:  activated,
			ErrorMsg:   field(record, ColumnErrorMsg),
		}
		if err := o.Validate(); err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrInvalidReport, line, err)
		}
		rows = append(rows, o)
	}

	return rows, nil
}

// trimBOM strips a UTF-8 byte order mark from the first header cell.
func trimBOM(name string, index int) string {
	if index == 0 {
		return strings.TrimPrefix(name, "\ufeff")
	}
	return name
}

// Save writes rows to path atomically: the data goes to a temporary file
// in the same directory, is synced, and then renamed over path. A crash
// leaves either the previous file or the new one, never a torn file.
func Save(path string, rows []Outcome) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return fmt.Errorf("%w: creating report directory: %w", ErrPersistFailed, err)
	}

	tmp, err := os.CreateTemp(dir, ".report-*.csv.tmp")
	if err != nil {
		return fmt.Errorf("%w: creating temp file: %w", ErrPersistFailed, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()        //nolint:errcheck // Best effort cleanup on error path
			os.Remove(tmpName) //nolint:errcheck // Best effort cleanup on error path
		}
	}()

	if err := Write(tmp, rows); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistFailed, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("%w: syncing temp file: %w", ErrPersistFailed, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: closing temp file: %w", ErrPersistFailed, err)
	}
	if err := os.Chmod(tmpName, filePermissions); err != nil {
		return fmt.Errorf("%w: setting permissions: %w", ErrPersistFailed, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("%w: replacing report: %w", ErrPersistFailed, err)
	}
	committed = true

	return nil
}

// Load reads the report at path.
func Load(path string) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening report: %w", err)
	}
	defer f.Close()

	rows, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return New(rows...), nil
}
