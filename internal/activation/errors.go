package activation

import "errors"

// ErrInterrupted is returned when the run is cancelled before every row
// was dispatched. Rows already decided keep their result.
var ErrInterrupted = errors.New("activation: run interrupted")
