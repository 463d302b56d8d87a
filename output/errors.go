package output

import "errors"

// ErrAllocation is returned when the aligned output buffers could not be
// allocated. Fatal at initialization.
var ErrAllocation = errors.New("output: could not allocate aligned buffer")
