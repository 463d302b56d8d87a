package nanolog

import (
	"errors"
	"fmt"

	"github.com/Jacke/NanoLog/internal/stackerr"
	"github.com/Jacke/NanoLog/output"
	"github.com/Jacke/NanoLog/staging"
)

// Sentinel error kinds. ErrReservationTooLarge and ErrAllocation alias the
// sentinels their owning packages define; ErrIoOpen is minted here since
// only the lifecycle layer knows about file paths.
var (
	ErrReservationTooLarge = staging.ErrReservationTooLarge
	ErrAllocation          = output.ErrAllocation

	// ErrIoOpen reports a failed or disallowed open of the output file,
	// either during Init (fatal) or SetLogFile (recoverable, existing
	// file and compression thread remain intact).
	ErrIoOpen = errors.New("nanolog: cannot open output file")
)

// fatal wraps err with a captured stack trace for the handful of errors
// that are unrecoverable at initialization.
func fatal(err error) error {
	return stackerr.New(err)
}

func wrapIoOpen(path string, cause error) error {
	return fmt.Errorf("%w %q: %v", ErrIoOpen, path, cause)
}
