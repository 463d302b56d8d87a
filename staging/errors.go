package staging

import "errors"

// ErrReservationTooLarge is returned by Reserve/TryReserve when the caller
// asked for at least as many bytes as the buffer could ever hold. It is
// fatal to the calling reservation; a well-configured system should never
// trigger it.
var ErrReservationTooLarge = errors.New("staging: reservation size exceeds buffer capacity")
