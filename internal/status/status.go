package status

import "errors"

var (
	// Code acquisition.
	ErrEmptyCode        = errors.New("scan: empty ticket code")
	ErrNoCodeInPayload  = errors.New("scan: scanned payload contains no ticket code")
	ErrPermissionDenied = errors.New("camera: permission denied")
	ErrDeviceNotFound   = errors.New("camera: no capture device found")
	ErrUnsupported      = errors.New("camera: capture not supported on this terminal")
	ErrDecodeEnded      = errors.New("camera: stream ended before a code was decoded")

	// Lookup.
	ErrTicketNotFound = errors.New("lookup: ticket not found")
	ErrUnreachable    = errors.New("authority: unreachable")

	// Check-in.
	ErrNotAdmissible  = errors.New("checkin: ticket is not admissible")
	ErrCheckInPending = errors.New("checkin: another operator is completing this code")

	// Order lifecycle.
	ErrInvalidTransition = errors.New("order: invalid status transition")
	ErrAlreadyInState    = errors.New("order: already in requested or terminal state")
	ErrOrderNotFound     = errors.New("order: order not found")

	// Scan sessions.
	ErrSessionClosed   = errors.New("scan: session closed")
	ErrSessionNotFound = errors.New("scan: session not found")
	ErrInvalidState    = errors.New("scan: operation not valid in current session state")
)

// Retryable reports whether err is a transport-level failure the caller may
// retry without risking a duplicate side effect on the authority.
func Retryable(err error) bool {
	return errors.Is(err, ErrUnreachable) || errors.Is(err, ErrCheckInPending)
}
