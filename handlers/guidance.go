package handlers

import (
	"errors"

	"ticket-checkin/internal/status"
)

// guidance maps a typed error to the recovery text shown next to it in the
// verification dialog. Each camera failure mode gets distinct instructions;
// "already used" never comes through here because it is not an error.
func guidance(err error) string {
	switch {
	case errors.Is(err, status.ErrPermissionDenied):
		return "Camera permission was denied. Allow camera access for this terminal, or switch to manual entry."
	case errors.Is(err, status.ErrDeviceNotFound):
		return "No camera was detected on this terminal. Connect one, or switch to manual entry."
	case errors.Is(err, status.ErrUnsupported):
		return "Camera scanning is not available on this terminal. Use manual entry."
	case errors.Is(err, status.ErrDecodeEnded):
		return "Scanning stopped before a code was read. Try again or switch to manual entry."
	case errors.Is(err, status.ErrEmptyCode):
		return "Enter a ticket code."
	case errors.Is(err, status.ErrNoCodeInPayload):
		return "The scanned code is not a ticket. Scan the ticket QR or enter the code manually."
	case errors.Is(err, status.ErrTicketNotFound):
		return "Ticket not found. Check the code and re-enter it."
	case errors.Is(err, status.ErrCheckInPending):
		return "Another operator is verifying this ticket. Try again in a moment."
	case errors.Is(err, status.ErrUnreachable):
		return "The ticket service is unreachable. Check connectivity and retry."
	default:
		return ""
	}
}
