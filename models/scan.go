package models

import "time"

type ScanMode string

const (
	ModeManual ScanMode = "manual"
	ModeCamera ScanMode = "camera"
)

// SessionState is the verification dialog state machine. Resolved states
// (valid, already_used, invalid, not_found, admitted) all render without
// error styling; only StateError represents a recoverable failure.
type SessionState string

const (
	StateAwaitingInput SessionState = "awaiting_input"
	StateLookingUp     SessionState = "looking_up"
	StateValid         SessionState = "valid"
	StateAlreadyUsed   SessionState = "already_used"
	StateInvalid       SessionState = "invalid"
	StateNotFound      SessionState = "not_found"
	StateCheckingIn    SessionState = "checking_in"
	StateAdmitted      SessionState = "admitted"
	StateError         SessionState = "error"
)

// SessionRecord is the audit row persisted when a scan session closes.
type SessionRecord struct {
	SessionID  string       `json:"session_id"`
	OperatorID string       `json:"operator_id"`
	EventID    string       `json:"event_id"`
	Mode       ScanMode     `json:"mode"`
	FinalState SessionState `json:"final_state"`
	TicketCode string       `json:"ticket_code"`
	OpenedAt   time.Time    `json:"opened_at"`
	ClosedAt   time.Time    `json:"closed_at"`
}
