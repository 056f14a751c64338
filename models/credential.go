package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TicketCredential is the redeemable admission record behind a ticket code.
// checked_in flips false to true exactly once; checked_in_at is stamped by
// the authority on the first successful admission and never cleared here.
type TicketCredential struct {
	TicketCode  string     `json:"ticket_code"`
	OrderID     string     `json:"order_id"`
	CheckedIn   bool       `json:"checked_in"`
	CheckedInAt *time.Time `json:"checked_in_at,omitempty"`
}

// VerificationSnapshot is the full read returned by a ticket code lookup.
type VerificationSnapshot struct {
	TicketCode  string          `json:"ticket_code"`
	EventID     string          `json:"event_id"`
	Status      string          `json:"status"`
	CheckedIn   bool            `json:"checked_in"`
	CheckedInAt *time.Time      `json:"checked_in_at,omitempty"`
	Quantity    int             `json:"quantity"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Currency    string          `json:"currency"`
	BuyerName   string          `json:"buyer_name"`
	BuyerPhone  string          `json:"buyer_phone"`
	BuyerEmail  string          `json:"buyer_email"`
	EventTitle  string          `json:"event_title"`
	EventDate   string          `json:"event_date"`
	EventTime   string          `json:"event_time"`
	EventLoc    string          `json:"event_location"`
	TicketClass string          `json:"ticket_class"`
}

// Admissible reports whether the snapshot allows a check-in attempt:
// status confirmed or approved, and not yet checked in.
func (s *VerificationSnapshot) Admissible() bool {
	if s.CheckedIn {
		return false
	}
	return s.Status == OrderConfirmed || s.Status == OrderApproved
}

// CheckInOutcome is the result of an admission attempt. AlreadyUsed is
// informational, not an error: the timestamp is the original one recorded
// by whichever operator admitted the bearer first.
type CheckInOutcome struct {
	TicketCode  string    `json:"ticket_code"`
	CheckedInAt time.Time `json:"checked_in_at"`
	AlreadyUsed bool      `json:"already_used"`
}
