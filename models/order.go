package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order statuses as reported by the verification authority.
const (
	OrderPending   = "pending"
	OrderApproved  = "approved"
	OrderConfirmed = "confirmed"
	OrderRejected  = "rejected"
	OrderCancelled = "cancelled"
)

type TicketOrder struct {
	ID          string          `json:"id"`
	EventID     string          `json:"event_id"`
	BuyerName   string          `json:"buyer_name"`
	BuyerPhone  string          `json:"buyer_phone"`
	BuyerEmail  string          `json:"buyer_email"`
	TicketClass string          `json:"ticket_class"`
	Quantity    int             `json:"quantity"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Currency    string          `json:"currency"`
	Status      string          `json:"status"` // pending, approved, rejected, cancelled
	CreatedAt   time.Time       `json:"created_at"`
}

// allowedTransitions is the only source of truth for order status edges.
// Terminal states have no outgoing edges: re-approving a rejected order
// (and vice versa) is deliberately not permitted.
var allowedTransitions = map[string][]string{
	OrderPending: {OrderApproved, OrderRejected},
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to string) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether a status has no outgoing edges.
func Terminal(status string) bool {
	return len(allowedTransitions[status]) == 0
}
