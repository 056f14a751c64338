package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    string
		to      string
		allowed bool
	}{
		{"pending to approved", OrderPending, OrderApproved, true},
		{"pending to rejected", OrderPending, OrderRejected, true},
		{"rejected to approved", OrderRejected, OrderApproved, false},
		{"approved to rejected", OrderApproved, OrderRejected, false},
		{"approved to approved", OrderApproved, OrderApproved, false},
		{"cancelled to approved", OrderCancelled, OrderApproved, false},
		{"pending to cancelled", OrderPending, OrderCancelled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, CanTransition(tt.from, tt.to))
		})
	}
}

func TestTerminal(t *testing.T) {
	assert.False(t, Terminal(OrderPending))
	assert.True(t, Terminal(OrderApproved))
	assert.True(t, Terminal(OrderRejected))
	assert.True(t, Terminal(OrderCancelled))
}

func TestAdmissible(t *testing.T) {
	snap := &VerificationSnapshot{Status: OrderConfirmed}
	assert.True(t, snap.Admissible())

	snap.Status = OrderApproved
	assert.True(t, snap.Admissible())

	snap.Status = OrderPending
	assert.False(t, snap.Admissible())

	snap.Status = OrderConfirmed
	snap.CheckedIn = true
	assert.False(t, snap.Admissible())
}
