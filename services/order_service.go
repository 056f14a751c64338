package services

import (
	"context"
	"errors"
	"fmt"

	"ticket-checkin/authority"
	"ticket-checkin/internal/status"
	"ticket-checkin/models"
	"ticket-checkin/monitoring"
)

// OrderService drives the approve/reject lifecycle on pending orders, a
// separate lifecycle from admission. No optimistic flip: the cached view
// only changes through the next applied pull, and conflicting concurrent
// edits are reconciled the same way. Inventory accounting stays upstream.
type OrderService struct {
	authority *authority.Client
	cache     *ListCache
	sync      *SyncService
}

func NewOrderService(client *authority.Client, cache *ListCache, syncService *SyncService) *OrderService {
	return &OrderService{
		authority: client,
		cache:     cache,
		sync:      syncService,
	}
}

// Approve moves a pending order to approved.
func (s *OrderService) Approve(ctx context.Context, orderID string) (*models.TicketOrder, error) {
	return s.setStatus(ctx, orderID, models.OrderApproved)
}

// Reject moves a pending order to rejected.
func (s *OrderService) Reject(ctx context.Context, orderID string) (*models.TicketOrder, error) {
	return s.setStatus(ctx, orderID, models.OrderRejected)
}

func (s *OrderService) setStatus(ctx context.Context, orderID, desired string) (*models.TicketOrder, error) {
	// Status edges are monotonic, so a cached terminal state is still
	// terminal on the authority; answer the conflict without a round trip.
	// A cached pending order proves nothing and goes to the authority.
	if cached, ok := s.cache.FindOrder(orderID); ok && models.Terminal(cached.Status) {
		monitoring.TrackOrderTransition(desired, "conflict")
		if cached.Status == desired {
			return nil, fmt.Errorf("%w: order is already %s", status.ErrAlreadyInState, cached.Status)
		}
		return nil, fmt.Errorf("%w: order is %s, cannot become %s", status.ErrInvalidTransition, cached.Status, desired)
	}

	updated, err := s.authority.UpdateOrderStatus(ctx, orderID, desired)
	if err != nil {
		switch {
		case errors.Is(err, status.ErrAlreadyInState), errors.Is(err, status.ErrInvalidTransition):
			monitoring.TrackOrderTransition(desired, "conflict")
		default:
			monitoring.TrackOrderTransition(desired, "failed")
		}
		return nil, err
	}
	monitoring.TrackOrderTransition(desired, "ok")

	if s.sync != nil && updated.EventID != "" {
		s.cache.Invalidate(updated.EventID)
		s.sync.Kick(updated.EventID)
	}
	return updated, nil
}
