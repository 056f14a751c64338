package services

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"log/slog"
	"time"

	pubnub "github.com/pubnub/go"

	"ticket-checkin/authority"
	"ticket-checkin/config"
	"ticket-checkin/models"
	"ticket-checkin/monitoring"
)

// SessionRegistry reports how many verification dialogs are open; the sync
// loop suspends its background cadence while any are.
type SessionRegistry interface {
	Active() int
}

// SyncService periodically pulls order and class lists for tracked events
// so every operator's dashboard converges without manual reload. Two
// cadences: the ticker runs while no verification dialog is open, and
// explicit kicks (after a completed check-in or order update) run
// regardless, since the mutation they follow has already finished.
type SyncService struct {
	authority *authority.Client
	cache     *ListCache
	registry  SessionRegistry
	pubnub    *pubnub.PubNub
	interval  time.Duration
	pageSize  int

	tracked chan trackOp
	kicks   chan string
}

type trackOp struct {
	eventID string
	remove  bool
}

func NewSyncService(client *authority.Client, cache *ListCache, registry SessionRegistry, pn *pubnub.PubNub, cfg *config.Config) *SyncService {
	return &SyncService{
		authority: client,
		cache:     cache,
		registry:  registry,
		pubnub:    pn,
		interval:  cfg.SyncInterval,
		pageSize:  cfg.SyncPageSize,
		tracked:   make(chan trackOp, 16),
		kicks:     make(chan string, 16),
	}
}

// SetRegistry wires the session registry after construction; the scan
// manager and this service reference each other, so one side is set late.
func (s *SyncService) SetRegistry(registry SessionRegistry) {
	s.registry = registry
}

// Cache exposes the list cache this scheduler owns.
func (s *SyncService) Cache() *ListCache {
	return s.cache
}

// Track starts syncing an event and pulls it immediately.
func (s *SyncService) Track(eventID string) {
	select {
	case s.tracked <- trackOp{eventID: eventID}:
	default:
	}
	s.Kick(eventID)
}

// Untrack stops syncing an event and drops its cached lists.
func (s *SyncService) Untrack(eventID string) {
	select {
	case s.tracked <- trackOp{eventID: eventID, remove: true}:
	default:
	}
	s.cache.Invalidate(eventID)
}

// Kick requests an immediate refresh of one event, bypassing the
// suspended-while-verifying rule: kicks follow completed mutations.
func (s *SyncService) Kick(eventID string) {
	select {
	case s.kicks <- eventID:
	default:
		// A refresh for this tick is already queued; dropping is fine.
	}
}

// Run drives the sync loop until the context is cancelled.
func (s *SyncService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	events := make(map[string]struct{})

	for {
		select {
		case <-ctx.Done():
			return
		case op := <-s.tracked:
			if op.remove {
				delete(events, op.eventID)
			} else {
				events[op.eventID] = struct{}{}
			}
		case eventID := <-s.kicks:
			s.pullEvent(ctx, eventID)
		case <-ticker.C:
			if s.registry != nil && s.registry.Active() > 0 {
				monitoring.TrackSyncPull("suspended")
				continue
			}
			for eventID := range events {
				s.pullEvent(ctx, eventID)
			}
		}
	}
}

func (s *SyncService) pullEvent(ctx context.Context, eventID string) {
	orders, err := s.pullOrders(ctx, eventID)
	if err != nil {
		s.failPull(eventID, err)
		return
	}
	classes, err := s.authority.ListTicketClasses(ctx, eventID, 1, s.pageSize)
	if err != nil {
		s.failPull(eventID, err)
		return
	}

	lists := &EventLists{Orders: orders, Classes: classes, PulledAt: time.Now()}
	hash := snapshotHash(orders, classes)

	if !s.cache.apply(eventID, lists, hash) {
		monitoring.TrackSyncPull("unchanged")
		return
	}
	monitoring.TrackSyncPull("applied")

	if s.pubnub != nil {
		s.pubnub.Publish().
			Channel("dashboard-" + eventID).
			Message(map[string]any{
				"type":     "dashboard_refresh",
				"event_id": eventID,
			}).
			Execute()
	}
}

// pullOrders walks the paginated order listing and aggregates it into one
// page so the cache holds the event's complete view.
func (s *SyncService) pullOrders(ctx context.Context, eventID string) (*models.OrderPage, error) {
	first, err := s.authority.ListOrders(ctx, eventID, 1, s.pageSize)
	if err != nil {
		return nil, err
	}
	combined := *first
	for page := 2; combined.Meta.HasNext; page++ {
		next, err := s.authority.ListOrders(ctx, eventID, page, s.pageSize)
		if err != nil {
			return nil, err
		}
		combined.Items = append(combined.Items, next.Items...)
		combined.Meta.HasNext = next.Meta.HasNext
	}
	combined.Meta.Page = 1
	combined.Meta.HasPrevious = false
	return &combined, nil
}

// failPull flips the connectivity indicator without touching cached data;
// whatever the dashboards currently show stays visible.
func (s *SyncService) failPull(eventID string, err error) {
	s.cache.markDisconnected()
	monitoring.TrackSyncPull("failed")
	slog.Warn("sync pull failed", "event_id", eventID, "error", err)
}

// snapshotHash is the structural comparison for pulled lists: any value
// change anywhere in either page changes the hash.
func snapshotHash(orders *models.OrderPage, classes *models.ClassPage) uint64 {
	h := fnv.New64a()
	enc := json.NewEncoder(h)
	_ = enc.Encode(orders)
	_ = enc.Encode(classes)
	return h.Sum64()
}
