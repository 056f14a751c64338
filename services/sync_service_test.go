package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticket-checkin/authority"
	"ticket-checkin/config"
	"ticket-checkin/models"
)

// fakeAuthority serves paginated order and class listings with mutable data.
type fakeAuthority struct {
	mu      sync.Mutex
	orders  []models.TicketOrder
	perPage int
	failing bool
	pulls   atomic.Int32
}

func (f *fakeAuthority) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/events/{eventId}/orders", func(w http.ResponseWriter, r *http.Request) {
		f.pulls.Add(1)
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.failing {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		if page < 1 {
			page = 1
		}
		start := (page - 1) * f.perPage
		end := start + f.perPage
		if start > len(f.orders) {
			start = len(f.orders)
		}
		if end > len(f.orders) {
			end = len(f.orders)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(models.OrderPage{
			Items: f.orders[start:end],
			Meta: models.PageMeta{
				Page:    page,
				PerPage: f.perPage,
				HasNext: end < len(f.orders),
			},
		})
	})
	mux.HandleFunc("GET /api/events/{eventId}/ticket-classes", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.failing {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(models.ClassPage{
			Items: []models.TicketClass{{ID: "cls1", EventID: "evt1", Name: "Standard"}},
		})
	})
	return mux
}

func (f *fakeAuthority) setOrders(orders ...models.TicketOrder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = orders
}

func (f *fakeAuthority) setFailing(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing = v
}

type fakeRegistry struct {
	active atomic.Int32
}

func (r *fakeRegistry) Active() int { return int(r.active.Load()) }

func newSyncFixture(t *testing.T, fake *fakeAuthority, interval time.Duration) *SyncService {
	t.Helper()
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	client := authority.NewClient(authority.ClientConfig{BaseURL: srv.URL, Timeout: 2 * time.Second})
	cfg := &config.Config{SyncInterval: interval, SyncPageSize: fake.perPage}
	return NewSyncService(client, NewListCache(), nil, nil, cfg)
}

func TestPullEventAppliesAndAggregatesPages(t *testing.T) {
	fake := &fakeAuthority{perPage: 2}
	fake.setOrders(
		models.TicketOrder{ID: "ord1", EventID: "evt1", Status: models.OrderPending},
		models.TicketOrder{ID: "ord2", EventID: "evt1", Status: models.OrderApproved},
		models.TicketOrder{ID: "ord3", EventID: "evt1", Status: models.OrderPending},
	)
	svc := newSyncFixture(t, fake, time.Hour)

	svc.pullEvent(context.Background(), "evt1")

	lists := svc.Cache().Get("evt1")
	require.NotNil(t, lists)
	assert.Len(t, lists.Orders.Items, 3, "all pages aggregated into one view")
	assert.False(t, lists.Orders.Meta.HasNext)
	assert.Len(t, lists.Classes.Items, 1)
	assert.True(t, svc.Cache().Connected())
}

func TestPullEventUnchangedSnapshotNotReapplied(t *testing.T) {
	fake := &fakeAuthority{perPage: 50}
	fake.setOrders(models.TicketOrder{ID: "ord1", EventID: "evt1", Status: models.OrderPending})
	svc := newSyncFixture(t, fake, time.Hour)

	svc.pullEvent(context.Background(), "evt1")
	first := svc.Cache().Get("evt1")
	require.NotNil(t, first)

	svc.pullEvent(context.Background(), "evt1")
	assert.Equal(t, first.PulledAt, svc.Cache().Get("evt1").PulledAt, "identical snapshot must not replace the applied one")

	// A value change anywhere produces a new applied snapshot.
	fake.setOrders(models.TicketOrder{ID: "ord1", EventID: "evt1", Status: models.OrderApproved})
	svc.pullEvent(context.Background(), "evt1")
	second := svc.Cache().Get("evt1")
	assert.Equal(t, models.OrderApproved, second.Orders.Items[0].Status)
	assert.NotEqual(t, first.PulledAt, second.PulledAt)
}

func TestPullFailureKeepsCachedData(t *testing.T) {
	fake := &fakeAuthority{perPage: 50}
	fake.setOrders(models.TicketOrder{ID: "ord1", EventID: "evt1", Status: models.OrderPending})
	svc := newSyncFixture(t, fake, time.Hour)

	svc.pullEvent(context.Background(), "evt1")
	require.True(t, svc.Cache().Connected())

	fake.setFailing(true)
	svc.pullEvent(context.Background(), "evt1")

	// Stale view stays visible; only the connectivity indicator flips.
	assert.False(t, svc.Cache().Connected())
	lists := svc.Cache().Get("evt1")
	require.NotNil(t, lists)
	assert.Len(t, lists.Orders.Items, 1)

	fake.setFailing(false)
	svc.pullEvent(context.Background(), "evt1")
	assert.True(t, svc.Cache().Connected())
}

func TestRunSuspendsWhileSessionsActive(t *testing.T) {
	fake := &fakeAuthority{perPage: 50}
	fake.setOrders(models.TicketOrder{ID: "ord1", EventID: "evt1", Status: models.OrderPending})
	svc := newSyncFixture(t, fake, 10*time.Millisecond)

	registry := &fakeRegistry{}
	registry.active.Store(1)
	svc.SetRegistry(registry)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Run(ctx)

	svc.Track("evt1")

	// Kicks bypass suspension: Track's immediate pull lands even with a
	// verification dialog open.
	require.Eventually(t, func() bool {
		return fake.pulls.Load() >= 1
	}, time.Second, 5*time.Millisecond)

	// The background cadence stays quiet while the dialog is open.
	settled := fake.pulls.Load()
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, settled, fake.pulls.Load(), "ticker pulls must be suspended")

	// Dialog closes; the cadence resumes.
	registry.active.Store(0)
	require.Eventually(t, func() bool {
		return fake.pulls.Load() > settled
	}, time.Second, 5*time.Millisecond)
}

func TestUntrackDropsCachedLists(t *testing.T) {
	fake := &fakeAuthority{perPage: 50}
	fake.setOrders(models.TicketOrder{ID: "ord1", EventID: "evt1", Status: models.OrderPending})
	svc := newSyncFixture(t, fake, time.Hour)

	svc.pullEvent(context.Background(), "evt1")
	require.NotNil(t, svc.Cache().Get("evt1"))

	svc.Untrack("evt1")
	assert.Nil(t, svc.Cache().Get("evt1"))
}
