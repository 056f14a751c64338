package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticket-checkin/authority"
	"ticket-checkin/config"
	"ticket-checkin/internal/status"
	"ticket-checkin/models"
)

const testClaimTTL = 15 * time.Second

func newCheckInFixture(t *testing.T, handler http.Handler) (*CheckInService, redismock.ClientMock) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := authority.NewClient(authority.ClientConfig{BaseURL: srv.URL, Timeout: 2 * time.Second})
	db, mock := redismock.NewClientMock()
	svc := NewCheckInService(db, client, nil, &config.Config{ClaimTTL: testClaimTTL})
	return svc, mock
}

func admissible(code string) *models.VerificationSnapshot {
	return &models.VerificationSnapshot{
		TicketCode: code,
		EventID:    "evt1",
		Status:     models.OrderConfirmed,
	}
}

func TestCheckInWinnerAdmits(t *testing.T) {
	stamp := time.Date(2026, 8, 28, 19, 30, 0, 0, time.UTC)
	var checkinCalls int
	svc, mock := newCheckInFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		checkinCalls++
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ticket_code":   "NTK-AB12CD34",
			"checked_in_at": stamp,
		})
	}))

	mock.ExpectSetNX("checkin:claim:NTK-AB12CD34", "1", testClaimTTL).SetVal(true)

	out, err := svc.CheckIn(context.Background(), admissible("NTK-AB12CD34"))
	require.NoError(t, err)
	assert.False(t, out.AlreadyUsed)
	assert.True(t, stamp.Equal(out.CheckedInAt))
	assert.Equal(t, 1, checkinCalls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckInLoserSurfacesOriginalStamp(t *testing.T) {
	original := time.Date(2026, 8, 28, 18, 0, 0, 0, time.UTC)
	svc, mock := newCheckInFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The loser never issues the mutating call, only a fresh read.
		require.Equal(t, http.MethodGet, r.Method)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ticket_code":   "NTK-AB12CD34",
			"event_id":      "evt1",
			"status":        "confirmed",
			"checked_in":    true,
			"checked_in_at": original,
		})
	}))

	mock.ExpectSetNX("checkin:claim:NTK-AB12CD34", "1", testClaimTTL).SetVal(false)

	out, err := svc.CheckIn(context.Background(), admissible("NTK-AB12CD34"))
	require.NoError(t, err)
	assert.True(t, out.AlreadyUsed)
	assert.True(t, original.Equal(out.CheckedInAt), "loser must see the winner's timestamp")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckInLoserWhileClaimPending(t *testing.T) {
	svc, mock := newCheckInFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Claim holder has not landed yet: the re-read still shows unused.
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ticket_code": "NTK-AB12CD34",
			"event_id":    "evt1",
			"status":      "confirmed",
			"checked_in":  false,
		})
	}))

	mock.ExpectSetNX("checkin:claim:NTK-AB12CD34", "1", testClaimTTL).SetVal(false)

	_, err := svc.CheckIn(context.Background(), admissible("NTK-AB12CD34"))
	assert.ErrorIs(t, err, status.ErrCheckInPending)
	assert.True(t, status.Retryable(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckInFailureReleasesClaim(t *testing.T) {
	svc, mock := newCheckInFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	mock.ExpectSetNX("checkin:claim:NTK-AB12CD34", "1", testClaimTTL).SetVal(true)
	mock.ExpectDel("checkin:claim:NTK-AB12CD34").SetVal(1)

	_, err := svc.CheckIn(context.Background(), admissible("NTK-AB12CD34"))
	assert.ErrorIs(t, err, status.ErrUnreachable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckInStaleUsedSnapshot(t *testing.T) {
	stamp := time.Date(2026, 8, 28, 17, 45, 0, 0, time.UTC)
	var hits int
	svc, mock := newCheckInFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))

	snap := admissible("NTK-AB12CD34")
	snap.CheckedIn = true
	snap.CheckedInAt = &stamp

	// Informational, answered locally: no claim, no authority traffic.
	out, err := svc.CheckIn(context.Background(), snap)
	require.NoError(t, err)
	assert.True(t, out.AlreadyUsed)
	assert.True(t, stamp.Equal(out.CheckedInAt))
	assert.Equal(t, 0, hits)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckInNotAdmissibleStatus(t *testing.T) {
	var hits int
	svc, mock := newCheckInFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))

	snap := admissible("NTK-AB12CD34")
	snap.Status = models.OrderPending

	_, err := svc.CheckIn(context.Background(), snap)
	require.ErrorIs(t, err, status.ErrNotAdmissible)
	assert.Contains(t, err.Error(), models.OrderPending)
	assert.Equal(t, 0, hits)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLookupMapsNotFound(t *testing.T) {
	svc, _ := newCheckInFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := svc.Lookup(context.Background(), "NTK-UNKNOWN1")
	assert.ErrorIs(t, err, status.ErrTicketNotFound)
}
