package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"ticket-checkin/authority"
	"ticket-checkin/config"
	"ticket-checkin/internal/status"
	"ticket-checkin/models"
	"ticket-checkin/monitoring"
)

// CheckInService gates and executes the one state-changing admission call.
// It implements scan.Verifier for the session layer.
//
// The authority is assumed to enforce an at-most-once transition per code,
// but that guarantee is not observable from here, so a Redis SETNX claim
// keyed by ticket code is taken before the mutating call: of N concurrent
// operators on the same code, exactly one holds the claim and issues the
// request; the rest re-read the authority and surface the already-used
// outcome with the original timestamp. Claims expire so a crashed winner
// cannot wedge a code.
type CheckInService struct {
	redis     *redis.Client
	authority *authority.Client
	sync      *SyncService
	claimTTL  time.Duration
}

func NewCheckInService(redisClient *redis.Client, client *authority.Client, syncService *SyncService, cfg *config.Config) *CheckInService {
	return &CheckInService{
		redis:     redisClient,
		authority: client,
		sync:      syncService,
		claimTTL:  cfg.ClaimTTL,
	}
}

// Lookup reads the verification snapshot for a code. Side-effect-free and
// safe to repeat or race with other operators.
func (s *CheckInService) Lookup(ctx context.Context, code string) (*models.VerificationSnapshot, error) {
	start := time.Now()
	snap, err := s.authority.Lookup(ctx, code)
	switch {
	case err == nil:
		monitoring.TrackLookup("ok", time.Since(start))
	case errors.Is(err, status.ErrTicketNotFound):
		monitoring.TrackLookup("not_found", time.Since(start))
	default:
		monitoring.TrackLookup("unreachable", time.Since(start))
	}
	return snap, err
}

func claimKey(code string) string {
	return fmt.Sprintf("checkin:claim:%s", code)
}

// CheckIn admits the ticket behind a previously looked-up snapshot.
// Preconditions: status confirmed or approved, not yet checked in. The
// returned timestamp is always the authority's; no local clock is ever
// substituted.
func (s *CheckInService) CheckIn(ctx context.Context, snap *models.VerificationSnapshot) (*models.CheckInOutcome, error) {
	if snap == nil {
		return nil, status.ErrNotAdmissible
	}
	if !snap.Admissible() {
		if snap.CheckedIn && snap.CheckedInAt != nil {
			// Stale dialog raced another operator; informational, not an error.
			monitoring.TrackCheckIn("already_used")
			return &models.CheckInOutcome{
				TicketCode:  snap.TicketCode,
				CheckedInAt: *snap.CheckedInAt,
				AlreadyUsed: true,
			}, nil
		}
		monitoring.TrackCheckIn("not_admissible")
		return nil, fmt.Errorf("%w: status is %s", status.ErrNotAdmissible, snap.Status)
	}

	claimed, err := s.redis.SetNX(ctx, claimKey(snap.TicketCode), "1", s.claimTTL).Result()
	if err != nil {
		// The claim is a local guard; the authority stays authoritative.
		slog.Warn("check-in claim unavailable, relying on authority", "code", snap.TicketCode, "error", err)
		claimed = true
	}

	if !claimed {
		return s.loseClaim(ctx, snap.TicketCode)
	}

	out, err := s.authority.CheckIn(ctx, snap.TicketCode)
	if err != nil {
		// Release the claim so an explicit operator retry can proceed.
		s.redis.Del(context.WithoutCancel(ctx), claimKey(snap.TicketCode))
		monitoring.TrackCheckIn("failed")
		return nil, err
	}

	if out.AlreadyUsed {
		monitoring.TrackCheckIn("already_used")
	} else {
		monitoring.TrackCheckIn("admitted")
	}

	// Derived counters (sold, checked-in indicators) converge on the next
	// applied pull; kick it so no manual reload is needed.
	if s.sync != nil && snap.EventID != "" {
		s.sync.Cache().Invalidate(snap.EventID)
		s.sync.Kick(snap.EventID)
	}

	return out, nil
}

// loseClaim handles the losing side of a concurrent check-in: re-derive the
// truth from a fresh read rather than trusting any local state.
func (s *CheckInService) loseClaim(ctx context.Context, code string) (*models.CheckInOutcome, error) {
	monitoring.TrackClaimContention()

	snap, err := s.authority.Lookup(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", status.ErrCheckInPending, err)
	}
	if snap.CheckedIn && snap.CheckedInAt != nil {
		monitoring.TrackCheckIn("already_used")
		return &models.CheckInOutcome{
			TicketCode:  code,
			CheckedInAt: *snap.CheckedInAt,
			AlreadyUsed: true,
		}, nil
	}
	// The claim holder has not landed yet; the operator may retry shortly.
	return nil, status.ErrCheckInPending
}
