package handlers

import (
	"net/http"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"ticket-checkin/services"
)

type DashboardHandler struct {
	app  *pocketbase.PocketBase
	sync *services.SyncService
}

func NewDashboardHandler(app *pocketbase.PocketBase, syncService *services.SyncService) *DashboardHandler {
	return &DashboardHandler{
		app:  app,
		sync: syncService,
	}
}

// GetDashboard serves the cached order/class lists for an event. The first
// request for an event starts tracking it; until the first pull lands the
// lists are null and connectivity reflects the last pull attempt.
func (h *DashboardHandler) GetDashboard(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Operator authentication required", nil)
	}

	eventID := e.Request.PathValue("eventId")
	if eventID == "" {
		return apis.NewBadRequestError("Event ID required", nil)
	}

	h.sync.Track(eventID)

	cache := h.sync.Cache()
	resp := map[string]any{
		"event_id":  eventID,
		"connected": cache.Connected(),
	}
	if last := cache.LastSync(); !last.IsZero() {
		resp["last_sync_at"] = last
	}
	if lists := cache.Get(eventID); lists != nil {
		resp["orders"] = lists.Orders
		resp["ticket_classes"] = lists.Classes
		resp["pulled_at"] = lists.PulledAt
	}
	return e.JSON(http.StatusOK, resp)
}

// StopTracking drops an event from the sync rotation, e.g. when the
// operator switches events; its cached lists are invalidated.
func (h *DashboardHandler) StopTracking(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Operator authentication required", nil)
	}

	eventID := e.Request.PathValue("eventId")
	if eventID == "" {
		return apis.NewBadRequestError("Event ID required", nil)
	}

	h.sync.Untrack(eventID)
	return e.JSON(http.StatusOK, map[string]any{"tracking": false})
}

// GetAuditSummary aggregates the local scan-session audit trail per final
// state, for the shift-report view.
func (h *DashboardHandler) GetAuditSummary(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Operator authentication required", nil)
	}

	var rows []dbx.NullStringMap
	err := h.app.DB().
		NewQuery("SELECT final_state, COUNT(*) AS total FROM scan_sessions GROUP BY final_state").
		All(&rows)
	if err != nil {
		return apis.NewBadRequestError("Failed to read audit trail", err)
	}

	summary := map[string]string{}
	for _, row := range rows {
		if state := row["final_state"].String; state != "" {
			summary[state] = row["total"].String
		}
	}
	return e.JSON(http.StatusOK, map[string]any{"sessions_by_state": summary})
}
