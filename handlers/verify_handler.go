package handlers

import (
	"errors"
	"net/http"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"ticket-checkin/internal/status"
	"ticket-checkin/models"
	"ticket-checkin/scan"
	"ticket-checkin/security"
)

type VerifyHandler struct {
	app      *pocketbase.PocketBase
	sessions *scan.Manager
	limiter  *security.RateLimiter
}

func NewVerifyHandler(app *pocketbase.PocketBase, sessions *scan.Manager, limiter *security.RateLimiter) *VerifyHandler {
	return &VerifyHandler{
		app:      app,
		sessions: sessions,
		limiter:  limiter,
	}
}

// OpenSession starts a verification dialog for the authenticated operator.
// A camera failure still opens the session: the typed error and its
// guidance come back in the response so the operator can fall back to
// manual entry.
func (h *VerifyHandler) OpenSession(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Operator authentication required", nil)
	}

	var req struct {
		EventID string          `json:"event_id"`
		Mode    models.ScanMode `json:"mode"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.Mode == "" {
		req.Mode = models.ModeManual
	}

	session, err := h.sessions.Open(e.Auth.Id, req.EventID, req.Mode)
	if session == nil {
		return apis.NewBadRequestError("Failed to open session", err)
	}

	st, err := session.Status()
	if err != nil {
		return apis.NewBadRequestError("Failed to read session", err)
	}
	return e.JSON(http.StatusOK, sessionResponse(st))
}

// CloseSession tears down the dialog, stopping any camera decode and
// invalidating in-flight lookups.
func (h *VerifyHandler) CloseSession(e *core.RequestEvent) error {
	session, err := h.requireSession(e)
	if err != nil {
		return err
	}

	if err := h.sessions.Close(session.ID); err != nil {
		return apis.NewNotFoundError("Session not found", err)
	}
	return e.JSON(http.StatusOK, map[string]any{"closed": true})
}

// GetStatus returns the current dialog state; terminals poll it while a
// lookup is in flight.
func (h *VerifyHandler) GetStatus(e *core.RequestEvent) error {
	session, err := h.requireSession(e)
	if err != nil {
		return err
	}
	st, err := session.Status()
	if err != nil {
		return apis.NewNotFoundError("Session closed", err)
	}
	return e.JSON(http.StatusOK, sessionResponse(st))
}

// SwitchMode flips between manual and camera input.
func (h *VerifyHandler) SwitchMode(e *core.RequestEvent) error {
	session, err := h.requireSession(e)
	if err != nil {
		return err
	}

	var req struct {
		Mode models.ScanMode `json:"mode"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.Mode != models.ModeManual && req.Mode != models.ModeCamera {
		return apis.NewBadRequestError("Unknown mode", nil)
	}

	switchErr := session.SwitchMode(req.Mode)
	if errors.Is(switchErr, status.ErrInvalidState) {
		return apis.NewBadRequestError("Cannot switch modes during check-in", switchErr)
	}
	// Camera acquisition errors land in the session state and are rendered
	// inline with their guidance, not as a failed request.
	st, err := session.Status()
	if err != nil {
		return apis.NewNotFoundError("Session closed", err)
	}
	return e.JSON(http.StatusOK, sessionResponse(st))
}

// Lookup feeds a manually typed code into the dialog.
func (h *VerifyHandler) Lookup(e *core.RequestEvent) error {
	session, err := h.requireSession(e)
	if err != nil {
		return err
	}

	var req struct {
		Code string `json:"code"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	return h.submit(e, session, session.SubmitCode, req.Code)
}

// Scan feeds a decoded scanner payload into the dialog; the ticket code is
// extracted from the payload's verify path when present.
func (h *VerifyHandler) Scan(e *core.RequestEvent) error {
	session, err := h.requireSession(e)
	if err != nil {
		return err
	}

	var req struct {
		Payload string `json:"payload"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	return h.submit(e, session, session.SubmitScan, req.Payload)
}

func (h *VerifyHandler) submit(e *core.RequestEvent, session *scan.Session, fn func(string) error, input string) error {
	switch err := fn(input); {
	case err == nil:
	case errors.Is(err, status.ErrEmptyCode), errors.Is(err, status.ErrNoCodeInPayload):
		return e.JSON(http.StatusBadRequest, map[string]any{
			"error":    err.Error(),
			"guidance": guidance(err),
		})
	case errors.Is(err, status.ErrInvalidState):
		return apis.NewBadRequestError("A check-in is already in progress", err)
	case errors.Is(err, status.ErrSessionClosed):
		return apis.NewNotFoundError("Session closed", err)
	default:
		return apis.NewBadRequestError("Lookup failed", err)
	}

	st, err := session.Status()
	if err != nil {
		return apis.NewNotFoundError("Session closed", err)
	}
	return e.JSON(http.StatusOK, sessionResponse(st))
}

// CheckIn admits the currently resolved ticket. Transport failures are
// surfaced for an explicit retry; "already used" is a 200 with the original
// timestamp, styled identically however it was admitted.
func (h *VerifyHandler) CheckIn(e *core.RequestEvent) error {
	session, err := h.requireSession(e)
	if err != nil {
		return err
	}

	if h.limiter != nil {
		if err := h.limiter.Allow(e.Request.Context(), "checkin:"+e.Auth.Id); err != nil {
			return apis.NewTooManyRequestsError("Too many check-in attempts", err)
		}
	}

	out, err := session.CheckIn(e.Request.Context())
	switch {
	case err == nil:
	case errors.Is(err, status.ErrInvalidState):
		return apis.NewBadRequestError("No admissible ticket staged in this session", err)
	case errors.Is(err, status.ErrNotAdmissible):
		return apis.NewBadRequestError(err.Error(), err)
	case errors.Is(err, status.ErrCheckInPending), errors.Is(err, status.ErrUnreachable):
		return apis.NewApiError(http.StatusServiceUnavailable, guidance(err), err)
	case errors.Is(err, status.ErrSessionClosed):
		return apis.NewNotFoundError("Session closed", err)
	default:
		return apis.NewBadRequestError("Check-in failed", err)
	}

	st, stErr := session.Status()
	resp := map[string]any{
		"ticket_code":   out.TicketCode,
		"checked_in_at": out.CheckedInAt,
		"already_used":  out.AlreadyUsed,
	}
	if stErr == nil {
		resp["session"] = sessionResponse(st)
	}
	return e.JSON(http.StatusOK, resp)
}

func (h *VerifyHandler) requireSession(e *core.RequestEvent) (*scan.Session, error) {
	if e.Auth == nil {
		return nil, apis.NewUnauthorizedError("Operator authentication required", nil)
	}
	id := e.Request.PathValue("sessionId")
	session, err := h.sessions.Get(id)
	if err != nil {
		return nil, apis.NewNotFoundError("Session not found", err)
	}
	if session.OperatorID != e.Auth.Id {
		return nil, apis.NewForbiddenError("Session belongs to another operator", nil)
	}
	return session, nil
}

func sessionResponse(st *scan.SessionStatus) map[string]any {
	resp := map[string]any{
		"session_id": st.ID,
		"mode":       st.Mode,
		"state":      st.State,
		"code":       st.Code,
	}
	if st.Snapshot != nil {
		resp["ticket"] = st.Snapshot
	}
	if st.Outcome != nil {
		resp["checkin"] = st.Outcome
	}
	if st.Err != nil {
		resp["error"] = st.Err.Error()
		resp["guidance"] = guidance(st.Err)
		resp["retryable"] = status.Retryable(st.Err)
	}
	return resp
}
