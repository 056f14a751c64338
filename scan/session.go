package scan

import (
	"context"
	"errors"
	"sync"
	"time"

	"ticket-checkin/internal/status"
	"ticket-checkin/models"
)

// Verifier is what a scan session needs from the rest of the system: a
// side-effect-free lookup and the single state-changing admission call.
type Verifier interface {
	Lookup(ctx context.Context, code string) (*models.VerificationSnapshot, error)
	CheckIn(ctx context.Context, snap *models.VerificationSnapshot) (*models.CheckInOutcome, error)
}

// sessionTransitions is the dialog state machine. Mode switches reset to
// awaiting_input from any state and are handled outside the table.
var sessionTransitions = map[models.SessionState][]models.SessionState{
	models.StateAwaitingInput: {models.StateLookingUp, models.StateError},
	models.StateLookingUp:     {models.StateLookingUp, models.StateValid, models.StateAlreadyUsed, models.StateInvalid, models.StateNotFound, models.StateError},
	models.StateValid:         {models.StateLookingUp, models.StateCheckingIn},
	models.StateAlreadyUsed:   {models.StateLookingUp},
	models.StateInvalid:       {models.StateLookingUp},
	models.StateNotFound:      {models.StateLookingUp},
	models.StateCheckingIn:    {models.StateAdmitted, models.StateAlreadyUsed, models.StateValid},
	models.StateAdmitted:      {models.StateLookingUp},
	models.StateError:         {models.StateLookingUp},
}

func canTransition(from, to models.SessionState) bool {
	for _, next := range sessionTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Session is one verification dialog. All mutable state is owned by a
// single event-loop goroutine; public methods and asynchronous completions
// (lookup results, decode results) are serialized onto it, so a slow
// completion can never interleave with a newer one. Lookups carry a
// generation number: a result is applied only while its generation is still
// the most recently issued one for the session.
type Session struct {
	ID         string
	OperatorID string
	EventID    string

	verifier Verifier
	device   DeviceFactory
	decoder  Decoder

	events    chan func()
	done      chan struct{}
	closeOnce sync.Once

	// Loop-owned state. Never touched outside the event loop.
	mode         models.ScanMode
	state        models.SessionState
	code         string
	snapshot     *models.VerificationSnapshot
	outcome      *models.CheckInOutcome
	lastErr      error
	gen          uint64
	cameraGen    uint64
	cameraCancel context.CancelFunc
	openedAt     time.Time
}

// SessionStatus is a point-in-time copy of the dialog state, safe to hand
// to handlers after the call returns.
type SessionStatus struct {
	ID       string
	Mode     models.ScanMode
	State    models.SessionState
	Code     string
	Snapshot *models.VerificationSnapshot
	Outcome  *models.CheckInOutcome
	Err      error
}

func newSession(id, operatorID, eventID string, verifier Verifier, device DeviceFactory, decoder Decoder) *Session {
	s := &Session{
		ID:         id,
		OperatorID: operatorID,
		EventID:    eventID,
		verifier:   verifier,
		device:     device,
		decoder:    decoder,
		events:     make(chan func(), 8),
		done:       make(chan struct{}),
		mode:       models.ModeManual,
		state:      models.StateAwaitingInput,
		openedAt:   time.Now(),
	}
	go s.run()
	return s
}

func (s *Session) run() {
	for {
		select {
		case fn := <-s.events:
			fn()
		case <-s.done:
			return
		}
	}
}

// post schedules fn on the event loop. Returns ErrSessionClosed once the
// session is closed; a late completion posted after close is discarded.
func (s *Session) post(fn func()) error {
	select {
	case s.events <- fn:
		return nil
	case <-s.done:
		return status.ErrSessionClosed
	}
}

// call runs fn on the event loop and waits for it to finish.
func (s *Session) call(fn func()) error {
	ran := make(chan struct{})
	if err := s.post(func() {
		fn()
		close(ran)
	}); err != nil {
		return err
	}
	select {
	case <-ran:
		return nil
	case <-s.done:
		return status.ErrSessionClosed
	}
}

// SubmitCode feeds operator-typed input into the session. The lookup runs
// in the background; poll Status for the result.
func (s *Session) SubmitCode(raw string) error {
	code, err := NormalizeCode(raw)
	if err != nil {
		return err
	}
	return s.beginLookup(code)
}

// SubmitScan feeds a decoded scanner payload into the session, extracting
// the embedded ticket code first.
func (s *Session) SubmitScan(payload string) error {
	code, err := ExtractCode(payload)
	if err != nil {
		return err
	}
	return s.beginLookup(code)
}

func (s *Session) beginLookup(code string) error {
	var startErr error
	err := s.call(func() {
		if !canTransition(s.state, models.StateLookingUp) {
			startErr = status.ErrInvalidState
			return
		}
		s.gen++
		gen := s.gen
		s.state = models.StateLookingUp
		s.code = code
		s.lastErr = nil
		go s.lookup(code, gen)
	})
	if err != nil {
		return err
	}
	return startErr
}

// lookup performs the remote read off-loop and posts the result back. The
// session, not the originating HTTP request, scopes the call: the dialog
// stays in looking_up after the submit request returns.
func (s *Session) lookup(code string, gen uint64) {
	snap, err := s.verifier.Lookup(context.Background(), code)
	s.post(func() {
		if gen != s.gen {
			// A newer lookup superseded this one; drop the stale result.
			return
		}
		s.applyLookup(snap, err)
	})
}

func (s *Session) applyLookup(snap *models.VerificationSnapshot, err error) {
	switch {
	case err == nil:
		s.snapshot = snap
		s.code = snap.TicketCode
		switch {
		case snap.CheckedIn:
			s.state = models.StateAlreadyUsed
			if snap.CheckedInAt != nil {
				s.outcome = &models.CheckInOutcome{
					TicketCode:  snap.TicketCode,
					CheckedInAt: *snap.CheckedInAt,
					AlreadyUsed: true,
				}
			}
		case snap.Admissible():
			s.state = models.StateValid
		default:
			s.state = models.StateInvalid
		}
	case errors.Is(err, status.ErrTicketNotFound):
		s.snapshot = nil
		s.state = models.StateNotFound
	default:
		s.lastErr = err
		s.state = models.StateError
	}
}

// CheckIn issues the admission call for the currently resolved ticket.
// Calling it again after a resolution is a no-op that returns the recorded
// outcome without another mutating call. A transport failure reverts the
// dialog to its last confirmed state; nothing is flipped optimistically.
func (s *Session) CheckIn(ctx context.Context) (*models.CheckInOutcome, error) {
	var (
		snap     *models.VerificationSnapshot
		prior    *models.CheckInOutcome
		startErr error
	)
	if err := s.call(func() {
		switch s.state {
		case models.StateValid:
			s.state = models.StateCheckingIn
			snap = s.snapshot
		case models.StateAdmitted, models.StateAlreadyUsed:
			prior = s.outcome
			if prior == nil {
				startErr = status.ErrInvalidState
			}
		default:
			startErr = status.ErrInvalidState
		}
	}); err != nil {
		return nil, err
	}
	if startErr != nil {
		return nil, startErr
	}
	if prior != nil {
		return prior, nil
	}

	out, err := s.verifier.CheckIn(ctx, snap)

	// Apply on the loop; if the dialog closed mid-call the outcome is
	// still returned to the operator, just not staged anywhere.
	_ = s.call(func() {
		if err != nil {
			// Last confirmed state stays visible; the failure is
			// surfaced for an explicit operator retry.
			s.state = models.StateValid
			s.lastErr = err
			return
		}
		s.outcome = out
		if s.snapshot != nil {
			s.snapshot.CheckedIn = true
			at := out.CheckedInAt
			s.snapshot.CheckedInAt = &at
		}
		if out.AlreadyUsed {
			s.state = models.StateAlreadyUsed
		} else {
			s.state = models.StateAdmitted
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SwitchMode flips between manual entry and camera capture. Any running
// decode loop is stopped, any in-flight lookup is invalidated, and staged
// results are cleared; a result from the abandoned mode can never land.
func (s *Session) SwitchMode(mode models.ScanMode) error {
	var switchErr error
	err := s.call(func() {
		if s.state == models.StateCheckingIn {
			switchErr = status.ErrInvalidState
			return
		}
		s.stopCamera()
		s.gen++
		s.mode = mode
		s.state = models.StateAwaitingInput
		s.code = ""
		s.snapshot = nil
		s.outcome = nil
		s.lastErr = nil
		if mode == models.ModeCamera {
			switchErr = s.startCamera()
		}
	})
	if err != nil {
		return err
	}
	return switchErr
}

// startCamera opens the capture device and arms a one-shot decode. Runs on
// the event loop.
func (s *Session) startCamera() error {
	if s.device == nil {
		s.state = models.StateError
		s.lastErr = status.ErrUnsupported
		return status.ErrUnsupported
	}
	dev, err := s.device()
	if err != nil {
		s.state = models.StateError
		s.lastErr = err
		return err
	}

	cctx, cancel := context.WithCancel(context.Background())
	s.cameraCancel = cancel
	camGen := s.cameraGen
	results := DecodeOnce(cctx, dev, s.decoder)

	go func() {
		res, ok := <-results
		if !ok {
			// Cancelled; the decode emitted nothing.
			return
		}
		s.post(func() {
			if camGen != s.cameraGen {
				// A mode switch or close superseded this capture. A newer
				// camera session may be live; leave its cancel in place.
				return
			}
			s.cameraCancel = nil
			if res.Err != nil {
				s.state = models.StateError
				s.lastErr = res.Err
				return
			}
			s.gen++
			gen := s.gen
			s.state = models.StateLookingUp
			s.code = res.Code
			go s.lookup(res.Code, gen)
		})
	}()
	return nil
}

// stopCamera releases the capture device. Runs on the event loop. Bumping
// the camera generation invalidates any decode completion still in flight
// from the session being stopped.
func (s *Session) stopCamera() {
	s.cameraGen++
	if s.cameraCancel != nil {
		s.cameraCancel()
		s.cameraCancel = nil
	}
}

// Status returns a copy of the current dialog state.
func (s *Session) Status() (*SessionStatus, error) {
	var st SessionStatus
	err := s.call(func() {
		st = SessionStatus{
			ID:      s.ID,
			Mode:    s.mode,
			State:   s.state,
			Code:    s.code,
			Err:     s.lastErr,
			Outcome: s.outcome,
		}
		if s.snapshot != nil {
			snap := *s.snapshot
			st.Snapshot = &snap
		}
	})
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// Close tears the session down: stops any decode loop, invalidates pending
// lookups and returns the audit record. Idempotent; later calls return nil.
func (s *Session) Close() *models.SessionRecord {
	var rec *models.SessionRecord
	s.closeOnce.Do(func() {
		finished := make(chan struct{})
		select {
		case s.events <- func() {
			s.stopCamera()
			s.gen++
			rec = &models.SessionRecord{
				SessionID:  s.ID,
				OperatorID: s.OperatorID,
				EventID:    s.EventID,
				Mode:       s.mode,
				FinalState: s.state,
				TicketCode: s.code,
				OpenedAt:   s.openedAt,
				ClosedAt:   time.Now(),
			}
			close(finished)
		}:
			<-finished
		case <-s.done:
		}
		close(s.done)
	})
	return rec
}
