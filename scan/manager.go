package scan

import (
	"sync"

	"ticket-checkin/internal/status"
	"ticket-checkin/models"
	"ticket-checkin/monitoring"
	"ticket-checkin/utils"
)

// Manager owns all live scan sessions. Its Active count suspends the
// background sync loop while verification dialogs are open and feeds the
// active-sessions gauge, so every open/close path keeps both honest.
type Manager struct {
	verifier Verifier
	device   DeviceFactory
	decoder  Decoder
	onClose  func(models.SessionRecord)

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(verifier Verifier, device DeviceFactory, decoder Decoder) *Manager {
	if decoder == nil {
		decoder = TextDecoder{}
	}
	return &Manager{
		verifier: verifier,
		device:   device,
		decoder:  decoder,
		sessions: make(map[string]*Session),
	}
}

// SetCloseHook registers a callback invoked with the audit record of every
// session that closes.
func (m *Manager) SetCloseHook(fn func(models.SessionRecord)) {
	m.onClose = fn
}

// Open creates a session for one operator and starts its event loop.
func (m *Manager) Open(operatorID, eventID string, mode models.ScanMode) (*Session, error) {
	id, err := utils.GenerateSessionID(8)
	if err != nil {
		return nil, err
	}

	s := newSession(id, operatorID, eventID, m.verifier, m.device, m.decoder)

	m.mu.Lock()
	m.sessions[id] = s
	monitoring.SetActiveSessions(len(m.sessions))
	m.mu.Unlock()

	if mode == models.ModeCamera {
		if err := s.SwitchMode(models.ModeCamera); err != nil {
			// Session stays open in error state; the operator gets the
			// typed camera error and can fall back to manual entry.
			return s, err
		}
	}
	return s, nil
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, status.ErrSessionNotFound
	}
	return s, nil
}

// Close tears down one session and emits its audit record.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	monitoring.SetActiveSessions(len(m.sessions))
	m.mu.Unlock()
	if !ok {
		return status.ErrSessionNotFound
	}

	rec := s.Close()
	if rec != nil && m.onClose != nil {
		m.onClose(*rec)
	}
	return nil
}

// Active reports how many verification dialogs are open.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// CloseAll tears down every session, releasing any held capture devices.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	monitoring.SetActiveSessions(0)
	m.mu.Unlock()

	for _, s := range sessions {
		if rec := s.Close(); rec != nil && m.onClose != nil {
			m.onClose(*rec)
		}
	}
}
