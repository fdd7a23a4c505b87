package session

import (
	"sync"

	"github.com/vitawell/companion/internal/shared/types"
)

// Manager owns all live sessions. Session ids usually come from the
// backend's /chat/start response and are stored verbatim.
type Manager struct {
	sessions sync.Map
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{}
}

// Create registers a session under the given id. An existing session
// with the same id is returned untouched.
func (m *Manager) Create(sessionID string, chatType types.ChatType, title string) *Session {
	s := newSession(sessionID, chatType, title)
	actual, _ := m.sessions.LoadOrStore(sessionID, s)
	return actual.(*Session)
}

// Get looks up a session.
func (m *Manager) Get(sessionID string) (*Session, bool) {
	val, ok := m.sessions.Load(sessionID)
	if !ok {
		return nil, false
	}
	return val.(*Session), true
}

// Delete destroys a session ("new chat"). Reports whether it existed.
func (m *Manager) Delete(sessionID string) bool {
	_, existed := m.sessions.LoadAndDelete(sessionID)
	return existed
}

// List summarizes all live sessions.
func (m *Manager) List() []types.SessionInfo {
	var infos []types.SessionInfo
	m.sessions.Range(func(_, val any) bool {
		infos = append(infos, val.(*Session).Info())
		return true
	})
	return infos
}

// Len counts live sessions.
func (m *Manager) Len() int {
	n := 0
	m.sessions.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
