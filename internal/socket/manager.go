// Package socket serves the chat UI over websockets. Each connection owns
// one conversation session.
package socket

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"

	"github.com/ashureev/needle/internal/conversation"
)

type entry struct {
	session *conversation.Session
	conn    *websocket.Conn
}

// SessionManager tracks the live chat sessions per anonymous user.
type SessionManager struct {
	mu     sync.RWMutex
	active map[string]map[string]entry
}

// NewSessionManager creates a new session manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{
		active: make(map[string]map[string]entry),
	}
}

// Get returns the session of a user by id, or nil.
func (m *SessionManager) Get(userID, sessionID string) *conversation.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if sessions, ok := m.active[userID]; ok {
		return sessions[sessionID].session
	}
	return nil
}

// Register adds a session and the connection serving it.
func (m *SessionManager) Register(userID string, session *conversation.Session, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.active[userID]; !exists {
		m.active[userID] = make(map[string]entry)
	}

	sessionID := session.ID()
	if existing, exists := m.active[userID][sessionID]; exists && existing.conn != conn && existing.conn != nil {
		_ = existing.conn.Close(websocket.StatusNormalClosure, "session replaced")
	}

	m.active[userID][sessionID] = entry{session: session, conn: conn}
	slog.Info("Chat session registered", "user_id", userID, "session_id", sessionID)
}

// Unregister removes a session if conn still serves it.
func (m *SessionManager) Unregister(userID, sessionID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sessions, ok := m.active[userID]; ok {
		if current, exists := sessions[sessionID]; exists && current.conn == conn {
			delete(sessions, sessionID)
			if len(sessions) == 0 {
				delete(m.active, userID)
			}
			slog.Info("Chat session unregistered", "user_id", userID, "session_id", sessionID)
		}
	}
}

// Count returns the number of live sessions.
func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, sessions := range m.active {
		n += len(sessions)
	}
	return n
}

// CloseAll closes every live connection. Used on shutdown.
func (m *SessionManager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for userID, sessions := range m.active {
		for sid, e := range sessions {
			if e.conn != nil {
				_ = e.conn.Close(websocket.StatusGoingAway, "server shutting down")
			}
			slog.Info("Chat session closed", "user_id", userID, "session_id", sid)
		}
	}
	m.active = make(map[string]map[string]entry)
}
