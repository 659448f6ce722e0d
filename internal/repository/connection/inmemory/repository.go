package inmemory

import (
	"sync"

	"github.com/gorilla/websocket"
	"golang.org/x/exp/maps"

	"github.com/groovesync/server/internal/repository/connection"
)

// repo is the presence ledger: it maps live connections to session ids
// and each session to the single room it currently occupies.
type repo struct {
	sessionByConn map[*websocket.Conn]string
	connBySession map[string]*websocket.Conn
	roomBySession map[string]string
	mu            sync.RWMutex
}

func NewRepo() *repo {
	return &repo{
		sessionByConn: make(map[*websocket.Conn]string),
		connBySession: make(map[string]*websocket.Conn),
		roomBySession: make(map[string]string),
	}
}

func (r *repo) Add(conn *websocket.Conn, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sessionByConn[conn] != "" || r.connBySession[sessionID] != nil {
		return connection.ErrAlreadyExists
	}

	r.sessionByConn[conn] = sessionID
	r.connBySession[sessionID] = conn

	return nil
}

func (r *repo) Remove(sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.connBySession[sessionID]
	if !ok {
		return connection.ErrNotFound
	}

	delete(r.sessionByConn, conn)
	delete(r.connBySession, sessionID)
	delete(r.roomBySession, sessionID)

	return nil
}

func (r *repo) GetSessionID(conn *websocket.Conn) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessionID, ok := r.sessionByConn[conn]
	if !ok {
		return "", connection.ErrNotFound
	}

	return sessionID, nil
}

func (r *repo) GetConn(sessionID string) (*websocket.Conn, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.connBySession[sessionID]
	if !ok {
		return nil, connection.ErrNotFound
	}

	return conn, nil
}

func (r *repo) SetRoomID(sessionID string, roomID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.connBySession[sessionID]; !ok {
		return connection.ErrNotFound
	}

	r.roomBySession[sessionID] = roomID

	return nil
}

func (r *repo) GetRoomID(sessionID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	roomID, ok := r.roomBySession[sessionID]
	if !ok {
		return "", connection.ErrNotFound
	}

	return roomID, nil
}

func (r *repo) ClearRoomID(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.roomBySession, sessionID)
}

// Conns returns every live connection. Used to close them all on shutdown.
func (r *repo) Conns() []*websocket.Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return maps.Values(r.connBySession)
}
