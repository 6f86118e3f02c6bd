package chat

import "sync"

// Presence is the process-local map of user id to reachable connections.
// It is volatile by design: it rebuilds empty on restart and is never a
// durability boundary, only a hint for best-effort push delivery. A user
// may hold several connections (multiple tabs/devices).
type Presence struct {
	mu     sync.RWMutex
	byUser map[string]map[string]Conn
	byConn map[string]string
}

// NewPresence builds an empty registry. Construct once at startup and pass
// it into the session manager and gateways; never a package-level global.
func NewPresence() *Presence {
	return &Presence{
		byUser: make(map[string]map[string]Conn),
		byConn: make(map[string]string),
	}
}

// Register binds a connection to a user. Registering the same handle twice
// is a no-op, so delivery is never duplicated.
func (p *Presence) Register(userID string, conn Conn) {
	if userID == "" || conn == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	conns, ok := p.byUser[userID]
	if !ok {
		conns = make(map[string]Conn)
		p.byUser[userID] = conns
	}
	conns[conn.ID()] = conn
	p.byConn[conn.ID()] = userID
}

// Unregister removes the handle from whatever user held it; no-op when the
// handle is unknown. The user entry disappears with its last connection.
func (p *Presence) Unregister(conn Conn) {
	if conn == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	userID, ok := p.byConn[conn.ID()]
	if !ok {
		return
	}
	delete(p.byConn, conn.ID())
	if conns, ok := p.byUser[userID]; ok {
		delete(conns, conn.ID())
		if len(conns) == 0 {
			delete(p.byUser, userID)
		}
	}
}

// Lookup returns the user's live connections. An empty result says nothing
// about whether the user exists, only that they are not reachable now.
func (p *Presence) Lookup(userID string) []Conn {
	p.mu.RLock()
	defer p.mu.RUnlock()
	conns := p.byUser[userID]
	if len(conns) == 0 {
		return nil
	}
	out := make([]Conn, 0, len(conns))
	for _, c := range conns {
		out = append(out, c)
	}
	return out
}
