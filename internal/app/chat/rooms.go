package chat

import "sync"

// Rooms groups live connections by conversation id for fan-out. Rooms are
// transient: membership is granted only after the session manager has
// verified participation, and the whole table is rebuilt from reconnects
// after a restart.
type Rooms struct {
	mu    sync.RWMutex
	rooms map[string]map[string]Conn
}

// NewRooms builds an empty room table.
func NewRooms() *Rooms {
	return &Rooms{rooms: make(map[string]map[string]Conn)}
}

// Join adds the connection to the conversation's room.
func (r *Rooms) Join(conversationID string, conn Conn) {
	if conversationID == "" || conn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[conversationID]
	if !ok {
		room = make(map[string]Conn)
		r.rooms[conversationID] = room
	}
	room[conn.ID()] = conn
}

// Leave removes the connection from one room; no-op when absent.
func (r *Rooms) Leave(conversationID string, conn Conn) {
	if conn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(conversationID, conn.ID())
}

// LeaveAll removes the connection from every room, used on disconnect.
func (r *Rooms) LeaveAll(conn Conn) {
	if conn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for id := range r.rooms {
		r.leaveLocked(id, conn.ID())
	}
}

func (r *Rooms) leaveLocked(conversationID, connID string) {
	room, ok := r.rooms[conversationID]
	if !ok {
		return
	}
	delete(room, connID)
	if len(room) == 0 {
		delete(r.rooms, conversationID)
	}
}

// Drop discards a room entirely, used when its conversation is deleted.
func (r *Rooms) Drop(conversationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rooms, conversationID)
}

// HasUser reports whether any of the user's connections is in the room.
func (r *Rooms) HasUser(conversationID, userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, conn := range r.rooms[conversationID] {
		if conn.UserID() == userID {
			return true
		}
	}
	return false
}

// Broadcast delivers the event to every member of the room and returns the
// connections whose write failed. Failures never roll anything back; the
// caller decides whether to evict the dead handles.
func (r *Rooms) Broadcast(conversationID string, ev Event) []Conn {
	r.mu.RLock()
	members := make([]Conn, 0, len(r.rooms[conversationID]))
	for _, conn := range r.rooms[conversationID] {
		members = append(members, conn)
	}
	r.mu.RUnlock()

	var failed []Conn
	for _, conn := range members {
		if err := conn.Send(ev); err != nil {
			failed = append(failed, conn)
		}
	}
	return failed
}
