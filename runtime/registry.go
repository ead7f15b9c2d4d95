package runtime

import (
	"sync"

	"roomcast/contract"
	"roomcast/domain"
)

// roomEntry is the serialization domain of one room. Structural mutations
// take mu; broadcasts additionally hold sendMu for their whole duration so
// that events leave the room in invocation order (see Broadcaster).
// The order slice preserves attach order for roster snapshots.
type roomEntry struct {
	mu       sync.Mutex
	sendMu   sync.Mutex
	sessions map[string]*Session // agent id -> session
	order    []string
}

// Registry owns the mapping from room identifier to the live session set
// of that room. Rooms are created lazily on first attach and dropped when
// their last session detaches; an empty registry entry carries no state
// worth keeping. Rooms are fully independent of each other: there is no
// cross-room lock.
type Registry struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]*roomEntry
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[domain.RoomID]*roomEntry)}
}

// Attach registers a new Session under the room, creating the room entry
// on first use. If the agent id already has a live Session in the room,
// the previous connection is force-closed and its entry replaced: the new
// connection wins, and no dangling connection is left able to send.
// The new Session is visible to broadcasts as soon as Attach returns.
func (r *Registry) Attach(roomID domain.RoomID, agent domain.Participant, conn contract.Conn) *Session {
	entry := r.entryOrCreate(roomID)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	session := NewSession(agent, conn)
	if previous, ok := entry.sessions[agent.AgentID]; ok {
		// Same agent id, new connection: evict the old one explicitly.
		_ = previous.Conn().Close()
	} else {
		entry.order = append(entry.order, agent.AgentID)
	}
	entry.sessions[agent.AgentID] = session
	return session
}

// Detach removes the Session whose connection handle matches and returns
// it, or nil when no session matches; the nil case makes double-close
// harmless. The room entry is dropped once its last session is gone.
func (r *Registry) Detach(roomID domain.RoomID, conn contract.Conn) *Session {
	r.mu.RLock()
	entry, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if !ok {
		return nil
	}

	var removed *Session
	entry.mu.Lock()
	for agentID, session := range entry.sessions {
		if session.Conn() == conn {
			delete(entry.sessions, agentID)
			entry.order = removeID(entry.order, agentID)
			removed = session
			break
		}
	}
	empty := len(entry.sessions) == 0
	entry.mu.Unlock()

	if empty {
		r.mu.Lock()
		// Re-check under the write lock: a concurrent Attach may have
		// repopulated the entry in the meantime.
		if current, ok := r.rooms[roomID]; ok && current == entry {
			entry.mu.Lock()
			if len(entry.sessions) == 0 {
				delete(r.rooms, roomID)
			}
			entry.mu.Unlock()
		}
		r.mu.Unlock()
	}
	return removed
}

// Snapshot returns the current roster in attach order. It is meant for
// initial-roster delivery and presence queries, never for tie-breaking
// broadcasts.
func (r *Registry) Snapshot(roomID domain.RoomID) []domain.Participant {
	r.mu.RLock()
	entry, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if !ok {
		return nil
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	roster := make([]domain.Participant, 0, len(entry.sessions))
	for _, agentID := range entry.order {
		if session, ok := entry.sessions[agentID]; ok {
			roster = append(roster, session.Agent)
		}
	}
	return roster
}

// ForEachOther walks every session currently attached to the room except
// the one owning the excluded connection, in attach order. The walk
// reflects registry state at call time. The room's send lock is held for
// the whole walk, which is what serializes broadcasts per room; fn must
// therefore not start another walk of the same room. Attach and Detach are
// safe from within fn; Detach is exactly how failed recipients are evicted.
func (r *Registry) ForEachOther(roomID domain.RoomID, exclude contract.Conn, fn func(s *Session) bool) {
	r.mu.RLock()
	entry, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if !ok {
		return
	}

	entry.sendMu.Lock()
	defer entry.sendMu.Unlock()

	entry.mu.Lock()
	recipients := make([]*Session, 0, len(entry.sessions))
	for _, agentID := range entry.order {
		session, ok := entry.sessions[agentID]
		if !ok || session.Conn() == exclude {
			continue
		}
		recipients = append(recipients, session)
	}
	entry.mu.Unlock()

	for _, session := range recipients {
		if !fn(session) {
			return
		}
	}
}

func (r *Registry) entryOrCreate(roomID domain.RoomID) *roomEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.rooms[roomID]
	if !ok {
		entry = &roomEntry{sessions: make(map[string]*Session)}
		r.rooms[roomID] = entry
	}
	return entry
}

func removeID(order []string, agentID string) []string {
	for i, id := range order {
		if id == agentID {
			return append(order[:i], order[i+1:]...)
		}
	}
	return order
}
