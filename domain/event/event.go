// Package event defines the closed set of events exchanged over a room
// connection. Each kind is a distinct type so the protocol switch stays
// exhaustively checkable.
package event

import (
	"time"

	"roomcast/domain"
)

// Kind matches the wire-level frame type.
type Kind string

const (
	KindAgents  Kind = "agents"
	KindJoin    Kind = "join"
	KindLeave   Kind = "leave"
	KindMessage Kind = "message"
	KindTyping  Kind = "typing"
	KindError   Kind = "error"
)

// DomainEvent is the tagged union over all room events.
// Events are immutable once constructed.
type DomainEvent interface {
	RoomID() domain.RoomID
	EventKind() Kind
	OccurredAt() time.Time
}

// Joined is announced to existing sessions when a participant attaches.
type Joined struct {
	Room  domain.RoomID
	Agent domain.Participant
	At    time.Time
}

func (e Joined) RoomID() domain.RoomID { return e.Room }
func (e Joined) EventKind() Kind       { return KindJoin }
func (e Joined) OccurredAt() time.Time { return e.At }

// Left is announced to remaining sessions when a participant detaches.
type Left struct {
	Room  domain.RoomID
	Agent domain.Participant
	At    time.Time
}

func (e Left) RoomID() domain.RoomID { return e.Room }
func (e Left) EventKind() Kind       { return KindLeave }
func (e Left) OccurredAt() time.Time { return e.At }

// MessagePosted carries one chat message to the other sessions of the room.
type MessagePosted struct {
	Message domain.Message
}

func (e MessagePosted) RoomID() domain.RoomID { return e.Message.Room }
func (e MessagePosted) EventKind() Kind       { return KindMessage }
func (e MessagePosted) OccurredAt() time.Time { return e.Message.At }

// Typing is a transient signal, broadcast but never persisted.
type Typing struct {
	Room  domain.RoomID
	Agent domain.Participant
	At    time.Time
}

func (e Typing) RoomID() domain.RoomID { return e.Room }
func (e Typing) EventKind() Kind       { return KindTyping }
func (e Typing) OccurredAt() time.Time { return e.At }

// Roster is sent once to a freshly attached session, listing the current
// participants in attach order.
type Roster struct {
	Room   domain.RoomID
	Agents []domain.Participant
	At     time.Time
}

func (e Roster) RoomID() domain.RoomID { return e.Room }
func (e Roster) EventKind() Kind       { return KindAgents }
func (e Roster) OccurredAt() time.Time { return e.At }

// Rejected is delivered to the originating connection only, never broadcast.
type Rejected struct {
	Room   domain.RoomID
	Reason string
	At     time.Time
}

func (e Rejected) RoomID() domain.RoomID { return e.Room }
func (e Rejected) EventKind() Kind       { return KindError }
func (e Rejected) OccurredAt() time.Time { return e.At }
