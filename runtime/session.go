// Package runtime owns the live state of the broadcaster: which sessions
// are attached to which room, and the fan-out of events between them.
// It contains no transport or UI logic; connections are reached through
// the contract.Conn handle.
package runtime

import (
	"roomcast/contract"
	"roomcast/domain"
	"roomcast/domain/event"
)

// Session binds one live connection to the identity presented at connect
// time. A Session never outlives its connection handle: it is created when
// the transport attaches to a room and destroyed on close, error, or
// eviction after a failed send.
type Session struct {
	Agent domain.Participant
	conn  contract.Conn
}

func NewSession(agent domain.Participant, conn contract.Conn) *Session {
	return &Session{Agent: agent, conn: conn}
}

func (s *Session) Conn() contract.Conn {
	return s.conn
}

// Send forwards the event over the session's connection handle.
// An error means the transport is broken; the caller decides eviction.
func (s *Session) Send(e event.DomainEvent) error {
	return s.conn.Send(e)
}
