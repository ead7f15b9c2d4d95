// This file defines Message events and related rules.
// Messages are immutable and validated by the domain.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message represents an immutable chat event. The ID is assigned exactly
// once at creation time and is the deduplication key downstream.
type Message struct {
	ID      uuid.UUID
	Room    RoomID
	Sender  Participant
	Content string
	At      time.Time
}

// NewMessage builds a Message with a fresh identifier. The timestamp is
// server-assigned, never client-supplied.
func NewMessage(room RoomID, sender Participant, content string, at time.Time) Message {
	return Message{
		ID:      uuid.New(),
		Room:    room,
		Sender:  sender,
		Content: content,
		At:      at,
	}
}
