// Package domain contains core concepts of the broadcaster.
// This file defines Room identifiers and related invariants.
// No runtime, network, or UI logic should be added here.
package domain

// RoomID addresses one fan-out scope. Opaque, only non-emptiness is enforced.
type RoomID string

func (id RoomID) Valid() bool {
	return id != ""
}
