package runtime

import (
	"fmt"
	"log/slog"
	"time"

	"roomcast/contract"
	"roomcast/domain"
	"roomcast/domain/event"
)

// Broadcaster delivers one event to every other session of a room,
// tolerating per-recipient transport failure. It is fire-and-forget from
// the producer's perspective: failures are resolved by evicting the broken
// recipient, never surfaced to the originator.
type Broadcaster struct {
	registry *Registry
	log      *slog.Logger
}

func NewBroadcaster(registry *Registry, log *slog.Logger) *Broadcaster {
	return &Broadcaster{registry: registry, log: log}
}

// Broadcast sends the event to every session of the room except the one
// owning the excluded connection. Sends are issued sequentially; a failed
// send detaches the broken session and the fan-out continues with the
// remaining recipients. Returns the number of successful deliveries.
//
// Within one room, events go out in the order Broadcast was invoked
// (the registry holds the room's send lock for the whole fan-out). No
// ordering guarantee holds across rooms.
func (b *Broadcaster) Broadcast(roomID domain.RoomID, e event.DomainEvent, exclude contract.Conn) int {
	delivered := 0
	b.registry.ForEachOther(roomID, exclude, func(s *Session) bool {
		if err := s.Send(e); err != nil {
			b.log.Debug(fmt.Sprintf("Evicting %s from %s after failed send", s.Agent.AgentID, roomID),
				"error", err)
			b.registry.Detach(roomID, s.Conn())
			return true
		}
		delivered++
		return true
	})
	return delivered
}

// AnnounceJoin tells every other session that the agent attached. The
// subject session is excluded: it learns about the room through its
// roster snapshot instead.
func (b *Broadcaster) AnnounceJoin(roomID domain.RoomID, agent domain.Participant, exclude contract.Conn) int {
	return b.Broadcast(roomID, event.Joined{Room: roomID, Agent: agent, At: time.Now().UTC()}, exclude)
}

// AnnounceLeave tells every remaining session that the agent detached.
func (b *Broadcaster) AnnounceLeave(roomID domain.RoomID, agent domain.Participant, exclude contract.Conn) int {
	return b.Broadcast(roomID, event.Left{Room: roomID, Agent: agent, At: time.Now().UTC()}, exclude)
}
