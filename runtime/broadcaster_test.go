package runtime

import (
	"log/slog"
	"testing"
	"time"

	"roomcast/domain"
	"roomcast/domain/event"

	"github.com/stretchr/testify/require"
)

func newMessage(roomID domain.RoomID, sender domain.Participant, content string) event.MessagePosted {
	return event.MessagePosted{
		Message: domain.NewMessage(roomID, sender, content, time.Now().UTC()),
	}
}

func TestBroadcaster_Delivers_To_All_Others_Never_To_Sender(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	broadcaster := NewBroadcaster(registry, slog.Default())
	roomID := domain.RoomID("lobby")
	connA := &fakeConn{}
	connB := &fakeConn{}
	connC := &fakeConn{}
	registry.Attach(roomID, agent("a1"), connA)
	registry.Attach(roomID, agent("b1"), connB)
	registry.Attach(roomID, agent("c1"), connC)

	// When A broadcasts a message
	delivered := broadcaster.Broadcast(roomID, newMessage(roomID, agent("a1"), "hello"), connA)

	// Then exactly B and C receive it, A receives nothing
	req.Equal(2, delivered)
	req.Len(connB.received(), 1)
	req.Len(connC.received(), 1)
	req.Empty(connA.received())
}

func TestBroadcaster_Failed_Recipient_Is_Evicted_Broadcast_Continues(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	broadcaster := NewBroadcaster(registry, slog.Default())
	roomID := domain.RoomID("lobby")
	connA := &fakeConn{}
	connB := &fakeConn{failing: true}
	connC := &fakeConn{}
	registry.Attach(roomID, agent("a1"), connA)
	registry.Attach(roomID, agent("b1"), connB)
	registry.Attach(roomID, agent("c1"), connC)

	// When a broadcast hits B's broken transport
	delivered := broadcaster.Broadcast(roomID, newMessage(roomID, agent("a1"), "hello"), connA)

	// Then C still receives the event
	req.Equal(1, delivered)
	req.Len(connC.received(), 1)

	// And B is absent from the roster immediately after
	roster := registry.Snapshot(roomID)
	ids := make([]string, 0, len(roster))
	for _, p := range roster {
		ids = append(ids, p.AgentID)
	}
	req.Equal([]string{"a1", "c1"}, ids)
}

func TestBroadcaster_Empty_Room_Delivers_Zero(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	broadcaster := NewBroadcaster(registry, slog.Default())
	roomID := domain.RoomID("ghost")

	delivered := broadcaster.Broadcast(roomID, newMessage(roomID, agent("a1"), "anyone here?"), nil)

	req.Zero(delivered)
}

func TestBroadcaster_Join_Then_Leave_Ordering_Per_Recipient(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	broadcaster := NewBroadcaster(registry, slog.Default())
	roomID := domain.RoomID("lobby")
	connA := &fakeConn{}
	connB := &fakeConn{}
	registry.Attach(roomID, agent("a1"), connA)
	registry.Attach(roomID, agent("b1"), connB)

	// When C joins and then leaves
	connC := &fakeConn{}
	registry.Attach(roomID, agent("c1"), connC)
	broadcaster.AnnounceJoin(roomID, agent("c1"), connC)
	registry.Detach(roomID, connC)
	broadcaster.AnnounceLeave(roomID, agent("c1"), connC)

	// Then every other session saw join strictly before leave for c1
	for _, conn := range []*fakeConn{connA, connB} {
		events := conn.received()
		req.Len(events, 2)

		joined, ok := events[0].(event.Joined)
		req.True(ok)
		req.Equal("c1", joined.Agent.AgentID)

		left, ok := events[1].(event.Left)
		req.True(ok)
		req.Equal("c1", left.Agent.AgentID)
	}

	// And C itself heard nothing about its own join or leave
	req.Empty(connC.received())
}

func TestBroadcaster_Announcements_Exclude_Subject_Session(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	broadcaster := NewBroadcaster(registry, slog.Default())
	roomID := domain.RoomID("lobby")
	connA := &fakeConn{}
	connB := &fakeConn{}
	registry.Attach(roomID, agent("a1"), connA)
	registry.Attach(roomID, agent("b1"), connB)

	delivered := broadcaster.AnnounceJoin(roomID, agent("b1"), connB)

	req.Equal(1, delivered)
	req.Len(connA.received(), 1)
	req.Empty(connB.received())
}
