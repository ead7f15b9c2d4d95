package services

import (
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"roomcast/domain"
	"roomcast/domain/event"
	"roomcast/errors"
	"roomcast/repositories"
	"roomcast/runtime"
)

type fakeConn struct {
	mu      sync.Mutex
	events  []event.DomainEvent
	failing bool
	closed  bool
}

func (c *fakeConn) Send(e event.DomainEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing || c.closed {
		return errors.ErrConnClosed
	}
	c.events = append(c.events, e)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) received() []event.DomainEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]event.DomainEvent(nil), c.events...)
}

type fakeRecorder struct {
	mu       sync.Mutex
	recorded []domain.Message
}

func (r *fakeRecorder) Record(m domain.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recorded = append(r.recorded, m)
}

func (r *fakeRecorder) messages() []domain.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Message(nil), r.recorded...)
}

type fakeRepository struct {
	pages []repositories.DiskMessage
}

func (r *fakeRepository) StoreMessage(_ repositories.DiskMessage) error { return nil }

func (r *fakeRepository) GetMessages(_ domain.RoomID, _ *string) ([]repositories.DiskMessage, *string, error) {
	return r.pages, nil, nil
}

func newService(recorder *fakeRecorder) *RoomService {
	registry := runtime.NewRegistry()
	broadcaster := runtime.NewBroadcaster(registry, slog.Default())
	return NewRoomService(registry, broadcaster, recorder, &fakeRepository{}, slog.Default())
}

func agent(id string) domain.Participant {
	return domain.Participant{AgentID: id, Name: "Agent " + id, Avatar: "🤖"}
}

func TestRoomService_Join_Sends_Roster_To_Newcomer_And_Announces_To_Others(t *testing.T) {
	req := require.New(t)
	service := newService(&fakeRecorder{})
	roomID := domain.RoomID("lobby")
	connA := &fakeConn{}
	connB := &fakeConn{}
	service.Join(roomID, agent("a1"), connA)
	service.Join(roomID, agent("b1"), connB)

	// When a third agent joins
	connC := &fakeConn{}
	service.Join(roomID, agent("c1"), connC)

	// Then C receives exactly one roster event listing A and B in attach order
	events := connC.received()
	req.Len(events, 1)
	roster, ok := events[0].(event.Roster)
	req.True(ok)
	ids := make([]string, 0, len(roster.Agents))
	for _, p := range roster.Agents {
		ids = append(ids, p.AgentID)
	}
	req.Equal([]string{"a1", "b1"}, ids)

	// And A and B each receive exactly one join event for C
	for _, conn := range []*fakeConn{connA, connB} {
		joins := 0
		for _, e := range conn.received() {
			if joined, ok := e.(event.Joined); ok && joined.Agent.AgentID == "c1" {
				joins++
			}
		}
		req.Equal(1, joins)
	}
}

func TestRoomService_Post_Broadcasts_To_Others_And_Records(t *testing.T) {
	req := require.New(t)
	recorder := &fakeRecorder{}
	service := newService(recorder)
	roomID := domain.RoomID("lobby")
	connA := &fakeConn{}
	connB := &fakeConn{}
	service.Join(roomID, agent("a1"), connA)
	service.Join(roomID, agent("b1"), connB)

	// When A posts a message
	posted := service.Post(roomID, agent("a1"), "hello", connA)

	// Then the message carries a server-assigned id and timestamp
	req.NotEmpty(posted.ID)
	req.False(posted.At.IsZero())

	// And B receives it while A does not hear its own message
	var received []event.MessagePosted
	for _, e := range connB.received() {
		if m, ok := e.(event.MessagePosted); ok {
			received = append(received, m)
		}
	}
	req.Len(received, 1)
	req.Equal("hello", received[0].Message.Content)
	req.Equal("a1", received[0].Message.Sender.AgentID)
	for _, e := range connA.received() {
		_, ok := e.(event.MessagePosted)
		req.False(ok)
	}

	// And the same message reached the history recorder
	recorded := recorder.messages()
	req.Len(recorded, 1)
	req.Equal(posted.ID, recorded[0].ID)
}

func TestRoomService_NotifyTyping_Is_Broadcast_Not_Recorded(t *testing.T) {
	req := require.New(t)
	recorder := &fakeRecorder{}
	service := newService(recorder)
	roomID := domain.RoomID("lobby")
	connA := &fakeConn{}
	connB := &fakeConn{}
	service.Join(roomID, agent("a1"), connA)
	service.Join(roomID, agent("b1"), connB)

	service.NotifyTyping(roomID, agent("a1"), connA)

	typings := 0
	for _, e := range connB.received() {
		if _, ok := e.(event.Typing); ok {
			typings++
		}
	}
	req.Equal(1, typings)
	req.Empty(recorder.messages())
}

func TestRoomService_Leave_Announces_Departure_Once(t *testing.T) {
	req := require.New(t)
	service := newService(&fakeRecorder{})
	roomID := domain.RoomID("lobby")
	connA := &fakeConn{}
	connB := &fakeConn{}
	service.Join(roomID, agent("a1"), connA)
	service.Join(roomID, agent("b1"), connB)

	// When B leaves twice (close then error path)
	service.Leave(roomID, connB)
	service.Leave(roomID, connB)

	// Then A hears exactly one leave event for b1, and B hears nothing about it
	leaves := 0
	for _, e := range connA.received() {
		if left, ok := e.(event.Left); ok && left.Agent.AgentID == "b1" {
			leaves++
		}
	}
	req.Equal(1, leaves)
	for _, e := range connB.received() {
		_, ok := e.(event.Left)
		req.False(ok)
	}
	req.Len(service.Roster(roomID), 1)
}

func TestRoomService_Roster_Works_Without_Connection(t *testing.T) {
	req := require.New(t)
	service := newService(&fakeRecorder{})
	roomID := domain.RoomID("lobby")
	service.Join(roomID, agent("a1"), &fakeConn{})
	service.Join(roomID, agent("b1"), &fakeConn{})

	roster := service.Roster(roomID)

	req.Len(roster, 2)
	req.Equal("a1", roster[0].AgentID)
	req.Equal("b1", roster[1].AgentID)
}
