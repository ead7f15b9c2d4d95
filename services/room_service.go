package services

import (
	"log/slog"
	"time"

	"roomcast/contract"
	"roomcast/domain"
	"roomcast/domain/event"
	"roomcast/repositories"
	"roomcast/runtime"
)

type IRoomService interface {
	Join(roomID domain.RoomID, agent domain.Participant, conn contract.Conn) *runtime.Session
	Leave(roomID domain.RoomID, conn contract.Conn)
	Post(roomID domain.RoomID, sender domain.Participant, content string, exclude contract.Conn) domain.Message
	NotifyTyping(roomID domain.RoomID, sender domain.Participant, exclude contract.Conn)
	Roster(roomID domain.RoomID) []domain.Participant
	History(roomID domain.RoomID, cursor *string) ([]repositories.DiskMessage, *string, error)
}

// RoomService ties the registry, the broadcast engine, and the history
// collaborator behind one interface consumed by the transport handlers.
type RoomService struct {
	registry    *runtime.Registry
	broadcaster *runtime.Broadcaster
	recorder    contract.Recorder
	repository  repositories.IMessageRepository
	log         *slog.Logger
}

func NewRoomService(registry *runtime.Registry, broadcaster *runtime.Broadcaster,
	recorder contract.Recorder, repository repositories.IMessageRepository,
	log *slog.Logger) *RoomService {
	return &RoomService{
		registry:    registry,
		broadcaster: broadcaster,
		recorder:    recorder,
		repository:  repository,
		log:         log,
	}
}

// Join attaches the connection to the room, replies to the newcomer with
// the current roster, and announces the join to everyone else. The roster
// frame is the only event a session ever receives about its own arrival.
func (s *RoomService) Join(roomID domain.RoomID, agent domain.Participant, conn contract.Conn) *runtime.Session {
	session := s.registry.Attach(roomID, agent, conn)

	// The roster lists the sessions that were already there: the newcomer
	// does not appear in its own snapshot.
	agents := make([]domain.Participant, 0)
	for _, p := range s.registry.Snapshot(roomID) {
		if p.AgentID != agent.AgentID {
			agents = append(agents, p)
		}
	}
	roster := event.Roster{
		Room:   roomID,
		Agents: agents,
		At:     time.Now().UTC(),
	}
	if err := conn.Send(roster); err != nil {
		// The connection may already be gone; the read loop will detach it.
		s.log.Debug("Failed to deliver roster to newcomer",
			"room", roomID, "agent_id", agent.AgentID, "error", err)
	}

	s.broadcaster.AnnounceJoin(roomID, agent, conn)
	return session
}

// Leave detaches the connection and announces the departure to the
// remaining sessions. Close and error are handled identically, and a
// second Leave for the same connection is a no-op.
func (s *RoomService) Leave(roomID domain.RoomID, conn contract.Conn) {
	if session := s.registry.Detach(roomID, conn); session != nil {
		s.broadcaster.AnnounceLeave(roomID, session.Agent, conn)
	}
}

// Post assigns the message its identifier and timestamp, fans it out to
// every other session, and hands it to the history recorder. Broadcast and
// persistence are independent, unordered side effects: neither waits for
// the other.
func (s *RoomService) Post(roomID domain.RoomID, sender domain.Participant, content string, exclude contract.Conn) domain.Message {
	message := domain.NewMessage(roomID, sender, content, time.Now().UTC())
	s.broadcaster.Broadcast(roomID, event.MessagePosted{Message: message}, exclude)
	s.recorder.Record(message)
	return message
}

// NotifyTyping fans out a typing signal. Typing events are never persisted.
func (s *RoomService) NotifyTyping(roomID domain.RoomID, sender domain.Participant, exclude contract.Conn) {
	s.broadcaster.Broadcast(roomID, event.Typing{
		Room:  roomID,
		Agent: sender,
		At:    time.Now().UTC(),
	}, exclude)
}

// Roster answers presence queries from the REST layer, usable without an
// open connection.
func (s *RoomService) Roster(roomID domain.RoomID) []domain.Participant {
	return s.registry.Snapshot(roomID)
}

// History reads back persisted messages newest first.
func (s *RoomService) History(roomID domain.RoomID, cursor *string) ([]repositories.DiskMessage, *string, error) {
	return s.repository.GetMessages(roomID, cursor)
}
