package ws

import (
	"encoding/json"
	"time"

	"github.com/samber/lo"

	"roomcast/domain"
	"roomcast/domain/event"
	"roomcast/errors"
)

// Frame is the wire shape of every outbound event: {type, data, timestamp}.
// The timestamp is assigned server-side at broadcast time, ISO-8601.
type Frame struct {
	Type      string `json:"type"`
	Data      any    `json:"data"`
	Timestamp string `json:"timestamp,omitempty"`
}

type presencePayload struct {
	AgentID string `json:"agent_id"`
	Name    string `json:"name"`
	Avatar  string `json:"avatar"`
}

type typingPayload struct {
	AgentID string `json:"agent_id"`
	Name    string `json:"name"`
}

type messagePayload struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	AgentID string `json:"agent_id"`
	Name    string `json:"name"`
	Avatar  string `json:"avatar"`
}

type errorPayload struct {
	Message string `json:"message"`
}

func toPresence(p domain.Participant) presencePayload {
	return presencePayload{AgentID: p.AgentID, Name: p.Name, Avatar: p.Avatar}
}

// EncodeFrame maps a domain event onto its wire frame. The switch is
// exhaustive over the closed event set.
func EncodeFrame(e event.DomainEvent) Frame {
	timestamp := e.OccurredAt().UTC().Format(time.RFC3339Nano)
	switch evt := e.(type) {
	case event.Roster:
		return Frame{
			Type: string(event.KindAgents),
			Data: lo.Map(evt.Agents, func(p domain.Participant, _ int) presencePayload {
				return toPresence(p)
			}),
			Timestamp: timestamp,
		}
	case event.Joined:
		return Frame{Type: string(event.KindJoin), Data: toPresence(evt.Agent), Timestamp: timestamp}
	case event.Left:
		return Frame{Type: string(event.KindLeave), Data: toPresence(evt.Agent), Timestamp: timestamp}
	case event.MessagePosted:
		m := evt.Message
		return Frame{
			Type: string(event.KindMessage),
			Data: messagePayload{
				ID:      m.ID.String(),
				Content: m.Content,
				AgentID: m.Sender.AgentID,
				Name:    m.Sender.Name,
				Avatar:  m.Sender.Avatar,
			},
			Timestamp: timestamp,
		}
	case event.Typing:
		return Frame{
			Type:      string(event.KindTyping),
			Data:      typingPayload{AgentID: evt.Agent.AgentID, Name: evt.Agent.Name},
			Timestamp: timestamp,
		}
	case event.Rejected:
		return Frame{Type: string(event.KindError), Data: errorPayload{Message: evt.Reason}, Timestamp: timestamp}
	default:
		return Frame{Type: string(event.KindError), Data: errorPayload{Message: "unknown event"}, Timestamp: timestamp}
	}
}

// inboundFrame is what clients are allowed to send: {type, data}.
type inboundFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func decodeInbound(raw []byte) (inboundFrame, error) {
	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return inboundFrame{}, errors.ErrMalformedFrame
	}
	if frame.Type == "" {
		return inboundFrame{}, errors.ErrMalformedFrame
	}
	return frame, nil
}

// content extracts the message text. Clients send either a bare string
// ({"type":"message","data":"hello"}) or an object with a content field.
func (f inboundFrame) content() (string, error) {
	var text string
	if err := json.Unmarshal(f.Data, &text); err == nil {
		return text, nil
	}
	var payload struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(f.Data, &payload); err != nil {
		return "", errors.ErrMalformedFrame
	}
	return payload.Content, nil
}
