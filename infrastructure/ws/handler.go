// Package ws is the push transport of the broadcaster: it upgrades HTTP
// requests to websocket connections and drives the per-connection protocol
// state machine (connecting -> open -> closed).
package ws

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"roomcast/domain"
	"roomcast/domain/event"
	"roomcast/services"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

type Handler struct {
	svc      services.IRoomService
	log      *slog.Logger
	upgrader websocket.Upgrader
}

func NewHandler(svc services.IRoomService, log *slog.Logger) *Handler {
	return &Handler{
		svc: svc,
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin policy belongs to the surrounding system.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/ws/{room}", h.Serve)
}

// Serve handles one connection for its whole lifetime. Identity travels as
// query parameters on the upgrade request: agent_id (required), name and
// avatar (placeholders applied when absent).
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	roomID := domain.RoomID(chi.URLParam(r, "room"))
	query := r.URL.Query()
	agent := domain.Participant{
		AgentID: query.Get("agent_id"),
		Name:    query.Get("name"),
		Avatar:  query.Get("avatar"),
	}.WithDefaults()

	if !roomID.Valid() || agent.AgentID == "" {
		http.Error(w, "room and agent_id are required", http.StatusBadRequest)
		return
	}

	socket, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("Upgrade failed", "room", roomID, "error", err)
		return
	}

	conn := NewConn(socket, writeWait)
	h.svc.Join(roomID, agent, conn)
	h.log.Info("Agent connected", "room", roomID, "agent_id", agent.AgentID)

	h.readLoop(roomID, agent, socket, conn)
}

// readLoop is the open state: it accepts frames until the transport closes
// or errors, both handled identically as the open -> closed transition.
func (h *Handler) readLoop(roomID domain.RoomID, agent domain.Participant, socket *websocket.Conn, conn *Conn) {
	defer func() {
		h.svc.Leave(roomID, conn)
		_ = conn.Close()
		h.log.Info("Agent disconnected", "room", roomID, "agent_id", agent.AgentID)
	}()

	socket.SetReadLimit(maxMessageSize)
	_ = socket.SetReadDeadline(time.Now().Add(pongWait))
	socket.SetPongHandler(func(string) error {
		return socket.SetReadDeadline(time.Now().Add(pongWait))
	})

	stop := make(chan struct{})
	defer close(stop)
	go h.keepAlive(socket, stop)

	for {
		_, raw, err := socket.ReadMessage()
		if err != nil {
			return
		}
		h.handleFrame(roomID, agent, conn, raw)
	}
}

// handleFrame is the open -> open self-loop. Only message and typing are
// accepted from clients; anything else earns the sender a single error
// frame and the connection stays open.
func (h *Handler) handleFrame(roomID domain.RoomID, agent domain.Participant, conn *Conn, raw []byte) {
	frame, err := decodeInbound(raw)
	if err != nil {
		h.reject(roomID, conn, "malformed frame")
		return
	}

	switch event.Kind(frame.Type) {
	case event.KindMessage:
		content, err := frame.content()
		if err != nil {
			h.reject(roomID, conn, "malformed message payload")
			return
		}
		h.svc.Post(roomID, agent, content, conn)
	case event.KindTyping:
		h.svc.NotifyTyping(roomID, agent, conn)
	default:
		h.reject(roomID, conn, fmt.Sprintf("unsupported frame type %q", frame.Type))
	}
}

// reject reports a protocol violation to the offending sender only.
func (h *Handler) reject(roomID domain.RoomID, conn *Conn, reason string) {
	rejection := event.Rejected{Room: roomID, Reason: reason, At: time.Now().UTC()}
	if err := conn.Send(rejection); err != nil {
		h.log.Debug("Failed to deliver error frame", "room", roomID, "error", err)
	}
}

func (h *Handler) keepAlive(socket *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			deadline := time.Now().Add(writeWait)
			if err := socket.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}
