// Package rest exposes the two read-only surfaces the surrounding system
// needs from the core: room presence and recent message history. The
// history endpoint also serves the client's fallback poller.
package rest

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"

	"roomcast/domain"
	"roomcast/repositories"
	"roomcast/services"
)

type Handler struct {
	svc services.IRoomService
	log *slog.Logger
}

func NewHandler(svc services.IRoomService, log *slog.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/rooms/{room}/agents", h.agents)
	r.Get("/rooms/{room}/messages", h.messages)
}

type agentDTO struct {
	AgentID string `json:"agent_id"`
	Name    string `json:"name"`
	Avatar  string `json:"avatar"`
}

type agentsResponse struct {
	Agents []agentDTO `json:"agents"`
	Count  int        `json:"count"`
}

type messageDTO struct {
	ID        string `json:"id"`
	AgentID   string `json:"agent_id"`
	Name      string `json:"name"`
	Avatar    string `json:"avatar"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

type messagesResponse struct {
	Messages []messageDTO `json:"messages"`
	Cursor   *string      `json:"cursor,omitempty"`
}

// agents answers presence queries without requiring an open connection.
func (h *Handler) agents(w http.ResponseWriter, r *http.Request) {
	roomID := domain.RoomID(chi.URLParam(r, "room"))
	if !roomID.Valid() {
		http.Error(w, "room is required", http.StatusBadRequest)
		return
	}

	roster := h.svc.Roster(roomID)
	response := agentsResponse{
		Agents: lo.Map(roster, func(p domain.Participant, _ int) agentDTO {
			return agentDTO{AgentID: p.AgentID, Name: p.Name, Avatar: p.Avatar}
		}),
		Count: len(roster),
	}
	h.writeJSON(w, response)
}

func (h *Handler) messages(w http.ResponseWriter, r *http.Request) {
	roomID := domain.RoomID(chi.URLParam(r, "room"))
	if !roomID.Valid() {
		http.Error(w, "room is required", http.StatusBadRequest)
		return
	}

	var cursor *string
	if raw := r.URL.Query().Get("cursor"); raw != "" {
		cursor = &raw
	}

	messages, next, err := h.svc.History(roomID, cursor)
	if err != nil {
		h.log.Error("History read failed", "room", roomID, "error", err)
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}

	response := messagesResponse{
		Messages: lo.Map(messages, func(m repositories.DiskMessage, _ int) messageDTO {
			return messageDTO{
				ID:        m.ID.String(),
				AgentID:   m.AgentID,
				Name:      m.Name,
				Avatar:    m.Avatar,
				Content:   m.Content,
				Timestamp: m.At.UTC().Format(time.RFC3339Nano),
			}
		}),
		Cursor: next,
	}
	h.writeJSON(w, response)
}

func (h *Handler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Debug("Response write failed", "error", err)
	}
}
