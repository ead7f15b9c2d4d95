package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

// WebsocketDialer dials the broadcaster's push endpoint, carrying the
// identity as query parameters on the upgrade request.
type WebsocketDialer struct {
	BaseURL string // ws://host:port
	Room    string
	Agent   Agent
}

func (d WebsocketDialer) Dial(ctx context.Context) (PushConn, error) {
	query := url.Values{}
	query.Set("agent_id", d.Agent.AgentID)
	if d.Agent.Name != "" {
		query.Set("name", d.Agent.Name)
	}
	if d.Agent.Avatar != "" {
		query.Set("avatar", d.Agent.Avatar)
	}
	target := fmt.Sprintf("%s/ws/%s?%s", d.BaseURL, url.PathEscape(d.Room), query.Encode())

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return &websocketPush{conn: conn}, nil
}

type websocketPush struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

type wireFrame struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp string          `json:"timestamp"`
}

func (p *websocketPush) ReadEvent() (Event, error) {
	_, raw, err := p.conn.ReadMessage()
	if err != nil {
		return Event{}, err
	}

	var frame wireFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return Event{}, err
	}

	evt := Event{Type: frame.Type, Timestamp: frame.Timestamp}
	switch frame.Type {
	case "message":
		var data struct {
			ID      string `json:"id"`
			Content string `json:"content"`
			Agent
		}
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			return Event{}, err
		}
		evt.ID = data.ID
		evt.Content = data.Content
		evt.Agent = data.Agent
	case "join", "leave", "typing":
		if err := json.Unmarshal(frame.Data, &evt.Agent); err != nil {
			return Event{}, err
		}
	case "agents":
		if err := json.Unmarshal(frame.Data, &evt.Agents); err != nil {
			return Event{}, err
		}
	case "error":
		var data struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			return Event{}, err
		}
		evt.Content = data.Message
	}
	return evt, nil
}

func (p *websocketPush) SendMessage(content string) error {
	return p.write(map[string]any{"type": "message", "data": content})
}

func (p *websocketPush) SendTyping() error {
	return p.write(map[string]any{"type": "typing", "data": nil})
}

func (p *websocketPush) write(v any) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return p.conn.WriteJSON(v)
}

func (p *websocketPush) Close() error {
	return p.conn.Close()
}

// HTTPFetcher is the pull path, backed by the history endpoint.
type HTTPFetcher struct {
	BaseURL string // http://host:port
	Room    string
	Client  *http.Client
}

func (f HTTPFetcher) FetchLatest(ctx context.Context) ([]Event, error) {
	httpClient := f.Client
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	target := fmt.Sprintf("%s/rooms/%s/messages", f.BaseURL, url.PathEscape(f.Room))
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}

	response, err := httpClient.Do(request)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("history endpoint answered %d", response.StatusCode)
	}

	var body struct {
		Messages []historyMessage `json:"messages"`
	}
	if err := json.NewDecoder(response.Body).Decode(&body); err != nil {
		return nil, err
	}

	return lo.Map(body.Messages, func(m historyMessage, _ int) Event {
		return Event{
			ID:        m.ID,
			Type:      "message",
			Agent:     Agent{AgentID: m.AgentID, Name: m.Name, Avatar: m.Avatar},
			Content:   m.Content,
			Timestamp: m.Timestamp,
		}
	}), nil
}

type historyMessage struct {
	ID        string `json:"id"`
	AgentID   string `json:"agent_id"`
	Name      string `json:"name"`
	Avatar    string `json:"avatar"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}
