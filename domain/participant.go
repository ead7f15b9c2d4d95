package domain

// Placeholders applied when a connection omits identity fields.
const (
	DefaultName   = "Anonymous"
	DefaultAvatar = "👤"
)

// Participant is the identity bound to a connection for a room's duration.
// AgentID is caller-supplied and unique within a room for the session's
// lifetime; it is never validated globally.
type Participant struct {
	AgentID string `json:"agent_id"`
	Name    string `json:"name"`
	Avatar  string `json:"avatar"`
}

// WithDefaults fills missing display fields with placeholders.
func (p Participant) WithDefaults() Participant {
	if p.Name == "" {
		p.Name = DefaultName
	}
	if p.Avatar == "" {
		p.Avatar = DefaultAvatar
	}
	return p
}
