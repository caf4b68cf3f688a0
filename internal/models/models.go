package models

import "time"

// Mode selects the response strategy for a chat turn.
type Mode string

const (
	ModeProspecting Mode = "prospecting"
	ModeAnalysis    Mode = "analysis"
	ModeManagement  Mode = "management"
	ModeAssistant   Mode = "assistant"
)

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeProspecting, ModeAnalysis, ModeManagement, ModeAssistant:
		return true
	}
	return false
}

// Role is the author of a persisted message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Conversation is a chat transcript owned by a single user.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Mode      Mode      `json:"mode"`
	UserID    string    `json:"user_id"`
	ThreadID  string    `json:"thread_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one append-only entry of a conversation.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Interaction is a write-once telemetry row for every user message.
type Interaction struct {
	UserID    string    `json:"user_id"`
	Message   string    `json:"message"`
	Mode      Mode      `json:"mode"`
	CreatedAt time.Time `json:"created_at"`
}

// ConversationPatch carries a partial update; nil fields are left untouched.
type ConversationPatch struct {
	Title    *string
	Mode     *Mode
	ThreadID *string
}
