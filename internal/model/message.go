package model

import "time"

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// IsValid checks if the role is known.
func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message is a single turn within a chat. Messages are immutable once
// created; (created_at, seq) establishes the total order within a chat.
type Message struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Tokens    int64     `json:"tokens"`
	Seq       int64     `json:"-"` // insertion tie-break, assigned by the store
	CreatedAt time.Time `json:"created_at"`
}

// Turn is the role/content pair handed to the completion provider.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// AsTurn strips a message down to its provider payload.
func (m *Message) AsTurn() Turn {
	return Turn{Role: m.Role, Content: m.Content}
}
