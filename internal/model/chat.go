package model

import "time"

// TitleMaxLen is the number of characters of the first prompt kept as chat title.
const TitleMaxLen = 50

// Chat represents a single conversation owned by exactly one user.
// Chats are created lazily on the first prompt and never deleted here.
type Chat struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Title      string    `json:"title"`
	TokensUsed int64     `json:"tokens_used"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ChatSummary is a chat with its message count for listings.
type ChatSummary struct {
	Chat
	MessageCount int64 `json:"message_count"`
}

// DeriveTitle builds a chat title from the first prompt text.
// The first TitleMaxLen characters are kept, with an ellipsis marker
// appended when the prompt was truncated.
func DeriveTitle(prompt string) string {
	runes := []rune(prompt)
	if len(runes) <= TitleMaxLen {
		return prompt
	}
	return string(runes[:TitleMaxLen]) + "..."
}
