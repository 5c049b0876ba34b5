package models

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one turn inside a chat. ReasoningContent carries the
// provider-exposed chain-of-thought and is only ever populated on
// assistant messages; it stays empty for providers that do not emit one.
type Message struct {
	ID               int64     `json:"id"`
	UserID           int64     `json:"user_id"`
	ChatID           int64     `json:"chat_id"`
	Role             Role      `json:"role"`
	Content          string    `json:"content"`
	ReasoningContent string    `json:"reasoning_content,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}
