package models

import "time"

// Chat groups an ordered sequence of messages. A chat with no messages
// is a valid draft state and gets reused by "new chat".
type Chat struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
