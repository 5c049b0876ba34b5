package models

import "time"

// Prompt is a reusable system prompt profile. Preset prompts are seeded
// once per user and marked so the UI can distinguish them from custom ones.
type Prompt struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Name      string    `json:"name"`
	Content   string    `json:"content"`
	IsPreset  bool      `json:"is_preset"`
	CreatedAt time.Time `json:"created_at"`
}
