package models

import "time"

// Known provider kinds. Everything except ProviderClaude speaks the
// OpenAI-compatible chat-completions wire format.
const (
	ProviderDeepSeek = "deepseek"
	ProviderOpenAI   = "openai"
	ProviderClaude   = "claude"
	ProviderGemini   = "gemini"
	ProviderCustom   = "custom"
)

// APIConfig is a user-supplied alternate upstream endpoint and credential.
// At most one config per user has IsActive set; activating one deactivates
// the others.
type APIConfig struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Provider  string    `json:"provider"`
	Name      string    `json:"name"`
	APIURL    string    `json:"api_url"`
	APIKey    string    `json:"api_key"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}
