package upstream

import (
	"context"
	"fmt"

	"deepchat/internal/models"
)

// EventKind discriminates the two logical sub-streams a provider can emit.
type EventKind int

const (
	// KindReasoning is provider-exposed chain-of-thought text.
	KindReasoning EventKind = iota
	// KindAnswer is visible answer text.
	KindAnswer
)

// Event is one normalized delta from an upstream completion stream.
type Event struct {
	Kind EventKind
	Text string
}

// Stream is a lazy, cancellable sequence of events. Recv returns io.EOF
// once the upstream completion finishes; an empty stream that ends cleanly
// is a valid zero-output completion, not an error.
type Stream interface {
	Recv() (Event, error)
	Close() error
}

// Error reports a failed upstream call. Status is zero for pure
// transport failures where no HTTP status was received.
type Error struct {
	Status int
	Detail string
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("upstream status %d: %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("upstream: %s", e.Detail)
}

// Request is the provider-agnostic form of one streaming completion call.
// Callers must strip stored reasoning content from historical assistant
// messages first (see StripReasoning); providers reject it as input.
type Request struct {
	Messages     []models.Message
	Model        string
	SystemPrompt string
}

// Streamer opens a streaming completion request against one provider family.
type Streamer interface {
	Stream(ctx context.Context, req Request) (Stream, error)
}

// Family is the closed set of supported upstream wire formats.
type Family int

const (
	// FamilyOpenAI covers the builtin default plus every user-supplied
	// OpenAI-compatible endpoint (openai, gemini, custom).
	FamilyOpenAI Family = iota
	// FamilyAnthropic speaks the Anthropic messages API.
	FamilyAnthropic
)

// FamilyFor maps a declared provider kind onto its wire format.
func FamilyFor(provider string) Family {
	switch provider {
	case models.ProviderClaude:
		return FamilyAnthropic
	default:
		return FamilyOpenAI
	}
}

// Endpoint selects a concrete upstream target.
type Endpoint struct {
	Family  Family
	BaseURL string
	APIKey  string
}

// New returns the adapter implementation for the endpoint's family.
func New(ep Endpoint) Streamer {
	switch ep.Family {
	case FamilyAnthropic:
		return &anthropicStreamer{baseURL: ep.BaseURL, apiKey: ep.APIKey}
	default:
		return &openAIStreamer{baseURL: ep.BaseURL, apiKey: ep.APIKey}
	}
}

// StripReasoning returns a copy of the history with reasoning content
// removed. Providers reject previously emitted reasoning echoed back as
// conversation history.
func StripReasoning(messages []models.Message) []models.Message {
	out := make([]models.Message, len(messages))
	for i, msg := range messages {
		msg.ReasoningContent = ""
		out[i] = msg
	}
	return out
}
