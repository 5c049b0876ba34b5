package upstream

import (
	"context"
	"errors"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"deepchat/internal/models"
)

const (
	// historyWindow bounds how much conversation is sent upstream. Older
	// turns are dropped outright, not summarized.
	historyWindow = 5

	maxTokensDefault  = 2000
	maxTokensReasoner = 8192

	defaultTemperature = 0.7
)

// openAIStreamer issues streaming chat-completion calls against any
// OpenAI-compatible endpoint.
type openAIStreamer struct {
	baseURL string
	apiKey  string
}

// isReasonerModel reports whether the model id names a deep-thinking
// variant. Those reject sampling parameters and ignore system prompts.
func isReasonerModel(model string) bool {
	return strings.Contains(strings.ToLower(model), "reasoner")
}

func (s *openAIStreamer) Stream(ctx context.Context, req Request) (Stream, error) {
	cfg := openai.DefaultConfig(s.apiKey)
	if s.baseURL != "" {
		cfg.BaseURL = s.baseURL
	}
	client := openai.NewClientWithConfig(cfg)

	inner, err := client.CreateChatCompletionStream(ctx, s.buildRequest(req))
	if err != nil {
		return nil, translateOpenAIError(err)
	}
	return &openAIStream{inner: inner}, nil
}

func (s *openAIStreamer) buildRequest(req Request) openai.ChatCompletionRequest {
	reasoner := isReasonerModel(req.Model)

	history := req.Messages
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}

	var messages []openai.ChatCompletionMessage
	if req.SystemPrompt != "" && !reasoner {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	for _, msg := range history {
		if reasoner && msg.Role == models.RoleSystem {
			continue
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	out := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: messages,
	}
	if reasoner {
		out.MaxTokens = maxTokensReasoner
	} else {
		out.MaxTokens = maxTokensDefault
		out.Temperature = defaultTemperature
	}
	return out
}

func translateOpenAIError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &Error{Status: apiErr.HTTPStatusCode, Detail: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &Error{Status: reqErr.HTTPStatusCode, Detail: reqErr.Error()}
	}
	return &Error{Detail: err.Error()}
}

// openAIStream adapts the go-openai stream into normalized events. A delta
// may carry reasoning and answer text at once; both are forwarded as two
// events preserving arrival order.
type openAIStream struct {
	inner   *openai.ChatCompletionStream
	pending []Event
}

func (s *openAIStream) Recv() (Event, error) {
	for {
		if len(s.pending) > 0 {
			ev := s.pending[0]
			s.pending = s.pending[1:]
			return ev, nil
		}
		resp, err := s.inner.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return Event{}, io.EOF
			}
			return Event{}, translateOpenAIError(err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta
		if delta.ReasoningContent != "" {
			s.pending = append(s.pending, Event{Kind: KindReasoning, Text: delta.ReasoningContent})
		}
		if delta.Content != "" {
			s.pending = append(s.pending, Event{Kind: KindAnswer, Text: delta.Content})
		}
	}
}

func (s *openAIStream) Close() error {
	return s.inner.Close()
}
