package upstream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"deepchat/internal/models"
)

const (
	anthropicVersion   = "2023-06-01"
	anthropicMaxTokens = 3000
	errBodyLimit       = 2048
)

// anthropicStreamer speaks the Anthropic messages API directly and parses
// the provider's own SSE framing.
type anthropicStreamer struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
	MaxTokens int                `json:"max_tokens"`
	Stream    bool               `json:"stream"`
}

func (s *anthropicStreamer) Stream(ctx context.Context, req Request) (Stream, error) {
	body, err := json.Marshal(s.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("encode anthropic request: %w", err)
	}

	url := strings.TrimRight(s.baseURL, "/") + "/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build anthropic request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("X-Api-Key", s.apiKey)
	httpReq.Header.Set("Anthropic-Version", anthropicVersion)

	client := s.httpClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, &Error{Detail: err.Error()}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errBodyLimit))
		resp.Body.Close()
		return nil, &Error{Status: resp.StatusCode, Detail: strings.TrimSpace(string(snippet))}
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	return &anthropicStream{body: resp.Body, scanner: scanner}, nil
}

// buildRequest extracts system-role messages into the dedicated top-level
// field; the Anthropic API rejects system turns inside the message list.
func (s *anthropicStreamer) buildRequest(req Request) anthropicRequest {
	var systemParts []string
	if req.SystemPrompt != "" {
		systemParts = append(systemParts, req.SystemPrompt)
	}
	var messages []anthropicMessage
	for _, msg := range req.Messages {
		if msg.Role == models.RoleSystem {
			systemParts = append(systemParts, msg.Content)
			continue
		}
		messages = append(messages, anthropicMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}
	return anthropicRequest{
		Model:     req.Model,
		System:    strings.Join(systemParts, "\n\n"),
		Messages:  messages,
		MaxTokens: anthropicMaxTokens,
		Stream:    true,
	}
}

type anthropicFrame struct {
	Type  string `json:"type"`
	Delta struct {
		Type     string `json:"type"`
		Text     string `json:"text"`
		Thinking string `json:"thinking"`
	} `json:"delta"`
}

// anthropicStream walks the provider SSE line by line. A content-delta
// frame carries either a text delta or a thinking delta; malformed frames
// are skipped, not fatal.
type anthropicStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
}

func (s *anthropicStream) Recv() (Event, error) {
	for s.scanner.Scan() {
		line := s.scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}
		var frame anthropicFrame
		if err := json.Unmarshal([]byte(payload), &frame); err != nil {
			continue
		}
		switch frame.Type {
		case "content_block_delta":
			switch frame.Delta.Type {
			case "text_delta":
				if frame.Delta.Text != "" {
					return Event{Kind: KindAnswer, Text: frame.Delta.Text}, nil
				}
			case "thinking_delta":
				if frame.Delta.Thinking != "" {
					return Event{Kind: KindReasoning, Text: frame.Delta.Thinking}, nil
				}
			}
		case "message_stop":
			return Event{}, io.EOF
		}
	}
	if err := s.scanner.Err(); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Event{}, err
		}
		return Event{}, &Error{Detail: err.Error()}
	}
	return Event{}, io.EOF
}

func (s *anthropicStream) Close() error {
	return s.body.Close()
}
