package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"deepchat/internal/models"
)

func TestAnthropicStream(t *testing.T) {
	var gotReq anthropicRequest
	var gotVersion, gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotVersion = r.Header.Get("Anthropic-Version")
		gotKey = r.Header.Get("X-Api-Key")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		lines := []string{
			`event: message_start`,
			`data: {"type":"message_start"}`,
			``,
			`data: {"type":"content_block_delta","delta":{"type":"thinking_delta","thinking":"pondering"}}`,
			``,
			`data: this line is not json`,
			``,
			`data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"Hello"}}`,
			``,
			`data: {"type":"content_block_delta","delta":{"type":"text_delta","text":" world"}}`,
			``,
			`data: {"type":"message_stop"}`,
			``,
		}
		for _, line := range lines {
			fmt.Fprintf(w, "%s\n", line)
		}
	}))
	defer server.Close()

	s := &anthropicStreamer{baseURL: server.URL, apiKey: "sk-test"}
	stream, err := s.Stream(context.Background(), Request{
		Model:        "claude-3-5-sonnet",
		SystemPrompt: "stay terse",
		Messages: []models.Message{
			{Role: models.RoleSystem, Content: "stored instruction"},
			{Role: models.RoleUser, Content: "hi"},
		},
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer stream.Close()

	if gotVersion != anthropicVersion {
		t.Fatalf("anthropic-version = %q", gotVersion)
	}
	if gotKey != "sk-test" {
		t.Fatalf("x-api-key = %q", gotKey)
	}
	if gotReq.System != "stay terse\n\nstored instruction" {
		t.Fatalf("system = %q", gotReq.System)
	}
	if len(gotReq.Messages) != 1 || gotReq.Messages[0].Role != "user" {
		t.Fatalf("system turns must not stay in the message list: %+v", gotReq.Messages)
	}
	if !gotReq.Stream || gotReq.MaxTokens != anthropicMaxTokens {
		t.Fatalf("stream=%v max_tokens=%d", gotReq.Stream, gotReq.MaxTokens)
	}

	want := []Event{
		{Kind: KindReasoning, Text: "pondering"},
		{Kind: KindAnswer, Text: "Hello"},
		{Kind: KindAnswer, Text: " world"},
	}
	for i, expected := range want {
		got, err := stream.Recv()
		if err != nil {
			t.Fatalf("Recv %d: %v", i, err)
		}
		if got != expected {
			t.Fatalf("event %d = %+v, want %+v", i, got, expected)
		}
	}
	if _, err := stream.Recv(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF after message_stop, got %v", err)
	}
}

func TestAnthropicStreamErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"type":"error","error":{"type":"invalid_request_error","message":"max_tokens required"}}`)
	}))
	defer server.Close()

	s := &anthropicStreamer{baseURL: server.URL, apiKey: "sk-test"}
	_, err := s.Stream(context.Background(), Request{
		Model:    "claude-3-5-sonnet",
		Messages: []models.Message{{Role: models.RoleUser, Content: "hi"}},
	})
	var upErr *Error
	if !errors.As(err, &upErr) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if upErr.Status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", upErr.Status)
	}
	if upErr.Detail == "" {
		t.Fatalf("expected error body snippet")
	}
}

func TestAnthropicStreamEndsWithoutStop(t *testing.T) {
	// A short upstream read with no message_stop still terminates cleanly.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"partial\"}}\n\n")
	}))
	defer server.Close()

	s := &anthropicStreamer{baseURL: server.URL, apiKey: "sk-test"}
	stream, err := s.Stream(context.Background(), Request{
		Model:    "claude-3-5-sonnet",
		Messages: []models.Message{{Role: models.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer stream.Close()

	got, err := stream.Recv()
	if err != nil || got.Text != "partial" {
		t.Fatalf("Recv = %+v, %v", got, err)
	}
	if _, err := stream.Recv(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
}
