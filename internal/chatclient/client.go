// Package chatclient consumes the relay's SSE byte stream, reassembling
// the reasoning and answer sub-streams for progressive rendering.
package chatclient

import (
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

// Callback receives the full accumulated text so far, not an incremental
// delta. Consumers re-render by replacement; switching this to deltas
// would silently break them.
type Callback func(full string)

// Options carry per-send routing parameters, mirroring the relay request.
type Options struct {
	Model        string
	SystemPrompt string
	APIConfig    *models.APIConfig
}

// Result is the final pair of accumulated texts for one turn.
type Result struct {
	Content          string
	ReasoningContent string
}

// RequestError reports a non-2xx relay response.
type RequestError struct {
	Status int
	Detail string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("chat request failed (%d): %s", e.Status, e.Detail)
}

// Client talks to the relay endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient points the consumer at a relay base URL (e.g. http://host:8090).
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

type sendRequest struct {
	Messages     []models.Message `json:"messages"`
	Model        string           `json:"model,omitempty"`
	SystemPrompt string           `json:"systemPrompt,omitempty"`
	APIConfig    *apiConfig       `json:"apiConfig,omitempty"`
}

type apiConfig struct {
	Provider string `json:"provider"`
	APIURL   string `json:"apiUrl"`
	APIKey   string `json:"apiKey"`
}

// Send issues one streaming completion round trip. onAnswer and
// onReasoning fire per chunk with the cumulative text; either may be nil.
//
// Cancelling ctx aborts the read: Send then returns whatever had
// accumulated together with the context error, so the caller can persist
// the partial result instead of treating the abort as a failure.
func (c *Client) Send(ctx context.Context, messages []models.Message, opts Options, onAnswer, onReasoning Callback) (Result, error) {
	payload := sendRequest{
		Messages:     messages,
		Model:        opts.Model,
		SystemPrompt: opts.SystemPrompt,
	}
	if opts.APIConfig != nil {
		payload.APIConfig = &apiConfig{
			Provider: opts.APIConfig.Provider,
			APIURL:   opts.APIConfig.APIURL,
			APIKey:   opts.APIConfig.APIKey,
		}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fmt.Errorf("encode chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, readRequestError(resp)
	}

	return consumeStream(ctx, resp.Body, onAnswer, onReasoning)
}

func readRequestError(resp *http.Response) error {
	var errBody struct {
		Error   string `json:"error"`
		Details string `json:"details"`
	}
	detail := "Unknown error"
	if data, err := io.ReadAll(io.LimitReader(resp.Body, 4096)); err == nil {
		if json.Unmarshal(data, &errBody) == nil {
			if errBody.Details != "" {
				detail = errBody.Details
			} else if errBody.Error != "" {
				detail = errBody.Error
			}
		}
	}
	return &RequestError{Status: resp.StatusCode, Detail: detail}
}

type streamFrame struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// consumeStream parses the SSE byte stream incrementally. Events are
// newline-delimited and may span network chunks, so a carry-over buffer
// holds the trailing partial line between reads. Malformed data lines are
// skipped; only transport failures abort the parse.
func consumeStream(ctx context.Context, body io.Reader, onAnswer, onReasoning Callback) (Result, error) {
	var (
		res    Result
		carry  string
		buf    = make([]byte, 4096)
		readFn = func() (int, error) { return body.Read(buf) }
	)

	handleLine := func(line string) bool {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "data: ") {
			return false
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			return true
		}
		var frame streamFrame
		if err := json.Unmarshal([]byte(payload), &frame); err != nil {
			// Tolerate partial or corrupted upstream frames.
			return false
		}
		switch frame.Type {
		case "reasoning":
			res.ReasoningContent += frame.Content
			if onReasoning != nil {
				onReasoning(res.ReasoningContent)
			}
		case "content":
			res.Content += frame.Content
			if onAnswer != nil {
				onAnswer(res.Content)
			}
		}
		return false
	}

	for {
		n, err := readFn()
		if n > 0 {
			carry += string(buf[:n])
			lines := strings.Split(carry, "\n")
			// The last fragment may be incomplete; keep it for the next read.
			carry = lines[len(lines)-1]
			for _, line := range lines[:len(lines)-1] {
				if done := handleLine(line); done {
					return res, nil
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				handleLine(carry)
				return res, nil
			}
			if ctx.Err() != nil {
				// User-initiated abort: hand back the partial result.
				return res, ctx.Err()
			}
			return res, err
		}
	}
}
