package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"deepchat/internal/models"
)

// chunkReader splits its payload into arbitrary fixed-size reads to force
// events across chunk boundaries.
type chunkReader struct {
	data  string
	size  int
	pos   int
	final error
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		if r.final != nil {
			return 0, r.final
		}
		return 0, io.EOF
	}
	end := r.pos + r.size
	if end > len(r.data) {
		end = len(r.data)
	}
	n := copy(p, r.data[r.pos:end])
	r.pos += n
	return n, nil
}

func sseBody(frames ...string) string {
	var b strings.Builder
	for _, f := range frames {
		fmt.Fprintf(&b, "data: %s\n\n", f)
	}
	return b.String()
}

func TestConsumeStreamCumulativeCallbacks(t *testing.T) {
	body := sseBody(
		`{"type":"reasoning","content":"Let me"}`,
		`{"type":"reasoning","content":" think"}`,
		`{"type":"content","content":"Hi"}`,
		`{"type":"content","content":" there"}`,
		`[DONE]`,
	)

	// Every chunk size must reassemble to the same result.
	for _, size := range []int{1, 3, 7, 16, len(body)} {
		var answers, reasonings []string
		res, err := consumeStream(context.Background(), &chunkReader{data: body, size: size},
			func(full string) { answers = append(answers, full) },
			func(full string) { reasonings = append(reasonings, full) },
		)
		if err != nil {
			t.Fatalf("size %d: %v", size, err)
		}
		if res.Content != "Hi there" || res.ReasoningContent != "Let me think" {
			t.Fatalf("size %d: result = %+v", size, res)
		}
		wantAnswers := []string{"Hi", "Hi there"}
		if len(answers) != len(wantAnswers) {
			t.Fatalf("size %d: answers = %v", size, answers)
		}
		for i := range wantAnswers {
			if answers[i] != wantAnswers[i] {
				t.Fatalf("size %d: answer %d = %q, want cumulative %q", size, i, answers[i], wantAnswers[i])
			}
		}
		if reasonings[len(reasonings)-1] != "Let me think" {
			t.Fatalf("size %d: reasonings = %v", size, reasonings)
		}
	}
}

func TestConsumeStreamSkipsMalformedLines(t *testing.T) {
	body := "data: not json\n\n" +
		"noise without prefix\n" +
		sseBody(`{"type":"content","content":"ok"}`, `[DONE]`)
	res, err := consumeStream(context.Background(), strings.NewReader(body), nil, nil)
	if err != nil {
		t.Fatalf("consumeStream: %v", err)
	}
	if res.Content != "ok" {
		t.Fatalf("content = %q", res.Content)
	}
}

func TestConsumeStreamEOFWithoutDone(t *testing.T) {
	// A stream that ends mid-flight without the sentinel is not an error;
	// the trailing carry still gets one parse attempt.
	body := "data: " + `{"type":"content","content":"tail"}`
	res, err := consumeStream(context.Background(), strings.NewReader(body), nil, nil)
	if err != nil {
		t.Fatalf("consumeStream: %v", err)
	}
	if res.Content != "tail" {
		t.Fatalf("content = %q", res.Content)
	}
}

func TestConsumeStreamAbortReturnsPartial(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	body := sseBody(`{"type":"content","content":"partial"}`)
	r := &chunkReader{data: body, size: len(body), final: errors.New("read on cancelled connection")}
	var sawPartial bool
	res, err := consumeStream(ctx, r, func(full string) {
		sawPartial = true
		cancel()
	}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if !sawPartial || res.Content != "partial" {
		t.Fatalf("partial lost: res=%+v", res)
	}
}

func TestSendRoundTrip(t *testing.T) {
	var gotReq sendRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseBody(
			`{"type":"reasoning","content":"hmm"}`,
			`{"type":"content","content":"answer"}`,
			`[DONE]`,
		))
	}))
	defer server.Close()

	client := NewClient(server.URL, nil)
	res, err := client.Send(context.Background(),
		[]models.Message{{Role: models.RoleUser, Content: "hi"}},
		Options{
			Model:        "deepseek-reasoner",
			SystemPrompt: "short",
			APIConfig:    &models.APIConfig{Provider: "custom", APIURL: "https://x", APIKey: "k"},
		}, nil, nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if res.Content != "answer" || res.ReasoningContent != "hmm" {
		t.Fatalf("result = %+v", res)
	}
	if gotReq.Model != "deepseek-reasoner" || gotReq.SystemPrompt != "short" {
		t.Fatalf("request = %+v", gotReq)
	}
	if gotReq.APIConfig == nil || gotReq.APIConfig.Provider != "custom" {
		t.Fatalf("api config not forwarded: %+v", gotReq.APIConfig)
	}
}

func TestSendRequestError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGatewayTimeout)
		fmt.Fprint(w, `{"error":"Request timed out","details":"context deadline exceeded"}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, nil)
	_, err := client.Send(context.Background(), nil, Options{}, nil, nil)
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("err = %v", err)
	}
	if reqErr.Status != http.StatusGatewayTimeout || reqErr.Detail != "context deadline exceeded" {
		t.Fatalf("reqErr = %+v", reqErr)
	}
}

func TestSendAbortMidStream(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"content\",\"content\":\"first\"}\n\n")
		w.(http.Flusher).Flush()
		<-release
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	client := NewClient(server.URL, nil)
	done := make(chan struct{})
	var res Result
	var sendErr error
	go func() {
		defer close(done)
		res, sendErr = client.Send(ctx,
			[]models.Message{{Role: models.RoleUser, Content: "hi"}},
			Options{},
			func(full string) {
				if full == "first" {
					cancel()
				}
			}, nil)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("Send did not return after cancel")
	}
	if !errors.Is(sendErr, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", sendErr)
	}
	if res.Content != "first" {
		t.Fatalf("partial = %+v", res)
	}
}
