package relay

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"deepchat/internal/upstream"
)

const doneSentinel = "[DONE]"

// frame is the wire shape of one multiplexed SSE event.
type frame struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

const (
	frameReasoning = "reasoning"
	frameContent   = "content"
)

// eventWriter frames adapter events as Server-Sent Events on one physical
// stream, flushing after every event so intermediaries cannot batch them.
type eventWriter struct {
	w       io.Writer
	flusher http.Flusher
}

func newEventWriter(w io.Writer, flusher http.Flusher) *eventWriter {
	return &eventWriter{w: w, flusher: flusher}
}

func (ew *eventWriter) writeEvent(ev upstream.Event) error {
	kind := frameContent
	if ev.Kind == upstream.KindReasoning {
		kind = frameReasoning
	}
	data, err := json.Marshal(frame{Type: kind, Content: ev.Text})
	if err != nil {
		return err
	}
	return ew.writeData(data)
}

func (ew *eventWriter) writeDone() error {
	return ew.writeData([]byte(doneSentinel))
}

func (ew *eventWriter) writeData(data []byte) error {
	if _, err := fmt.Fprintf(ew.w, "data: %s\n\n", data); err != nil {
		return err
	}
	ew.flusher.Flush()
	return nil
}

// pump forwards the adapter's event sequence one chunk at a time: reasoning
// and answer events stay interleaved in arrival order, and a terminal
// sentinel marks a complete stream. Once streaming has begun a failure can
// only end the connection early; there is no in-band error signal.
func pump(stream upstream.Stream, ew *eventWriter) error {
	defer stream.Close()
	for {
		ev, err := stream.Recv()
		if err != nil {
			if err == io.EOF {
				return ew.writeDone()
			}
			return err
		}
		if err := ew.writeEvent(ev); err != nil {
			return err
		}
	}
}
