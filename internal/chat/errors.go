package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"deepchat/internal/chatclient"
)

// FailKind classifies turn failures for user-facing reporting. Aborts are
// deliberately absent: cancellation is not a failure.
type FailKind int

const (
	// FailValidation is a malformed request; never retried.
	FailValidation FailKind = iota
	// FailUpstream is a non-2xx or malformed response from the provider.
	FailUpstream
	// FailTimeout is a turn exceeding its wall-clock budget, reported
	// separately so the UI can show a dedicated message.
	FailTimeout
)

// TurnError wraps a failed turn with its classification.
type TurnError struct {
	Kind FailKind
	Err  error
}

func (e *TurnError) Error() string {
	switch e.Kind {
	case FailValidation:
		return fmt.Sprintf("invalid request: %v", e.Err)
	case FailTimeout:
		return fmt.Sprintf("request timed out: %v", e.Err)
	default:
		return fmt.Sprintf("upstream failure: %v", e.Err)
	}
}

func (e *TurnError) Unwrap() error { return e.Err }

func classify(err error) error {
	var turnErr *TurnError
	if errors.As(err, &turnErr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TurnError{Kind: FailTimeout, Err: err}
	}
	var reqErr *chatclient.RequestError
	if errors.As(err, &reqErr) {
		switch reqErr.Status {
		case http.StatusBadRequest:
			return &TurnError{Kind: FailValidation, Err: err}
		case http.StatusGatewayTimeout:
			return &TurnError{Kind: FailTimeout, Err: err}
		}
	}
	return &TurnError{Kind: FailUpstream, Err: err}
}
