// Package chat glues the turn lifecycle to persistence: it builds the
// outgoing message list, streams the reply into an in-memory placeholder,
// and commits the final or partial result.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"

	"deepchat/internal/chatclient"
	"deepchat/internal/models"
	"deepchat/internal/store"
)

// titleLimit bounds the auto-derived chat title length in runes.
const titleLimit = 30

const defaultChatTitle = "New Chat"

// ErrTurnInFlight rejects a second send while one is pending for the same
// chat. The UI disables the send affordance; this is the backstop.
var ErrTurnInFlight = errors.New("a turn is already in flight for this chat")

// SendOptions carry per-turn routing plus optional progress callbacks.
// Callbacks receive the full accumulated text so far (see chatclient).
type SendOptions struct {
	Model        string
	SystemPrompt string
	APIConfig    *models.APIConfig
	OnAnswer     chatclient.Callback
	OnReasoning  chatclient.Callback
}

// TurnResult is the outcome of one completed or aborted turn.
type TurnResult struct {
	UserMessage      *models.Message
	AssistantMessage *models.Message
	Title            string
	Aborted          bool
}

// Manager orchestrates sends per chat. One Manager serves all users;
// concurrent sends to different chats share no mutable state beyond the
// in-flight guard.
type Manager struct {
	store  *store.Service
	client *chatclient.Client

	mu       sync.Mutex
	inflight map[int64]struct{}
}

// NewManager wires the persistence layer to the stream consumer.
func NewManager(st *store.Service, client *chatclient.Client) *Manager {
	return &Manager{
		store:    st,
		client:   client,
		inflight: make(map[int64]struct{}),
	}
}

// NewChat returns a fresh draft chat, reusing an existing empty one so
// repeated "new chat" clicks do not pile up blank sessions.
func (m *Manager) NewChat(ctx context.Context, userID int64) (*models.Chat, error) {
	if chat, err := m.store.FindEmptyChat(ctx, userID); err == nil {
		return chat, nil
	}
	return m.store.CreateChat(ctx, userID, defaultChatTitle)
}

// SendTurn runs one full turn against the relay.
//
// The user message is committed up front; the assistant reply accumulates
// in memory and is committed on completion. Cancelling ctx commits
// whatever partial reply had arrived and reports no error; a cancel
// before the first chunk commits only the user turn. Any other failure
// commits no assistant message and returns a classified error.
func (m *Manager) SendTurn(ctx context.Context, userID, chatID int64, content string, opts SendOptions) (*TurnResult, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, &TurnError{Kind: FailValidation, Err: errors.New("content cannot be empty")}
	}
	if !m.acquire(chatID) {
		return nil, ErrTurnInFlight
	}
	defer m.release(chatID)

	chat, history, err := m.store.GetChatWithMessages(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}

	// Prior turns go upstream as role+content only; stored reasoning is
	// never echoed back.
	outgoing := make([]models.Message, 0, len(history)+1)
	for _, msg := range history {
		outgoing = append(outgoing, models.Message{Role: msg.Role, Content: msg.Content})
	}
	outgoing = append(outgoing, models.Message{Role: models.RoleUser, Content: content})

	userMsg, err := m.store.AddMessage(ctx, models.Message{
		UserID:  userID,
		ChatID:  chatID,
		Role:    models.RoleUser,
		Content: content,
	})
	if err != nil {
		return nil, err
	}

	// Pending assistant slot, mutated in place as chunks arrive.
	placeholder := &models.Message{
		UserID: userID,
		ChatID: chatID,
		Role:   models.RoleAssistant,
	}
	onAnswer := func(full string) {
		placeholder.Content = full
		if opts.OnAnswer != nil {
			opts.OnAnswer(full)
		}
	}
	onReasoning := func(full string) {
		placeholder.ReasoningContent = full
		if opts.OnReasoning != nil {
			opts.OnReasoning(full)
		}
	}

	res, sendErr := m.client.Send(ctx, outgoing, chatclient.Options{
		Model:        opts.Model,
		SystemPrompt: opts.SystemPrompt,
		APIConfig:    opts.APIConfig,
	}, onAnswer, onReasoning)

	switch {
	case sendErr == nil:
		placeholder.Content = res.Content
		placeholder.ReasoningContent = res.ReasoningContent
	case errors.Is(sendErr, context.Canceled):
		// User abort: keep the partial reply, no rollback, no error.
	default:
		return nil, classify(sendErr)
	}

	// Persist the final (or partial) reply exactly as accumulated. The
	// abort path arrives here with ctx already cancelled, so persistence
	// must not inherit the cancellation. An abort that fired before any
	// chunk arrived leaves the placeholder blank; committing it would
	// record an empty assistant turn, so skip it.
	var assistantMsg *models.Message
	if sendErr == nil || placeholder.Content != "" || placeholder.ReasoningContent != "" {
		assistantMsg, err = m.store.AddMessage(context.WithoutCancel(ctx), *placeholder)
		if err != nil {
			return nil, err
		}
	}

	result := &TurnResult{
		UserMessage:      userMsg,
		AssistantMessage: assistantMsg,
		Title:            chat.Title,
		Aborted:          sendErr != nil,
	}
	if len(history) == 0 && sendErr == nil {
		title := deriveTitle(content)
		if err := m.store.UpdateChatTitle(ctx, userID, chatID, title); err == nil {
			result.Title = title
		}
	}
	return result, nil
}

func (m *Manager) acquire(chatID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.inflight[chatID]; busy {
		return false
	}
	m.inflight[chatID] = struct{}{}
	return true
}

func (m *Manager) release(chatID int64) {
	m.mu.Lock()
	delete(m.inflight, chatID)
	m.mu.Unlock()
}

// deriveTitle truncates the first user input to a bounded prefix.
func deriveTitle(content string) string {
	runes := []rune(content)
	if len(runes) <= titleLimit {
		return content
	}
	return string(runes[:titleLimit])
}
