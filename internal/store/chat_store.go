package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"deepchat/internal/models"
)

// CreateChat inserts a new chat for the given user and returns the record.
func (s *Service) CreateChat(ctx context.Context, userID int64, title string) (*models.Chat, error) {
	if userID <= 0 {
		return nil, errors.New("user_id is required")
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO chats (user_id, title, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		userID, title, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create chat: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("chat id: %w", err)
	}
	return &models.Chat{ID: id, UserID: userID, Title: title, CreatedAt: now, UpdatedAt: now}, nil
}

// ListChats returns all chats for a user ordered by last activity.
func (s *Service) ListChats(ctx context.Context, userID int64) ([]models.Chat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, title, created_at, updated_at FROM chats WHERE user_id = ? ORDER BY updated_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	var chats []models.Chat
	for rows.Next() {
		var chat models.Chat
		if err := rows.Scan(&chat.ID, &chat.UserID, &chat.Title, &chat.CreatedAt, &chat.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		chats = append(chats, chat)
	}
	return chats, rows.Err()
}

// FindEmptyChat returns the user's most recent chat with no messages, or
// sql.ErrNoRows when every chat has at least one turn.
func (s *Service) FindEmptyChat(ctx context.Context, userID int64) (*models.Chat, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT c.id, c.user_id, c.title, c.created_at, c.updated_at
		 FROM chats c
		 WHERE c.user_id = ? AND NOT EXISTS (SELECT 1 FROM messages m WHERE m.chat_id = c.id)
		 ORDER BY c.updated_at DESC LIMIT 1`,
		userID,
	)
	var chat models.Chat
	if err := row.Scan(&chat.ID, &chat.UserID, &chat.Title, &chat.CreatedAt, &chat.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find empty chat: %w", err)
	}
	return &chat, nil
}

// GetChatWithMessages returns one chat and its ordered messages.
func (s *Service) GetChatWithMessages(ctx context.Context, userID, chatID int64) (*models.Chat, []*models.Message, error) {
	var chat models.Chat
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, created_at, updated_at FROM chats WHERE id = ? AND user_id = ?`,
		chatID,
		userID,
	).Scan(&chat.ID, &chat.UserID, &chat.Title, &chat.CreatedAt, &chat.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("get chat: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, chat_id, role, content, reasoning_content, created_at
		 FROM messages WHERE chat_id = ? ORDER BY id ASC`,
		chatID,
	)
	if err != nil {
		return &chat, nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		m := new(models.Message)
		if err := rows.Scan(&m.ID, &m.UserID, &m.ChatID, &m.Role, &m.Content, &m.ReasoningContent, &m.CreatedAt); err != nil {
			return &chat, nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return &chat, messages, rows.Err()
}

// AddMessage stores a new message and touches the chat's updated_at.
func (s *Service) AddMessage(ctx context.Context, msg models.Message) (*models.Message, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM chats WHERE id = ? AND user_id = ?)`,
		msg.ChatID, msg.UserID,
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("verify chat: %w", err)
	}
	if !exists {
		return nil, sql.ErrNoRows
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (user_id, chat_id, role, content, reasoning_content, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		msg.UserID, msg.ChatID, msg.Role, msg.Content, msg.ReasoningContent, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("message id: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE chats SET updated_at = ? WHERE id = ?`, now, msg.ChatID); err != nil {
		return nil, fmt.Errorf("touch chat: %w", err)
	}
	msg.ID = id
	msg.CreatedAt = now
	return &msg, nil
}

// DeleteChat removes a chat and all related messages for the user.
func (s *Service) DeleteChat(ctx context.Context, userID, chatID int64) error {
	if chatID <= 0 {
		return errors.New("invalid chat id")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `DELETE FROM chats WHERE id = ? AND user_id = ?`, chatID, userID)
	if err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("chat rows affected: %w", err)
	}
	if affected == 0 {
		tx.Rollback()
		return sql.ErrNoRows
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM messages WHERE chat_id = ?`, chatID); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit delete chat: %w", err)
	}
	return nil
}

// UpdateChatTitle sets a chat title for the specified user.
func (s *Service) UpdateChatTitle(ctx context.Context, userID, chatID int64, title string) error {
	if chatID <= 0 {
		return errors.New("invalid chat id")
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return errors.New("title cannot be empty")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE chats SET title = ? WHERE id = ? AND user_id = ?`,
		title, chatID, userID,
	)
	if err != nil {
		return fmt.Errorf("update chat title: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("chat rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
