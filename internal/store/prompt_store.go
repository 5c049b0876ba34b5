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

// Preset prompts seeded once per user the first time the list is empty.
var presetPrompts = []struct {
	Name    string
	Content string
}{
	{
		Name: "Structured Assistant",
		Content: "Answer in a structured way:\n" +
			"- Use clear heading levels\n" +
			"- Highlight the key points\n" +
			"- Keep the language concise and accurate\n" +
			"- Use lists and code blocks where appropriate",
	},
	{
		Name: "Translator",
		Content: "You are a professional translator between Chinese and English. Rules:\n" +
			"- If the input is Chinese, translate it into idiomatic English\n" +
			"- If the input is English, translate it into fluent Chinese\n" +
			"- Preserve the tone and style of the original\n" +
			"- Provide bilingual glosses for technical terms\n" +
			"- Output only the translation, no explanations",
	},
	{
		Name: "Code Reviewer",
		Content: "You are a senior code reviewer. Review the code the user provides:\n" +
			"- Point out potential bugs and security issues\n" +
			"- Suggest performance improvements\n" +
			"- Check style and readability\n" +
			"- Propose fixes with example code\n" +
			"- Assess whether error handling is sufficient",
	},
}

// ListPrompts returns the user's prompts, seeding the builtin presets the
// first time the user has none.
func (s *Service) ListPrompts(ctx context.Context, userID int64) ([]models.Prompt, error) {
	prompts, err := s.queryPrompts(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(prompts) > 0 {
		return prompts, nil
	}
	now := time.Now().UTC()
	for _, preset := range presetPrompts {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO prompts (user_id, name, content, is_preset, created_at) VALUES (?, ?, ?, 1, ?)`,
			userID, preset.Name, preset.Content, now,
		); err != nil {
			return nil, fmt.Errorf("seed preset prompt: %w", err)
		}
	}
	return s.queryPrompts(ctx, userID)
}

func (s *Service) queryPrompts(ctx context.Context, userID int64) ([]models.Prompt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, name, content, is_preset, created_at FROM prompts WHERE user_id = ? ORDER BY created_at ASC, id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list prompts: %w", err)
	}
	defer rows.Close()

	var prompts []models.Prompt
	for rows.Next() {
		var p models.Prompt
		if err := rows.Scan(&p.ID, &p.UserID, &p.Name, &p.Content, &p.IsPreset, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan prompt: %w", err)
		}
		prompts = append(prompts, p)
	}
	return prompts, rows.Err()
}

// GetPrompt fetches one prompt owned by the user.
func (s *Service) GetPrompt(ctx context.Context, userID, promptID int64) (*models.Prompt, error) {
	var p models.Prompt
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, content, is_preset, created_at FROM prompts WHERE id = ? AND user_id = ?`,
		promptID, userID,
	).Scan(&p.ID, &p.UserID, &p.Name, &p.Content, &p.IsPreset, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get prompt: %w", err)
	}
	return &p, nil
}

// CreatePrompt stores a custom prompt for the user.
func (s *Service) CreatePrompt(ctx context.Context, userID int64, name, content string) (*models.Prompt, error) {
	name = strings.TrimSpace(name)
	content = strings.TrimSpace(content)
	if name == "" || content == "" {
		return nil, errors.New("name and content are required")
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO prompts (user_id, name, content, is_preset, created_at) VALUES (?, ?, ?, 0, ?)`,
		userID, name, content, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create prompt: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("prompt id: %w", err)
	}
	return &models.Prompt{ID: id, UserID: userID, Name: name, Content: content, CreatedAt: now}, nil
}

// UpdatePrompt edits name and content of a prompt owned by the user.
func (s *Service) UpdatePrompt(ctx context.Context, userID, promptID int64, name, content string) error {
	name = strings.TrimSpace(name)
	content = strings.TrimSpace(content)
	if name == "" || content == "" {
		return errors.New("name and content are required")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE prompts SET name = ?, content = ? WHERE id = ? AND user_id = ?`,
		name, content, promptID, userID,
	)
	if err != nil {
		return fmt.Errorf("update prompt: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("prompt rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeletePrompt removes a prompt owned by the user.
func (s *Service) DeletePrompt(ctx context.Context, userID, promptID int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM prompts WHERE id = ? AND user_id = ?`,
		promptID, userID,
	)
	if err != nil {
		return fmt.Errorf("delete prompt: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("prompt rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
