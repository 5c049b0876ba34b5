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

// ListAPIConfigs returns the user's provider configs in creation order.
func (s *Service) ListAPIConfigs(ctx context.Context, userID int64) ([]models.APIConfig, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, provider, name, api_url, api_key, is_active, created_at
		 FROM api_configs WHERE user_id = ? ORDER BY created_at ASC, id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list api configs: %w", err)
	}
	defer rows.Close()

	var configs []models.APIConfig
	for rows.Next() {
		var cfg models.APIConfig
		if err := rows.Scan(&cfg.ID, &cfg.UserID, &cfg.Provider, &cfg.Name, &cfg.APIURL, &cfg.APIKey, &cfg.IsActive, &cfg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan api config: %w", err)
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

// ActiveAPIConfig returns the user's active config, or sql.ErrNoRows when
// the builtin default provider should be used.
func (s *Service) ActiveAPIConfig(ctx context.Context, userID int64) (*models.APIConfig, error) {
	var cfg models.APIConfig
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, provider, name, api_url, api_key, is_active, created_at
		 FROM api_configs WHERE user_id = ? AND is_active = 1 LIMIT 1`,
		userID,
	).Scan(&cfg.ID, &cfg.UserID, &cfg.Provider, &cfg.Name, &cfg.APIURL, &cfg.APIKey, &cfg.IsActive, &cfg.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("active api config: %w", err)
	}
	return &cfg, nil
}

// CreateAPIConfig stores a new provider config, inactive by default.
func (s *Service) CreateAPIConfig(ctx context.Context, userID int64, provider, name, apiURL, apiKey string) (*models.APIConfig, error) {
	provider = strings.TrimSpace(provider)
	name = strings.TrimSpace(name)
	if provider == "" || name == "" {
		return nil, errors.New("provider and name are required")
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO api_configs (user_id, provider, name, api_url, api_key, is_active, created_at)
		 VALUES (?, ?, ?, ?, ?, 0, ?)`,
		userID, provider, name, apiURL, apiKey, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create api config: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("api config id: %w", err)
	}
	return &models.APIConfig{
		ID: id, UserID: userID, Provider: provider, Name: name,
		APIURL: apiURL, APIKey: apiKey, CreatedAt: now,
	}, nil
}

// UpdateAPIConfig edits mutable fields of a config owned by the user.
func (s *Service) UpdateAPIConfig(ctx context.Context, userID, configID int64, name, apiURL, apiKey string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("name is required")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE api_configs SET name = ?, api_url = ?, api_key = ? WHERE id = ? AND user_id = ?`,
		name, apiURL, apiKey, configID, userID,
	)
	if err != nil {
		return fmt.Errorf("update api config: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("api config rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteAPIConfig removes a config owned by the user.
func (s *Service) DeleteAPIConfig(ctx context.Context, userID, configID int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM api_configs WHERE id = ? AND user_id = ?`,
		configID, userID,
	)
	if err != nil {
		return fmt.Errorf("delete api config: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("api config rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetActiveAPIConfig marks one config active and every other config of the
// user inactive inside a single transaction. configID zero deactivates all
// configs, falling back to the builtin default provider.
func (s *Service) SetActiveAPIConfig(ctx context.Context, userID, configID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `UPDATE api_configs SET is_active = 0 WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("deactivate api configs: %w", err)
	}
	if configID > 0 {
		var res sql.Result
		res, err = tx.ExecContext(ctx,
			`UPDATE api_configs SET is_active = 1 WHERE id = ? AND user_id = ?`,
			configID, userID,
		)
		if err != nil {
			return fmt.Errorf("activate api config: %w", err)
		}
		var affected int64
		affected, err = res.RowsAffected()
		if err != nil {
			return fmt.Errorf("api config rows affected: %w", err)
		}
		if affected == 0 {
			err = sql.ErrNoRows
			return err
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit activate: %w", err)
	}
	return nil
}
