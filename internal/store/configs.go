package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/resumind/resumind/internal/core"
)

const llmConfigColumns = "id, user_id, provider, name, api_key, model_name, base_url, is_default, created_at, updated_at"

// CreateLLMConfig inserts a model configuration. The user's first config
// becomes the default; an explicit IsDefault also clears the flag on the
// others.
func (s *Store) CreateLLMConfig(ctx context.Context, cfg *core.LLMConfig) (*core.LLMConfig, error) {
	now := nowUTC()
	var created *core.LLMConfig

	err := s.retryWrite(ctx, "create llm config", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		var count int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM llm_configs WHERE user_id = ?", cfg.UserID,
		).Scan(&count); err != nil {
			return err
		}

		isDefault := cfg.IsDefault || count == 0
		if isDefault {
			if _, err := tx.ExecContext(ctx,
				"UPDATE llm_configs SET is_default = 0 WHERE user_id = ?", cfg.UserID,
			); err != nil {
				return err
			}
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO llm_configs (user_id, provider, name, api_key, model_name, base_url, is_default, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			cfg.UserID, cfg.Provider, cfg.Name, cfg.APIKey, cfg.ModelName,
			nullableString(cfg.BaseURL), isDefault, now, now,
		)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}

		created, err = scanLLMConfig(tx.QueryRowContext(ctx,
			"SELECT "+llmConfigColumns+" FROM llm_configs WHERE id = ?", id,
		))
		if err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return nil, fmt.Errorf("inserting llm config: %w", err)
	}
	return created, nil
}

// ListLLMConfigs returns a user's configs, default first, then newest.
func (s *Store) ListLLMConfigs(ctx context.Context, userID int64) ([]*core.LLMConfig, error) {
	rows, err := s.readDB.QueryContext(ctx,
		"SELECT "+llmConfigColumns+" FROM llm_configs WHERE user_id = ? ORDER BY is_default DESC, created_at DESC, id DESC",
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying llm configs: %w", err)
	}
	defer rows.Close()

	var configs []*core.LLMConfig
	for rows.Next() {
		cfg, err := scanLLMConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning llm config: %w", err)
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

// GetLLMConfig returns one config owned by the user.
func (s *Store) GetLLMConfig(ctx context.Context, userID, id int64) (*core.LLMConfig, error) {
	cfg, err := scanLLMConfig(s.readDB.QueryRowContext(ctx,
		"SELECT "+llmConfigColumns+" FROM llm_configs WHERE id = ? AND user_id = ?",
		id, userID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound("llm_config_not_found", "LLM configuration not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying llm config: %w", err)
	}
	return cfg, nil
}

// UpdateLLMConfig applies the non-nil fields of upd and returns the
// updated row.
func (s *Store) UpdateLLMConfig(ctx context.Context, userID, id int64, upd core.LLMConfigUpdate) (*core.LLMConfig, error) {
	sets := []string{"updated_at = ?"}
	args := []any{nowUTC()}
	if upd.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *upd.Name)
	}
	if upd.APIKey != nil {
		sets = append(sets, "api_key = ?")
		args = append(args, *upd.APIKey)
	}
	if upd.ModelName != nil {
		sets = append(sets, "model_name = ?")
		args = append(args, *upd.ModelName)
	}
	if upd.BaseURL != nil {
		sets = append(sets, "base_url = ?")
		args = append(args, nullableString(*upd.BaseURL))
	}
	if upd.IsDefault != nil {
		sets = append(sets, "is_default = ?")
		args = append(args, *upd.IsDefault)
	}
	args = append(args, id, userID)

	var updated *core.LLMConfig
	err := s.retryWrite(ctx, "update llm config", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if upd.IsDefault != nil && *upd.IsDefault {
			if _, err := tx.ExecContext(ctx,
				"UPDATE llm_configs SET is_default = 0 WHERE user_id = ?", userID,
			); err != nil {
				return err
			}
		}

		res, err := tx.ExecContext(ctx,
			"UPDATE llm_configs SET "+strings.Join(sets, ", ")+" WHERE id = ? AND user_id = ?",
			args...,
		)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return sql.ErrNoRows
		}

		updated, err = scanLLMConfig(tx.QueryRowContext(ctx,
			"SELECT "+llmConfigColumns+" FROM llm_configs WHERE id = ?", id,
		))
		if err != nil {
			return err
		}
		return tx.Commit()
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound("llm_config_not_found", "LLM configuration not found")
	}
	if err != nil {
		return nil, fmt.Errorf("updating llm config: %w", err)
	}
	return updated, nil
}

// DeleteLLMConfig removes one config owned by the user. Deleting the
// default leaves no flag set; DefaultLLMConfig falls back to the newest.
func (s *Store) DeleteLLMConfig(ctx context.Context, userID, id int64) error {
	err := s.retryWrite(ctx, "delete llm config", func() error {
		res, err := s.db.ExecContext(ctx,
			"DELETE FROM llm_configs WHERE id = ? AND user_id = ?", id, userID,
		)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return sql.ErrNoRows
		}
		return nil
	})
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrNotFound("llm_config_not_found", "LLM configuration not found")
	}
	if err != nil {
		return fmt.Errorf("deleting llm config: %w", err)
	}
	return nil
}

// SetDefaultLLMConfig marks one config as the default and clears the
// flag on the user's others.
func (s *Store) SetDefaultLLMConfig(ctx context.Context, userID, id int64) (*core.LLMConfig, error) {
	var updated *core.LLMConfig
	err := s.retryWrite(ctx, "set default llm config", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx,
			"UPDATE llm_configs SET is_default = 0 WHERE user_id = ?", userID,
		); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			"UPDATE llm_configs SET is_default = 1, updated_at = ? WHERE id = ? AND user_id = ?",
			nowUTC(), id, userID,
		)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return sql.ErrNoRows
		}

		updated, err = scanLLMConfig(tx.QueryRowContext(ctx,
			"SELECT "+llmConfigColumns+" FROM llm_configs WHERE id = ?", id,
		))
		if err != nil {
			return err
		}
		return tx.Commit()
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound("llm_config_not_found", "LLM configuration not found")
	}
	if err != nil {
		return nil, fmt.Errorf("setting default llm config: %w", err)
	}
	return updated, nil
}

// DefaultLLMConfig returns the user's default config, or the newest one
// when no default flag is set.
func (s *Store) DefaultLLMConfig(ctx context.Context, userID int64) (*core.LLMConfig, error) {
	cfg, err := scanLLMConfig(s.readDB.QueryRowContext(ctx,
		"SELECT "+llmConfigColumns+" FROM llm_configs WHERE user_id = ? ORDER BY is_default DESC, created_at DESC, id DESC LIMIT 1",
		userID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound("no_llm_config", "No LLM configuration found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying default llm config: %w", err)
	}
	return cfg, nil
}

func scanLLMConfig(row scanner) (*core.LLMConfig, error) {
	var (
		cfg                  core.LLMConfig
		baseURL              sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(
		&cfg.ID, &cfg.UserID, &cfg.Provider, &cfg.Name, &cfg.APIKey,
		&cfg.ModelName, &baseURL, &cfg.IsDefault, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	cfg.BaseURL = baseURL.String
	cfg.CreatedAt = parseTime(createdAt)
	cfg.UpdatedAt = parseTime(updatedAt)
	return &cfg, nil
}
