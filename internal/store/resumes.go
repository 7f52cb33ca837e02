package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/resumind/resumind/internal/core"
)

const resumeFileColumns = "id, user_id, original_filename, file_path, is_active, created_at"

// CreateResumeFile records a stored upload and makes it the active
// resume, deactivating any previous one.
func (s *Store) CreateResumeFile(ctx context.Context, userID int64, originalFilename, filePath string) (*core.ResumeFile, error) {
	now := nowUTC()
	var created *core.ResumeFile

	err := s.retryWrite(ctx, "create resume file", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx,
			"UPDATE resume_files SET is_active = 0 WHERE user_id = ?", userID,
		); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			"INSERT INTO resume_files (user_id, original_filename, file_path, is_active, created_at) VALUES (?, ?, ?, 1, ?)",
			userID, originalFilename, filePath, now,
		)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		created = &core.ResumeFile{
			ID:               id,
			UserID:           userID,
			OriginalFilename: originalFilename,
			FilePath:         filePath,
			IsActive:         true,
			CreatedAt:        parseTime(now),
		}
		return tx.Commit()
	})
	if err != nil {
		return nil, fmt.Errorf("inserting resume file: %w", err)
	}
	return created, nil
}

// ListResumeFiles returns the user's resumes, newest first.
func (s *Store) ListResumeFiles(ctx context.Context, userID int64) ([]*core.ResumeFile, error) {
	rows, err := s.readDB.QueryContext(ctx,
		"SELECT "+resumeFileColumns+" FROM resume_files WHERE user_id = ? ORDER BY created_at DESC, id DESC",
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying resume files: %w", err)
	}
	defer rows.Close()

	var files []*core.ResumeFile
	for rows.Next() {
		file, err := scanResumeFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning resume file: %w", err)
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

// ActiveResumeFile returns the user's active resume.
func (s *Store) ActiveResumeFile(ctx context.Context, userID int64) (*core.ResumeFile, error) {
	file, err := scanResumeFile(s.readDB.QueryRowContext(ctx,
		"SELECT "+resumeFileColumns+" FROM resume_files WHERE user_id = ? AND is_active = 1 LIMIT 1",
		userID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound("no_active_resume", "No active resume found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying active resume: %w", err)
	}
	return file, nil
}

// GetResumeFile returns one resume owned by the user.
func (s *Store) GetResumeFile(ctx context.Context, userID, id int64) (*core.ResumeFile, error) {
	file, err := scanResumeFile(s.readDB.QueryRowContext(ctx,
		"SELECT "+resumeFileColumns+" FROM resume_files WHERE id = ? AND user_id = ?",
		id, userID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound("resume_not_found", "Resume not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying resume file: %w", err)
	}
	return file, nil
}

// SetActiveResumeFile makes one resume active and deactivates the rest.
func (s *Store) SetActiveResumeFile(ctx context.Context, userID, id int64) (*core.ResumeFile, error) {
	var updated *core.ResumeFile
	err := s.retryWrite(ctx, "set active resume", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx,
			"UPDATE resume_files SET is_active = 0 WHERE user_id = ?", userID,
		); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			"UPDATE resume_files SET is_active = 1 WHERE id = ? AND user_id = ?", id, userID,
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

		updated, err = scanResumeFile(tx.QueryRowContext(ctx,
			"SELECT "+resumeFileColumns+" FROM resume_files WHERE id = ?", id,
		))
		if err != nil {
			return err
		}
		return tx.Commit()
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound("resume_not_found", "Resume not found")
	}
	if err != nil {
		return nil, fmt.Errorf("setting active resume: %w", err)
	}
	return updated, nil
}

// DeleteResumeFile removes a resume row and returns it so the caller can
// delete the file on disk. When the deleted resume was active, the
// newest remaining one is promoted.
func (s *Store) DeleteResumeFile(ctx context.Context, userID, id int64) (*core.ResumeFile, error) {
	var deleted *core.ResumeFile
	err := s.retryWrite(ctx, "delete resume file", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		deleted, err = scanResumeFile(tx.QueryRowContext(ctx,
			"SELECT "+resumeFileColumns+" FROM resume_files WHERE id = ? AND user_id = ?", id, userID,
		))
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM resume_files WHERE id = ?", id); err != nil {
			return err
		}
		if deleted.IsActive {
			if _, err := tx.ExecContext(ctx,
				`UPDATE resume_files SET is_active = 1 WHERE id = (
					SELECT id FROM resume_files WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT 1
				)`, userID,
			); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound("resume_not_found", "Resume not found")
	}
	if err != nil {
		return nil, fmt.Errorf("deleting resume file: %w", err)
	}
	return deleted, nil
}

// EvictResumeFiles deletes the user's oldest resumes so at most keep
// remain, returning the deleted rows for disk cleanup.
func (s *Store) EvictResumeFiles(ctx context.Context, userID int64, keep int) ([]*core.ResumeFile, error) {
	if keep < 0 {
		keep = 0
	}

	var evicted []*core.ResumeFile
	err := s.retryWrite(ctx, "evict resume files", func() error {
		evicted = nil
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		rows, err := tx.QueryContext(ctx,
			"SELECT "+resumeFileColumns+" FROM resume_files WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT -1 OFFSET ?",
			userID, keep,
		)
		if err != nil {
			return err
		}
		for rows.Next() {
			file, err := scanResumeFile(rows)
			if err != nil {
				rows.Close()
				return err
			}
			evicted = append(evicted, file)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		if len(evicted) == 0 {
			return tx.Commit()
		}

		placeholders := strings.Repeat("?, ", len(evicted)-1) + "?"
		args := make([]any, len(evicted))
		for i, file := range evicted {
			args[i] = file.ID
		}
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM resume_files WHERE id IN ("+placeholders+")", args...,
		); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return nil, fmt.Errorf("evicting resume files: %w", err)
	}
	return evicted, nil
}

func scanResumeFile(row scanner) (*core.ResumeFile, error) {
	var (
		file      core.ResumeFile
		createdAt string
	)
	if err := row.Scan(
		&file.ID, &file.UserID, &file.OriginalFilename, &file.FilePath,
		&file.IsActive, &createdAt,
	); err != nil {
		return nil, err
	}
	file.CreatedAt = parseTime(createdAt)
	return &file, nil
}
