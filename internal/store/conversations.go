package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/resumind/resumind/internal/core"
)

// CreateConversation starts a new analysis session.
func (s *Store) CreateConversation(ctx context.Context, userID int64, title, resumeText, jobDescription string) (*core.Conversation, error) {
	now := nowUTC()
	var id int64

	err := s.retryWrite(ctx, "create conversation", func() error {
		res, err := s.db.ExecContext(ctx,
			"INSERT INTO conversations (user_id, title, resume_text, job_description, created_at) VALUES (?, ?, ?, ?, ?)",
			userID, title, resumeText, jobDescription, now,
		)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("inserting conversation: %w", err)
	}

	return &core.Conversation{
		ID:             id,
		UserID:         userID,
		Title:          title,
		ResumeText:     resumeText,
		JobDescription: jobDescription,
		CreatedAt:      parseTime(now),
	}, nil
}

// GetConversation returns one conversation owned by the user.
func (s *Store) GetConversation(ctx context.Context, userID, id int64) (*core.Conversation, error) {
	var (
		conv      core.Conversation
		createdAt string
	)
	err := s.readDB.QueryRowContext(ctx,
		"SELECT id, user_id, title, resume_text, job_description, created_at FROM conversations WHERE id = ? AND user_id = ?",
		id, userID,
	).Scan(&conv.ID, &conv.UserID, &conv.Title, &conv.ResumeText, &conv.JobDescription, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound("conversation_not_found", "Conversation not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}
	conv.CreatedAt = parseTime(createdAt)
	return &conv, nil
}

// ListConversations returns a page of the user's conversations, newest
// first. Status is derived from the persisted messages: completed when
// the final step result exists, stopped when a stop marker exists,
// in_progress otherwise.
func (s *Store) ListConversations(ctx context.Context, userID int64, limit, offset int) ([]*core.ConversationSummary, error) {
	if limit <= 0 {
		limit = -1
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.readDB.QueryContext(ctx,
		`SELECT c.id, c.title, c.created_at,
			EXISTS(SELECT 1 FROM messages m WHERE m.conversation_id = c.id AND m.role = ? AND m.step = ?),
			EXISTS(SELECT 1 FROM messages m WHERE m.conversation_id = c.id AND m.role = ? AND m.content = ?)
		 FROM conversations c
		 WHERE c.user_id = ?
		 ORDER BY c.created_at DESC, c.id DESC
		 LIMIT ? OFFSET ?`,
		core.RoleAssistant, s.finalStep, core.RoleSystem, core.StopMarker,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	var summaries []*core.ConversationSummary
	for rows.Next() {
		var (
			sum                core.ConversationSummary
			createdAt          string
			completed, stopped bool
		)
		if err := rows.Scan(&sum.ID, &sum.Title, &createdAt, &completed, &stopped); err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		sum.CreatedAt = parseTime(createdAt)
		switch {
		case completed:
			sum.Status = core.StatusCompleted
		case stopped:
			sum.Status = core.StatusStopped
		default:
			sum.Status = core.StatusInProgress
		}
		summaries = append(summaries, &sum)
	}
	return summaries, rows.Err()
}

// DeleteConversation removes a conversation and its messages.
func (s *Store) DeleteConversation(ctx context.Context, userID, id int64) error {
	err := s.retryWrite(ctx, "delete conversation", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		var exists bool
		if err := tx.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM conversations WHERE id = ? AND user_id = ?)", id, userID,
		).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return sql.ErrNoRows
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE conversation_id = ?", id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM conversations WHERE id = ?", id); err != nil {
			return err
		}
		return tx.Commit()
	})
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrNotFound("conversation_not_found", "Conversation not found")
	}
	if err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	return nil
}

// PruneConversations deletes the user's oldest conversations so at most
// keep remain, returning how many were removed.
func (s *Store) PruneConversations(ctx context.Context, userID int64, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}

	var pruned int
	err := s.retryWrite(ctx, "prune conversations", func() error {
		pruned = 0
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		rows, err := tx.QueryContext(ctx,
			"SELECT id FROM conversations WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT -1 OFFSET ?",
			userID, keep,
		)
		if err != nil {
			return err
		}
		var victims []int64
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			victims = append(victims, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		if len(victims) == 0 {
			return tx.Commit()
		}

		placeholders := strings.Repeat("?, ", len(victims)-1) + "?"
		args := make([]any, len(victims))
		for i, id := range victims {
			args[i] = id
		}
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM messages WHERE conversation_id IN ("+placeholders+")", args...,
		); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM conversations WHERE id IN ("+placeholders+")", args...,
		); err != nil {
			return err
		}
		pruned = len(victims)
		return tx.Commit()
	})
	if err != nil {
		return 0, fmt.Errorf("pruning conversations: %w", err)
	}
	return pruned, nil
}

// ListMessages returns all messages of a conversation in insertion order.
func (s *Store) ListMessages(ctx context.Context, conversationID int64) ([]*core.Message, error) {
	rows, err := s.readDB.QueryContext(ctx,
		"SELECT id, conversation_id, role, content, step, created_at FROM messages WHERE conversation_id = ? ORDER BY id ASC",
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []*core.Message
	for rows.Next() {
		var (
			msg       core.Message
			step      sql.NullInt64
			createdAt string
		)
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &step, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msg.Step = int(step.Int64)
		msg.CreatedAt = parseTime(createdAt)
		messages = append(messages, &msg)
	}
	return messages, rows.Err()
}

// HasStepResult reports whether an assistant message for the given step
// was persisted.
func (s *Store) HasStepResult(ctx context.Context, conversationID int64, step int) (bool, error) {
	var exists bool
	err := s.readDB.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM messages WHERE conversation_id = ? AND role = ? AND step = ?)",
		conversationID, core.RoleAssistant, step,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking step result: %w", err)
	}
	return exists, nil
}

// AppendMessage persists one message. Step zero stores NULL.
func (s *Store) AppendMessage(ctx context.Context, conversationID int64, role, content string, step int) error {
	err := s.retryWrite(ctx, "append message", func() error {
		_, err := s.db.ExecContext(ctx,
			"INSERT INTO messages (conversation_id, role, content, step, created_at) VALUES (?, ?, ?, ?, ?)",
			conversationID, role, content,
			sql.NullInt64{Int64: int64(step), Valid: step > 0}, nowUTC(),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}
	return nil
}

// MarkStoppedOnce records the stop marker unless one already exists.
// Check and insert run in one transaction so concurrent writers produce
// a single marker.
func (s *Store) MarkStoppedOnce(ctx context.Context, conversationID int64) (bool, error) {
	var wrote bool
	err := s.retryWrite(ctx, "mark stopped", func() error {
		wrote = false
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		var exists bool
		if err := tx.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM messages WHERE conversation_id = ? AND role = ? AND content = ?)",
			conversationID, core.RoleSystem, core.StopMarker,
		).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return tx.Commit()
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO messages (conversation_id, role, content, step, created_at) VALUES (?, ?, ?, NULL, ?)",
			conversationID, core.RoleSystem, core.StopMarker, nowUTC(),
		); err != nil {
			return err
		}
		wrote = true
		return tx.Commit()
	})
	if err != nil {
		return false, fmt.Errorf("marking conversation stopped: %w", err)
	}
	return wrote, nil
}
