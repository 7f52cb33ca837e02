package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/resumind/resumind/internal/core"
)

// CreateUser inserts a new account. The password must already be hashed.
func (s *Store) CreateUser(ctx context.Context, email, hashedPassword, name string) (*core.User, error) {
	now := nowUTC()
	var id int64

	err := s.retryWrite(ctx, "create user", func() error {
		res, err := s.db.ExecContext(ctx,
			"INSERT INTO users (email, hashed_password, name, created_at) VALUES (?, ?, ?, ?)",
			email, hashedPassword, nullableString(name), now,
		)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, core.ErrConflict("email_taken", "An account with this email already exists").WithCause(err)
		}
		return nil, fmt.Errorf("inserting user: %w", err)
	}

	return &core.User{
		ID:             id,
		Email:          email,
		HashedPassword: hashedPassword,
		Name:           name,
		CreatedAt:      parseTime(now),
	}, nil
}

// UserByEmail looks up an account by email.
func (s *Store) UserByEmail(ctx context.Context, email string) (*core.User, error) {
	row := s.readDB.QueryRowContext(ctx,
		"SELECT id, email, hashed_password, name, created_at FROM users WHERE email = ?",
		email,
	)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound("user_not_found", "User not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying user by email: %w", err)
	}
	return user, nil
}

// UserByID looks up an account by id.
func (s *Store) UserByID(ctx context.Context, id int64) (*core.User, error) {
	row := s.readDB.QueryRowContext(ctx,
		"SELECT id, email, hashed_password, name, created_at FROM users WHERE id = ?",
		id,
	)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound("user_not_found", "User not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying user by id: %w", err)
	}
	return user, nil
}

func scanUser(row scanner) (*core.User, error) {
	var (
		u         core.User
		name      sql.NullString
		createdAt string
	)
	if err := row.Scan(&u.ID, &u.Email, &u.HashedPassword, &name, &createdAt); err != nil {
		return nil, err
	}
	u.Name = name.String
	u.CreatedAt = parseTime(createdAt)
	return &u, nil
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
