package core

import (
	"context"
)

// =============================================================================
// Store Ports
// =============================================================================

// UserStore persists user accounts.
type UserStore interface {
	// CreateUser inserts a new user with an already-hashed password.
	CreateUser(ctx context.Context, email, hashedPassword, name string) (*User, error)

	// UserByEmail returns the user with the given email, or a not_found error.
	UserByEmail(ctx context.Context, email string) (*User, error)

	// UserByID returns the user with the given id, or a not_found error.
	UserByID(ctx context.Context, id int64) (*User, error)
}

// LLMConfigStore persists per-user model endpoint configurations.
type LLMConfigStore interface {
	// CreateLLMConfig inserts cfg for its user. The first config a user
	// creates becomes the default automatically.
	CreateLLMConfig(ctx context.Context, cfg *LLMConfig) (*LLMConfig, error)

	// ListLLMConfigs returns all configs of a user, default first.
	ListLLMConfigs(ctx context.Context, userID int64) ([]*LLMConfig, error)

	// GetLLMConfig returns one config owned by the user.
	GetLLMConfig(ctx context.Context, userID, id int64) (*LLMConfig, error)

	// UpdateLLMConfig applies the non-nil fields of upd and returns the
	// updated config.
	UpdateLLMConfig(ctx context.Context, userID, id int64, upd LLMConfigUpdate) (*LLMConfig, error)

	// DeleteLLMConfig removes one config owned by the user.
	DeleteLLMConfig(ctx context.Context, userID, id int64) error

	// SetDefaultLLMConfig marks one config as default and clears the flag
	// on all others owned by the same user.
	SetDefaultLLMConfig(ctx context.Context, userID, id int64) (*LLMConfig, error)

	// DefaultLLMConfig returns the user's default config, falling back to
	// the most recent one when no default is set.
	DefaultLLMConfig(ctx context.Context, userID int64) (*LLMConfig, error)
}

// ConversationStore persists analysis sessions and their messages.
type ConversationStore interface {
	// CreateConversation starts a new session for the user.
	CreateConversation(ctx context.Context, userID int64, title, resumeText, jobDescription string) (*Conversation, error)

	// GetConversation returns one conversation owned by the user.
	GetConversation(ctx context.Context, userID, id int64) (*Conversation, error)

	// ListConversations returns a page of the user's conversations with
	// derived status, newest first.
	ListConversations(ctx context.Context, userID int64, limit, offset int) ([]*ConversationSummary, error)

	// DeleteConversation removes a conversation and its messages.
	DeleteConversation(ctx context.Context, userID, id int64) error

	// PruneConversations deletes the user's oldest conversations so at
	// most keep remain, returning how many were removed.
	PruneConversations(ctx context.Context, userID int64, keep int) (int, error)

	// ListMessages returns all messages of a conversation in insertion order.
	ListMessages(ctx context.Context, conversationID int64) ([]*Message, error)

	// HasStepResult reports whether an assistant message for the given
	// step was persisted.
	HasStepResult(ctx context.Context, conversationID int64, step int) (bool, error)
}

// ResumeStore persists uploaded resume files.
type ResumeStore interface {
	// CreateResumeFile records a stored upload and makes it the active
	// resume, deactivating any previous one.
	CreateResumeFile(ctx context.Context, userID int64, originalFilename, filePath string) (*ResumeFile, error)

	// ListResumeFiles returns the user's resumes, newest first.
	ListResumeFiles(ctx context.Context, userID int64) ([]*ResumeFile, error)

	// ActiveResumeFile returns the user's active resume, or a not_found
	// error when none is active.
	ActiveResumeFile(ctx context.Context, userID int64) (*ResumeFile, error)

	// GetResumeFile returns one resume owned by the user.
	GetResumeFile(ctx context.Context, userID, id int64) (*ResumeFile, error)

	// SetActiveResumeFile makes one resume active and deactivates the rest.
	SetActiveResumeFile(ctx context.Context, userID, id int64) (*ResumeFile, error)

	// DeleteResumeFile removes a resume row and returns it so the caller
	// can delete the file on disk. When the deleted resume was active,
	// the newest remaining one is promoted.
	DeleteResumeFile(ctx context.Context, userID, id int64) (*ResumeFile, error)

	// EvictResumeFiles deletes the user's oldest resumes so at most keep
	// remain, returning the deleted rows for disk cleanup.
	EvictResumeFiles(ctx context.Context, userID int64, keep int) ([]*ResumeFile, error)
}

// RunStore is the slice of the store a running analysis needs. Keeping
// it narrow lets workflow runs be tested against a small fake.
type RunStore interface {
	// AppendMessage persists one message. Step zero stores NULL.
	AppendMessage(ctx context.Context, conversationID int64, role, content string, step int) error

	// MarkStoppedOnce records the stop marker unless one already exists,
	// reporting whether it wrote anything. Check and insert run in one
	// transaction so concurrent writers produce a single marker.
	MarkStoppedOnce(ctx context.Context, conversationID int64) (bool, error)
}

// Store aggregates every persistence port backed by one database.
type Store interface {
	UserStore
	LLMConfigStore
	ConversationStore
	ResumeStore
	RunStore
}
