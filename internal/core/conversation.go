package core

import "time"

// Message roles as persisted in the messages table.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// StopMarker is the system message content recorded when an analysis is
// cancelled. Its presence distinguishes a stopped conversation from one
// that is still in progress.
const StopMarker = "[STOPPED]"

// Conversation statuses derived from persisted messages. A conversation
// is never updated in place; status is computed from what was recorded.
const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusStopped    = "stopped"
)

// Conversation is one analysis session: the resume text and job
// description it was started with, plus the messages produced while the
// workflow ran.
type Conversation struct {
	ID             int64     `json:"id"`
	UserID         int64     `json:"user_id"`
	Title          string    `json:"title"`
	ResumeText     string    `json:"-"`
	JobDescription string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}

// ConversationSummary is the list-view projection of a conversation.
// Status is derived: completed if the final step result was persisted,
// stopped if a stop marker exists, in_progress otherwise.
type ConversationSummary struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is one persisted entry of a conversation. Step is set on
// assistant messages holding a step result and zero elsewhere.
type Message struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	Step           int       `json:"step,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
