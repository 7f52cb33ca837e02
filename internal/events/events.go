// Package events defines the stream protocol between a running resume
// analysis and its SSE viewers. Every event marshals to a JSON object
// whose "type" field discriminates it; clients switch on that field.
package events

import "time"

// Event type constants as they appear on the wire.
const (
	TypeConversationStart = "conversation_start"
	TypePing              = "ping"
	TypeStepStart         = "step_start"
	TypeContent           = "content"
	TypeStepEnd           = "step_end"
	TypeComplete          = "complete"
	TypeStopped           = "stopped"
	TypeError             = "error"
)

// Event is the base interface for all stream events.
type Event interface {
	EventType() string
	Terminal() bool
}

// BaseEvent provides the type discriminator shared by all events.
type BaseEvent struct {
	Type string `json:"type"`
}

func (e BaseEvent) EventType() string { return e.Type }

// Terminal reports whether the event closes the stream. Exactly one
// terminal event ends every run: complete, stopped, or error.
func (e BaseEvent) Terminal() bool {
	switch e.Type {
	case TypeComplete, TypeStopped, TypeError:
		return true
	}
	return false
}

// ConversationStartEvent opens a fresh stream and tells the client
// which conversation was created for it.
type ConversationStartEvent struct {
	BaseEvent
	ConversationID int64  `json:"conversation_id"`
	Title          string `json:"title"`
	CreatedAt      string `json:"created_at"`
}

// NewConversationStartEvent creates a conversation start event.
func NewConversationStartEvent(conversationID int64, title string, createdAt time.Time) ConversationStartEvent {
	return ConversationStartEvent{
		BaseEvent:      BaseEvent{Type: TypeConversationStart},
		ConversationID: conversationID,
		Title:          title,
		CreatedAt:      createdAt.UTC().Format(time.RFC3339Nano),
	}
}

// PingEvent opens a reconnected stream before replayed state is sent.
type PingEvent struct {
	BaseEvent
}

// NewPingEvent creates a ping event.
func NewPingEvent() PingEvent {
	return PingEvent{BaseEvent: BaseEvent{Type: TypePing}}
}

// StepStartEvent announces that a workflow step began.
type StepStartEvent struct {
	BaseEvent
	Step        int    `json:"step"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// NewStepStartEvent creates a step start event.
func NewStepStartEvent(step int, title, description string) StepStartEvent {
	return StepStartEvent{
		BaseEvent:   BaseEvent{Type: TypeStepStart},
		Step:        step,
		Title:       title,
		Description: description,
	}
}

// ContentEvent carries one streamed fragment of a step's output.
type ContentEvent struct {
	BaseEvent
	Step    int    `json:"step"`
	Content string `json:"content"`
}

// NewContentEvent creates a content event.
func NewContentEvent(step int, content string) ContentEvent {
	return ContentEvent{
		BaseEvent: BaseEvent{Type: TypeContent},
		Step:      step,
		Content:   content,
	}
}

// StepEndEvent closes a step and repeats its full accumulated output,
// so clients that missed fragments can reconcile.
type StepEndEvent struct {
	BaseEvent
	Step    int    `json:"step"`
	Content string `json:"content"`
}

// NewStepEndEvent creates a step end event.
func NewStepEndEvent(step int, content string) StepEndEvent {
	return StepEndEvent{
		BaseEvent: BaseEvent{Type: TypeStepEnd},
		Step:      step,
		Content:   content,
	}
}

// CompleteEvent reports that every step finished.
type CompleteEvent struct {
	BaseEvent
}

// NewCompleteEvent creates a complete event.
func NewCompleteEvent() CompleteEvent {
	return CompleteEvent{BaseEvent: BaseEvent{Type: TypeComplete}}
}

// StoppedEvent reports that the run was cancelled.
type StoppedEvent struct {
	BaseEvent
}

// NewStoppedEvent creates a stopped event.
func NewStoppedEvent() StoppedEvent {
	return StoppedEvent{BaseEvent: BaseEvent{Type: TypeStopped}}
}

// ErrorEvent reports that the run failed.
type ErrorEvent struct {
	BaseEvent
	Message string `json:"message"`
}

// NewErrorEvent creates an error event.
func NewErrorEvent(message string) ErrorEvent {
	return ErrorEvent{
		BaseEvent: BaseEvent{Type: TypeError},
		Message:   message,
	}
}
