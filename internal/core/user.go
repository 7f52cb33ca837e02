package core

import "time"

// User is an account that owns resumes, LLM configurations, and
// conversations. Passwords are stored only as bcrypt hashes.
type User struct {
	ID             int64     `json:"id"`
	Email          string    `json:"email"`
	HashedPassword string    `json:"-"`
	Name           string    `json:"name,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
