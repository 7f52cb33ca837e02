package core

import "time"

// ResumeFile is an uploaded resume kept on disk. Exactly one file per
// user is active at a time; the active file is the one analyses read.
type ResumeFile struct {
	ID               int64     `json:"id"`
	UserID           int64     `json:"user_id"`
	OriginalFilename string    `json:"original_filename"`
	FilePath         string    `json:"-"`
	IsActive         bool      `json:"is_active"`
	CreatedAt        time.Time `json:"created_at"`
}
