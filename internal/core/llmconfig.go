package core

import "time"

// LLMConfig is a stored model endpoint credential. Each user keeps at
// most one default config; analyses run against the default unless the
// request names another one.
type LLMConfig struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Provider  string    `json:"provider"`
	Name      string    `json:"name"`
	APIKey    string    `json:"-"`
	ModelName string    `json:"model_name"`
	BaseURL   string    `json:"base_url,omitempty"`
	IsDefault bool      `json:"is_default"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LLMConfigUpdate is a partial update; nil fields are left unchanged.
type LLMConfigUpdate struct {
	Name      *string
	APIKey    *string
	ModelName *string
	BaseURL   *string
	IsDefault *bool
}
