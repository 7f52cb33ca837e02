package config

import "time"

// DefaultAuthSecret is the development fallback for auth.secret. The
// server warns loudly when it is still in use.
const DefaultAuthSecret = "resumind-dev-secret-change-in-production"

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Uploads  UploadsConfig  `mapstructure:"uploads"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Analysis AnalysisConfig `mapstructure:"analysis"`
	Prompts  PromptsConfig  `mapstructure:"prompts"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host        string   `mapstructure:"host"`
	Port        int      `mapstructure:"port"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// DatabaseConfig configures the SQLite database.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// UploadsConfig configures resume file storage.
type UploadsConfig struct {
	Dir       string `mapstructure:"dir"`
	MaxSizeMB int64  `mapstructure:"max_size_mb"`
}

// AuthConfig configures token issuing and the built-in test account.
type AuthConfig struct {
	Secret       string        `mapstructure:"secret"`
	TokenTTL     time.Duration `mapstructure:"token_ttl"`
	TestEmail    string        `mapstructure:"test_email"`
	TestPassword string        `mapstructure:"test_password"`
}

// AnalysisConfig configures workflow execution and streaming.
type AnalysisConfig struct {
	// MaxConcurrent caps running analyses per process. Admitting one
	// more evicts the oldest running analysis.
	MaxConcurrent int `mapstructure:"max_concurrent"`

	// QueueSize is the per-listener event buffer.
	QueueSize int `mapstructure:"queue_size"`

	// SendTimeout bounds how long a broadcast waits on slow listeners
	// before dropping the event for them.
	SendTimeout time.Duration `mapstructure:"send_timeout"`

	// KeepConversations is how many conversations a user retains;
	// starting a new analysis prunes older ones.
	KeepConversations int `mapstructure:"keep_conversations"`

	// MaxResumes is how many uploaded files a user retains.
	MaxResumes int `mapstructure:"max_resumes"`

	// Temperature is passed to the model on every step.
	Temperature float64 `mapstructure:"temperature"`
}

// PromptsConfig configures step prompt templates.
type PromptsConfig struct {
	// Dir optionally overrides the embedded templates with files on
	// disk, reloaded on change.
	Dir string `mapstructure:"dir"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}
