package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation: %s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validator validates configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// Validate validates the entire configuration.
func (v *Validator) Validate(cfg *Config) error {
	v.validateServer(&cfg.Server)
	v.validateDatabase(&cfg.Database)
	v.validateUploads(&cfg.Uploads)
	v.validateAuth(&cfg.Auth)
	v.validateAnalysis(&cfg.Analysis)
	v.validateLog(&cfg.Log)

	if len(v.errors) > 0 {
		return v.errors
	}
	return nil
}

func (v *Validator) addError(field string, value interface{}, message string) {
	v.errors = append(v.errors, ValidationError{Field: field, Value: value, Message: message})
}

func (v *Validator) validateServer(cfg *ServerConfig) {
	if cfg.Port < 1 || cfg.Port > 65535 {
		v.addError("server.port", cfg.Port, "must be between 1 and 65535")
	}
	if cfg.Host == "" {
		v.addError("server.host", cfg.Host, "must not be empty")
	}
}

func (v *Validator) validateDatabase(cfg *DatabaseConfig) {
	if cfg.Path == "" {
		v.addError("database.path", cfg.Path, "must not be empty")
	}
}

func (v *Validator) validateUploads(cfg *UploadsConfig) {
	if cfg.Dir == "" {
		v.addError("uploads.dir", cfg.Dir, "must not be empty")
	}
	if cfg.MaxSizeMB < 1 {
		v.addError("uploads.max_size_mb", cfg.MaxSizeMB, "must be at least 1")
	}
}

func (v *Validator) validateAuth(cfg *AuthConfig) {
	if cfg.Secret == "" {
		v.addError("auth.secret", "", "must not be empty")
	}
	if cfg.TokenTTL <= 0 {
		v.addError("auth.token_ttl", cfg.TokenTTL, "must be positive")
	}
}

func (v *Validator) validateAnalysis(cfg *AnalysisConfig) {
	if cfg.MaxConcurrent < 1 {
		v.addError("analysis.max_concurrent", cfg.MaxConcurrent, "must be at least 1")
	}
	if cfg.QueueSize < 1 {
		v.addError("analysis.queue_size", cfg.QueueSize, "must be at least 1")
	}
	if cfg.SendTimeout <= 0 {
		v.addError("analysis.send_timeout", cfg.SendTimeout, "must be positive")
	}
	if cfg.KeepConversations < 1 {
		v.addError("analysis.keep_conversations", cfg.KeepConversations, "must be at least 1")
	}
	if cfg.MaxResumes < 1 {
		v.addError("analysis.max_resumes", cfg.MaxResumes, "must be at least 1")
	}
	if cfg.Temperature < 0 || cfg.Temperature > 2 {
		v.addError("analysis.temperature", cfg.Temperature, "must be between 0 and 2")
	}
}

func (v *Validator) validateLog(cfg *LogConfig) {
	switch cfg.Level {
	case "debug", "info", "warn", "error":
	default:
		v.addError("log.level", cfg.Level, "must be one of: debug, info, warn, error")
	}
	switch cfg.Format {
	case "auto", "text", "json":
	default:
		v.addError("log.format", cfg.Format, "must be one of: auto, text, json")
	}
}
