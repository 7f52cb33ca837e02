package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader handles configuration loading from multiple sources.
type Loader struct {
	v          *viper.Viper
	configFile string
	envPrefix  string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		v:         viper.New(),
		envPrefix: "RESUMIND",
	}
}

// NewLoaderWithViper creates a loader using an existing viper instance.
// This allows integration with CLI flag bindings.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{
		v:         v,
		envPrefix: "RESUMIND",
	}
}

// WithConfigFile sets an explicit config file path.
func (l *Loader) WithConfigFile(path string) *Loader {
	l.configFile = path
	return l
}

// Viper returns the underlying viper instance for flag binding.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load loads configuration from all sources.
// Precedence (highest to lowest):
// 1. CLI flags (set via viper.BindPFlag)
// 2. Environment variables (RESUMIND_*)
// 3. Project config (.resumind.yaml in current directory)
// 4. User config (~/.config/resumind/config.yaml)
// 5. Defaults
func (l *Loader) Load() (*Config, error) {
	l.setDefaults()

	l.v.SetEnvPrefix(l.envPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	} else {
		l.v.SetConfigName(".resumind")
		l.v.SetConfigType("yaml")

		// Project config takes precedence over user config
		l.v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			l.v.AddConfigPath(filepath.Join(home, ".config", "resumind"))
		}
	}

	// Read config file (ignore not found)
	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values.
func (l *Loader) setDefaults() {
	// Server defaults
	l.v.SetDefault("server.host", "0.0.0.0")
	l.v.SetDefault("server.port", 8000)
	l.v.SetDefault("server.cors_origins", []string{"*"})

	// Database defaults
	l.v.SetDefault("database.path", "data/resumind.db")

	// Upload defaults
	l.v.SetDefault("uploads.dir", "data/uploads")
	l.v.SetDefault("uploads.max_size_mb", 10)

	// Auth defaults
	l.v.SetDefault("auth.secret", DefaultAuthSecret)
	l.v.SetDefault("auth.token_ttl", "168h")
	l.v.SetDefault("auth.test_email", "test@resume.ai")
	l.v.SetDefault("auth.test_password", "test123")

	// Analysis defaults
	l.v.SetDefault("analysis.max_concurrent", 1)
	l.v.SetDefault("analysis.queue_size", 256)
	l.v.SetDefault("analysis.send_timeout", "2s")
	l.v.SetDefault("analysis.keep_conversations", 10)
	l.v.SetDefault("analysis.max_resumes", 5)
	l.v.SetDefault("analysis.temperature", 0.7)

	// Prompt defaults (empty dir means embedded templates only)
	l.v.SetDefault("prompts.dir", "")

	// Log defaults
	l.v.SetDefault("log.level", "info")
	l.v.SetDefault("log.format", "auto")
}

// ConfigFile returns the config file path if one was used.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}
