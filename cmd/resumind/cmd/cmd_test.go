package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureStdout runs fn with os.Stdout redirected to a pipe and returns
// everything fn printed.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()

	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	fn()

	require.NoError(t, w.Close())
	os.Stdout = oldStdout

	var buf bytes.Buffer
	_, err = buf.ReadFrom(r)
	require.NoError(t, err)
	return buf.String()
}

func TestVersionCommand(t *testing.T) {
	SetVersion("v1.2.3", "abc123def", "2024-01-15")

	output := captureStdout(t, func() {
		versionCmd.Run(versionCmd, []string{})
	})

	assert.Contains(t, output, "resumind v1.2.3")
	assert.Contains(t, output, "commit: abc123def")
	assert.Contains(t, output, "built:  2024-01-15")
}

func TestCommandsRegistered(t *testing.T) {
	want := map[string]bool{
		"serve":   false,
		"doctor":  false,
		"version": false,
	}
	for _, cmd := range rootCmd.Commands() {
		if _, ok := want[cmd.Name()]; ok {
			want[cmd.Name()] = true
		}
	}
	for name, found := range want {
		assert.True(t, found, "command %q should be registered", name)
	}
}

func TestServeFlagsBindToConfig(t *testing.T) {
	// Bindings are global; rebind so the test does not depend on init
	// order or on other tests resetting viper.
	require.NoError(t, viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host")))
	require.NoError(t, viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port")))

	require.NoError(t, serveCmd.Flags().Set("host", "127.0.0.1"))
	require.NoError(t, serveCmd.Flags().Set("port", "3000"))
	defer func() {
		_ = serveCmd.Flags().Set("host", "0.0.0.0")
		_ = serveCmd.Flags().Set("port", "8000")
	}()

	assert.Equal(t, "127.0.0.1", viper.GetString("server.host"))
	assert.Equal(t, 3000, viper.GetInt("server.port"))
}

func TestDoctorCommand(t *testing.T) {
	tmpDir := t.TempDir()

	configPath := filepath.Join(tmpDir, "config.yaml")
	configYAML := "database:\n  path: " + filepath.Join(tmpDir, "data", "test.db") + "\n" +
		"uploads:\n  dir: " + filepath.Join(tmpDir, "uploads") + "\n"
	require.NoError(t, os.WriteFile(configPath, []byte(configYAML), 0o600))

	oldCfgFile := cfgFile
	cfgFile = configPath
	defer func() { cfgFile = oldCfgFile }()

	var err error
	output := captureStdout(t, func() {
		err = runDoctor(doctorCmd, []string{})
	})

	require.NoError(t, err, "output:\n%s", output)
	assert.Contains(t, output, "config")
	assert.Contains(t, output, "database")
	assert.Contains(t, output, "uploads dir")
	assert.Contains(t, output, "prompts")
	assert.Contains(t, output, "memory:")
	assert.Contains(t, output, "disk:")
	assert.NotContains(t, output, "✗")
}

func TestDoctorCommandBadConfig(t *testing.T) {
	tmpDir := t.TempDir()

	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("uploads:\n  max_size_mb: 0\n"), 0o600))

	oldCfgFile := cfgFile
	cfgFile = configPath
	defer func() { cfgFile = oldCfgFile }()

	var err error
	output := captureStdout(t, func() {
		err = runDoctor(doctorCmd, []string{})
	})

	require.Error(t, err)
	assert.Contains(t, output, "uploads.max_size_mb")
}
