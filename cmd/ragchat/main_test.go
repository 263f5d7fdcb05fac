package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/config"
)

func withFlags(t *testing.T, cfg, server string) {
	t.Helper()
	oldCfg, oldServer := configPath, serverURL
	configPath, serverURL = cfg, server
	t.Cleanup(func() { configPath, serverURL = oldCfg, oldServer })
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelInfo, parseLevel("info"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelWarn, parseLevel(""))
}

func TestReadConfig_MissingFileUsesDefaults(t *testing.T) {
	withFlags(t, filepath.Join(t.TempDir(), "none.json"), "http://chat.example:9000/")

	cfg, err := readConfig()
	require.NoError(t, err)
	assert.Equal(t, "http://chat.example:9000", cfg.Server.BaseURL)
	assert.Equal(t, config.DefaultMaxSizeBytes, int(cfg.Attachments.MaxSizeBytes))
}

func TestReadConfig_InvalidFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"chat": {"rag": "sometimes"}}`), 0o600))
	withFlags(t, path, "")

	_, err := readConfig()
	assert.Error(t, err)
}

func TestSetupLogger_File(t *testing.T) {
	old := logger
	t.Cleanup(func() { logger = old })

	path := filepath.Join(t.TempDir(), "logs", "ragchat.log")
	closeLog, err := setupLogger(config.GeneralConfig{LogLevel: "info", LogFile: path})
	require.NoError(t, err)
	logger.Info("hello", "k", "v")
	closeLog()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
}
