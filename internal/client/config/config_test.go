package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, "http://127.0.0.1:8080", c.Endpoint)
	assert.Equal(t, 30*time.Second, c.SyncInterval)
	assert.Equal(t, 15*time.Second, c.RequestTimeout)
	assert.Equal(t, "quill.db", c.DatabasePath)
	assert.Equal(t, "quill.log", c.LogFile)
}

func TestLoadConfig_UsesDefaultsBeforeParsing(t *testing.T) {
	cfg := LoadConfig()

	require.NotNil(t, cfg, "LoadConfig must not return nil")
	assert.Equal(t, "http://127.0.0.1:8080", cfg.Endpoint)
	assert.Equal(t, 30*time.Second, cfg.SyncInterval)
}
