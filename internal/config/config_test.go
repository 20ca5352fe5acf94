package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":3000", cfg.Server.Addr)
	assert.Equal(t, "requests.xlsx", cfg.Data.RequestsPath)
	assert.Equal(t, []string{"Industrial Zone 1", "Industrial Zone 2", "Gizri", "Defence", "Korangi"}, cfg.Form.Sites)
	assert.Equal(t, 5, cfg.Form.TimezoneOffsetHours)
	assert.Equal(t, 3, cfg.Export.MaxAttempts)
	assert.Equal(t, "memory", cfg.Session.Backend)
	assert.Equal(t, 12*time.Hour, cfg.Session.TTL)
	assert.True(t, cfg.Data.BackupLog)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TOOLFORM_FORM_SITES", "Gizri, ,Korangi ")
	t.Setenv("TOOLFORM_EXPORT_MAX_ATTEMPTS", "5")
	t.Setenv("TOOLFORM_SESSION_TTL", "30m")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"Gizri", "Korangi"}, cfg.Form.Sites)
	assert.Equal(t, 5, cfg.Export.MaxAttempts)
	assert.Equal(t, 30*time.Minute, cfg.Session.TTL)
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"unknown backend", "TOOLFORM_SESSION_BACKEND", "etcd"},
		{"zero attempts", "TOOLFORM_EXPORT_MAX_ATTEMPTS", "0"},
		{"not a number", "TOOLFORM_FORM_RECENT_LIMIT", "fifty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
