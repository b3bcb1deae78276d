package config

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateBaseURL(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateBaseURL("http://localhost:9024"))
	assert.NoError(t, v.ValidateBaseURL("https://hw.example.edu/api"))
	assert.Error(t, v.ValidateBaseURL(""))
	assert.Error(t, v.ValidateBaseURL("ftp://host"))
	assert.Error(t, v.ValidateBaseURL("localhost:9024"))
}

func TestValidateEnums(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateAuthField("studentId"))
	assert.Error(t, v.ValidateAuthField("StudentID"))
	assert.NoError(t, v.ValidateMissingExpiry("expired"))
	assert.Error(t, v.ValidateMissingExpiry(""))
	assert.NoError(t, v.ValidateBackend("sqlite"))
	assert.Error(t, v.ValidateBackend("postgres"))

	err := v.ValidateLogLevel("verbose")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "debug, info, warn, error")
}

func TestValidateDuration(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateDuration("ttl", time.Hour, time.Second))
	assert.Error(t, v.ValidateDuration("ttl", 0, time.Second))
}

func TestWizardRun(t *testing.T) {
	t.Run("accept defaults", func(t *testing.T) {
		var out bytes.Buffer
		w := NewWizardIO(strings.NewReader("\n\n\n\n"), &out)

		cfg, err := w.Run(nil)

		require.NoError(t, err)
		assert.Equal(t, DefaultConfig().API, cfg.API)
		assert.Equal(t, "file", cfg.Store.Backend)
		assert.Contains(t, out.String(), "Configuration complete!")
	})

	t.Run("re-prompts on invalid url", func(t *testing.T) {
		var out bytes.Buffer
		input := "not a url\nhttps://hw.example.edu/\nstudentId\nredis\nredis:6379\nverbose\n"
		w := NewWizardIO(strings.NewReader(input), &out)

		cfg, err := w.Run(nil)

		require.NoError(t, err)
		assert.Equal(t, "https://hw.example.edu", cfg.API.BaseURL)
		assert.Equal(t, "studentId", cfg.API.AuthField)
		assert.Equal(t, "redis", cfg.Store.Backend)
		assert.Equal(t, "redis:6379", cfg.Store.Redis.Addr)
		assert.Equal(t, "info", cfg.Logging.Level)
		assert.Contains(t, out.String(), "Error:")
		assert.Contains(t, out.String(), "Warning:")
	})

	t.Run("keeps existing values", func(t *testing.T) {
		base := DefaultConfig()
		base.API.BaseURL = "http://school:8080"
		w := NewWizardIO(strings.NewReader("\n\n\n\n"), &bytes.Buffer{})

		cfg, err := w.Run(base)

		require.NoError(t, err)
		assert.Equal(t, "http://school:8080", cfg.API.BaseURL)
	})

	t.Run("input ends early", func(t *testing.T) {
		w := NewWizardIO(strings.NewReader(""), &bytes.Buffer{})
		_, err := w.Run(nil)
		assert.Error(t, err)
	})
}
