package main

import (
	"bytes"
	"testing"

	"form-backend/config"

	"github.com/alexedwards/scs/v2/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func execute(args ...string) (string, error) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute("version")
	require.NoError(t, err)
	assert.Contains(t, out, "form-backend dev")
}

func TestServeRejectsExtraArgs(t *testing.T) {
	_, err := execute("serve", "extra")
	assert.Error(t, err)
}

func TestServeFailsOnInvalidConfig(t *testing.T) {
	t.Run("environment", func(t *testing.T) {
		t.Setenv("PORT", "not-a-port")
		_, err := execute("serve")
		assert.ErrorIs(t, err, config.ErrInvalid)
	})

	t.Run("port flag", func(t *testing.T) {
		_, err := execute("serve", "--port", "70000")
		assert.ErrorIs(t, err, config.ErrInvalid)
	})
}

func TestDefaultSecretWarning(t *testing.T) {
	tests := []struct {
		env    string
		secret string
		warn   bool
	}{
		{"production", config.DefaultSessionSecret, true},
		{"production", "something-else", false},
		{"development", config.DefaultSessionSecret, false},
	}
	for _, tt := range tests {
		core, logs := observer.New(zap.WarnLevel)
		cfg := config.Default()
		cfg.Env = tt.env
		cfg.SessionSecret = tt.secret

		require.NotNil(t, newSessionManager(&cfg, memstore.New(), zap.New(core)))
		assert.Equal(t, tt.warn, logs.Len() == 1, "%s/%s", tt.env, tt.secret)
	}
}
