package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anthias-labs/arena/internal/domain"
)

func TestLoadConfigErrorsExitWithConfigCode(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "arena.ini")
	require.NoError(t, os.WriteFile(bad, []byte("steps=1"), 0o644))
	malformed := filepath.Join(dir, "arena.toml")
	require.NoError(t, os.WriteFile(malformed, []byte("[run\nsteps = "), 0o644))

	tests := []struct {
		name string
		path string
		save string
	}{
		{"unsupported extension", bad, ""},
		{"missing file", filepath.Join(dir, "nope.toml"), ""},
		{"malformed file", malformed, ""},
		{"invalid save override", "", ":results.csv"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadConfig(tt.path, -1, tt.save)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrConfig)
			assert.Equal(t, exitConfig, exitCode(err))
		})
	}
}

func TestLoadConfigAppliesOverrides(t *testing.T) {
	cfg, err := loadConfig("", 7, "json:out.json")
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Run.Steps)
	assert.Equal(t, "json:out.json", cfg.Run.SaveData)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitConfig, exitCode(&domain.ConfigError{Field: "fee"}))
	assert.Equal(t, exitFailure, exitCode(&domain.DeploymentError{Err: errors.New("revert")}))
}
