package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name  string
		file  string
		body  string
		check func(t *testing.T, c *Config)
	}{
		{
			name: "yaml",
			file: "flowmap.yaml",
			body: `
log_level: DEBUG
tps: 60
playback:
  speed: 2
  loop: false
layout:
  seed: 42
stream:
  addr: "127.0.0.1:9000"
`,
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, "debug", c.LogLevel)
				assert.Equal(t, 60, c.TPS)
				assert.Equal(t, 2.0, c.Playback.Speed)
				assert.False(t, c.Playback.Loop)
				assert.Equal(t, int64(42), c.Layout.Seed)
				assert.Equal(t, "127.0.0.1:9000", c.Stream.Addr)
				assert.Equal(t, 20000.0, c.Playback.MasterDurationMs)
			},
		},
		{
			name: "json",
			file: "flowmap.json",
			body: `{"log_lines": 50, "canvas": {"width": 1600, "height": 900}, "particles": {"show_labels": false}}`,
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, 50, c.LogLines)
				assert.Equal(t, 1600.0, c.Canvas.Width)
				assert.Equal(t, 900.0, c.Canvas.Height)
				assert.False(t, c.Particles.ShowLabels)
				assert.True(t, c.Playback.Loop)
			},
		},
		{
			name: "zero values backfilled",
			file: "flowmap.json",
			body: `{"log_lines": 0, "logs_dir": "", "playback": {"max_delta_ms": 0}}`,
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, 1000, c.LogLines)
				assert.Equal(t, "logs", c.LogsDir)
				assert.Equal(t, 100.0, c.Playback.MaxDeltaMs)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Load(writeFile(t, tt.file, tt.body))
			require.NoError(t, err)
			tt.check(t, c)
		})
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"damping", `{"layout": {"damping": 1.5}}`, "Layout.Damping"},
		{"travel bounds", `{"particles": {"min_travel_ms": 500, "max_travel_ms": 200}}`, "Particles.MaxTravelMs"},
		{"level", `{"log_level": "loud"}`, "LogLevel: must be one of"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, "flowmap.json", tt.body))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalid))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadSyntaxError(t *testing.T) {
	_, err := Load(writeFile(t, "flowmap.yaml", "playback: [oops"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrInvalid))
}

func TestLoadMissingFileFallsBack(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}
