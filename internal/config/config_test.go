package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	s, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", s.LogLevel)
	assert.Equal(t, 10, s.Parallelism)
	assert.Equal(t, 4, s.Workers)
	assert.False(t, s.NoColor)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("GROUNDWORK_LOG_LEVEL", "debug")
	t.Setenv("GROUNDWORK_PARALLELISM", "2")
	t.Setenv("GROUNDWORK_BACKEND", "s3")
	t.Setenv("GROUNDWORK_S3_BUCKET", "state-bucket")
	t.Setenv("GROUNDWORK_NO_COLOR", "true")

	s, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", s.LogLevel)
	assert.Equal(t, 2, s.Parallelism)
	assert.Equal(t, "s3", s.Backend)
	assert.Equal(t, "state-bucket", s.S3Bucket)
	assert.True(t, s.NoColor)
}
