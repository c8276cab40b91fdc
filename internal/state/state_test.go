package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groundwork-io/groundwork/internal/ir"
)

func TestReadMissingReturnsFreshState(t *testing.T) {
	mgr := NewManager(filepath.Join(t.TempDir(), "state.json"))

	s, err := mgr.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ir.StateVersion, s.Version)
	assert.Equal(t, 0, s.Serial)
	assert.NotEmpty(t, s.Lineage, "fresh state gets a lineage")
	assert.Empty(t, s.Resources)
}

func TestWriteReadRoundTrip(t *testing.T) {
	mgr := NewManager(filepath.Join(t.TempDir(), "state.json"))
	ctx := context.Background()

	s := NewState()
	s.Resources = append(s.Resources, &ir.ResourceState{
		Type:         "webApp",
		Name:         "appA",
		Provider:     "local",
		ID:           "local-webApp-appA",
		Inputs:       map[string]any{"plan": "basic"},
		Outputs:      map[string]any{"hostname": "appA.apps.local"},
		Dependencies: []string{"containerRegistry.registry"},
	})
	require.NoError(t, mgr.Write(ctx, s))

	got, err := mgr.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, s.Lineage, got.Lineage)
	require.Len(t, got.Resources, 1)
	assert.Equal(t, "webApp.appA", got.Resources[0].Addr())
	assert.Equal(t, "appA.apps.local", got.Resources[0].Outputs["hostname"])
	assert.Equal(t, []string{"containerRegistry.registry"}, got.Resources[0].Dependencies)
}

func TestWriteBumpsSerial(t *testing.T) {
	mgr := NewManager(filepath.Join(t.TempDir(), "state.json"))
	ctx := context.Background()

	s := NewState()
	require.NoError(t, mgr.Write(ctx, s))
	require.NoError(t, mgr.Write(ctx, s))

	got, err := mgr.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Serial)
}

func TestVersionGate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	mgr := NewManager(path)

	t.Run("newer version rejected", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte(`{"version": 99, "serial": 1, "lineage": "x", "resources": []}`), 0o644))
		_, err := mgr.Read(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "newer than supported")
	})

	t.Run("missing version rejected", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte(`{"serial": 1, "lineage": "x", "resources": []}`), 0o644))
		_, err := mgr.Read(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no schema version")
	})
}

func TestEncryptedRoundTrip(t *testing.T) {
	t.Setenv(EncryptionKeyEnvVar, "roundtrip-test-key")

	mgr := NewManager(filepath.Join(t.TempDir(), "state.json"))
	ctx := context.Background()

	s := NewState()
	s.Outputs = map[string]any{"endpoint": "https://appA.apps.local"}
	require.NoError(t, mgr.Write(ctx, s))

	raw, err := os.ReadFile(mgr.Path())
	require.NoError(t, err)
	assert.True(t, IsEncrypted(raw))

	got, err := mgr.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://appA.apps.local", got.Outputs["endpoint"])
}

func TestLockConflict(t *testing.T) {
	mgr := NewManager(filepath.Join(t.TempDir(), "state.json"))

	require.NoError(t, mgr.Lock())
	err := mgr.Lock()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locked by another process")

	require.NoError(t, mgr.Unlock())
	require.NoError(t, mgr.Lock())
	require.NoError(t, mgr.Unlock())
}

func TestLocalBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	backend, err := NewBackend(&Config{Type: "local", Path: path})
	require.NoError(t, err)

	require.NoError(t, backend.Lock())
	defer backend.Unlock()

	s, err := backend.Read(context.Background())
	require.NoError(t, err)
	require.NoError(t, backend.Write(context.Background(), s))

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestNewBackendErrors(t *testing.T) {
	_, err := NewBackend(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nil")

	_, err = NewBackend(&Config{Type: "local"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "state path")

	_, err = NewBackend(&Config{Type: "s3"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket")

	_, err = NewBackend(&Config{Type: "consul"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown backend type")
}
