// Package state persists the engine's versioned state record. The on-disk
// format is JSON with a mandatory schema version; states written by a newer
// engine are rejected rather than misread.
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/groundwork-io/groundwork/internal/ir"
)

// Manager handles reading and writing of a local state file.
type Manager struct {
	path string
}

func NewManager(path string) *Manager {
	return &Manager{path: path}
}

// Path returns the state file location.
func (m *Manager) Path() string {
	return m.path
}

// Read loads the state from the configured path. A missing file yields a
// fresh empty state with a new lineage. Encrypted files are transparently
// decrypted.
func (m *Manager) Read(ctx context.Context) (*ir.State, error) {
	raw, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		return NewState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading state file %s: %w", m.path, err)
	}
	return ParseState(raw)
}

// Write saves the state to the configured path, bumping the serial. The
// write is atomic: a temp file in the same directory renamed over the
// target, so a crash never leaves a half-written state behind.
func (m *Manager) Write(ctx context.Context, state *ir.State) error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	state.Serial++
	content, err := MarshalState(state)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(m.path), ".state-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp state file: %w", err)
	}
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing temp state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), m.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replacing state file %s: %w", m.path, err)
	}
	return nil
}

// NewState returns an empty state with a fresh lineage.
func NewState() *ir.State {
	return &ir.State{
		Version: ir.StateVersion,
		Serial:  0,
		Lineage: uuid.NewString(),
	}
}

// ParseState decodes raw state content, decrypting first when needed, and
// enforces the schema version gate.
func ParseState(raw []byte) (*ir.State, error) {
	if IsEncrypted(raw) {
		decrypted, err := DecryptState(raw)
		if err != nil {
			return nil, fmt.Errorf("decrypting state: %w", err)
		}
		raw = decrypted
	}

	var state ir.State
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("parsing state: %w", err)
	}
	if err := state.CheckVersion(); err != nil {
		return nil, err
	}
	return &state, nil
}

// MarshalState encodes a state record, encrypting when a key is configured.
func MarshalState(state *ir.State) ([]byte, error) {
	state.Version = ir.StateVersion
	if state.Lineage == "" {
		state.Lineage = uuid.NewString()
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding state: %w", err)
	}
	data = append(data, '\n')

	encrypted, err := EncryptState(data)
	if err != nil {
		return nil, fmt.Errorf("encrypting state: %w", err)
	}
	return encrypted, nil
}
