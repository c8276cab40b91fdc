package state

import (
	"context"
	"fmt"

	"github.com/groundwork-io/groundwork/internal/ir"
)

// Backend is a storage location for the state record plus its exclusive
// lock. The lock must be held for the whole apply; two applies against the
// same state never run concurrently.
type Backend interface {
	// Read loads the state from the backend.
	Read(ctx context.Context) (*ir.State, error)

	// Write saves the state to the backend.
	Write(ctx context.Context, state *ir.State) error

	// Lock acquires an exclusive lock on the state.
	Lock() error

	// Unlock releases the lock on the state.
	Unlock() error
}

// Config selects and configures a state backend.
type Config struct {
	Type string // "local" (default) or "s3"

	// local
	Path string

	// s3
	Bucket    string
	Key       string
	Region    string
	Profile   string
	LockTable string // DynamoDB table for locking; empty disables locking
}

// NewBackend creates a state backend from configuration.
func NewBackend(cfg *Config) (Backend, error) {
	if cfg == nil {
		return nil, fmt.Errorf("backend configuration is nil")
	}

	switch cfg.Type {
	case "local", "":
		if cfg.Path == "" {
			return nil, fmt.Errorf("local backend requires a state path")
		}
		return &localBackend{mgr: NewManager(cfg.Path)}, nil
	case "s3":
		return newS3Backend(cfg)
	default:
		return nil, fmt.Errorf("unknown backend type: %s", cfg.Type)
	}
}

// localBackend stores state in a file next to the configuration, locked via
// a sibling lock file.
type localBackend struct {
	mgr *Manager
}

func (b *localBackend) Read(ctx context.Context) (*ir.State, error) {
	return b.mgr.Read(ctx)
}

func (b *localBackend) Write(ctx context.Context, state *ir.State) error {
	return b.mgr.Write(ctx, state)
}

func (b *localBackend) Lock() error {
	return b.mgr.Lock()
}

func (b *localBackend) Unlock() error {
	return b.mgr.Unlock()
}
