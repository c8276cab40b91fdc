// Package eval loads declaration files into IR types. Two front-ends share
// one model: YAML documents decoded directly, and Pkl modules evaluated
// through the Pkl toolchain. Loading is pure; it never touches remote state.
package eval

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/groundwork-io/groundwork/internal/ir"
)

// Load reads the entry point under projectDir, substitutes the supplied
// variable values and validates the result.
func Load(ctx context.Context, projectDir, entryPoint string, vars map[string]string) (*ir.Config, error) {
	var (
		cfg *ir.Config
		err error
	)
	switch strings.ToLower(filepath.Ext(entryPoint)) {
	case ".yaml", ".yml":
		cfg, err = loadYAML(filepath.Join(projectDir, entryPoint))
	case ".pkl":
		cfg, err = NewEvaluator(projectDir).LoadConfig(ctx, entryPoint, vars)
	default:
		return nil, &ParseError{File: entryPoint, Err: fmt.Errorf("unsupported configuration format %q", filepath.Ext(entryPoint))}
	}
	if err != nil {
		return nil, err
	}

	if err := validate(cfg); err != nil {
		var dup *DuplicateResourceError
		if errors.As(err, &dup) {
			return nil, err
		}
		return nil, &ParseError{File: entryPoint, Err: err}
	}
	if err := resolveVariables(cfg, vars); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *ir.Config) error {
	seen := make(map[string]bool, len(cfg.Resources))
	for _, r := range cfg.Resources {
		if r.Type == "" || r.Name == "" {
			return fmt.Errorf("resource %q is missing a type or name", ir.Address(r.Type, r.Name))
		}
		addr := r.Addr()
		if seen[addr] {
			return &DuplicateResourceError{Address: addr}
		}
		seen[addr] = true
	}
	return nil
}
