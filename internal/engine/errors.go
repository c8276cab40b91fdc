package engine

import (
	"errors"
	"fmt"
	"strings"
)

// UnknownReferenceError reports a dependsOn entry or attribute reference
// pointing at a resource the configuration does not declare.
type UnknownReferenceError struct {
	Address string // referencing resource
	Target  string // missing address
}

func (e *UnknownReferenceError) Error() string {
	return fmt.Sprintf("%s references unknown resource %s", e.Address, e.Target)
}

// CyclicDependencyError reports a reference cycle. Path holds the full cycle
// with the first node repeated last, e.g. [a, b, a].
type CyclicDependencyError struct {
	Path []string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("dependency cycle detected: %s", strings.Join(e.Path, " -> "))
}

// ProviderCallError reports a failed provider call during apply.
type ProviderCallError struct {
	Address   string
	Operation string // "create", "update", "delete" or "read"
	Err       error
}

func (e *ProviderCallError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Operation, e.Address, e.Err)
}

func (e *ProviderCallError) Unwrap() error { return e.Err }

// PartialApplyError reports an apply run that stopped before completing the
// plan. Persisted state reflects every address in Succeeded and nothing else;
// re-running plan against it picks up where the run stopped.
type PartialApplyError struct {
	Succeeded []string
	Failed    []string
	Skipped   []string
	Errors    []error
}

func (e *PartialApplyError) Error() string {
	return fmt.Sprintf("apply incomplete: %d succeeded, %d failed, %d skipped: %v",
		len(e.Succeeded), len(e.Failed), len(e.Skipped), errors.Join(e.Errors...))
}

func (e *PartialApplyError) Unwrap() []error { return e.Errors }
