package eval

import "fmt"

// ParseError reports a configuration file that could not be read or decoded.
type ParseError struct {
	File string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing %s: %v", e.File, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// DuplicateResourceError reports two resources declared under the same
// type.name address.
type DuplicateResourceError struct {
	Address string
}

func (e *DuplicateResourceError) Error() string {
	return fmt.Sprintf("duplicate resource %s: addresses must be unique", e.Address)
}

// UnknownVariableError reports a ${var.x} occurrence that cannot be resolved:
// the variable is undeclared, or declared without a default and unsupplied.
type UnknownVariableError struct {
	Name   string
	Reason string
}

func (e *UnknownVariableError) Error() string {
	return fmt.Sprintf("variable %q %s", e.Name, e.Reason)
}
