package ir

import "fmt"

// StateVersion is the state schema version this engine reads and writes.
// A persisted state with a newer version is rejected, never misread.
const StateVersion = 1

// State represents the persistent state.
type State struct {
	Version   int              `json:"version" yaml:"version"`
	Serial    int              `json:"serial" yaml:"serial"`
	Lineage   string           `json:"lineage" yaml:"lineage"`
	Resources []*ResourceState `json:"resources" yaml:"resources"`
	Outputs   map[string]any   `json:"outputs,omitempty" yaml:"outputs,omitempty"`
}

type ResourceState struct {
	Type         string         `json:"type" yaml:"type"`
	Name         string         `json:"name" yaml:"name"`
	Provider     string         `json:"provider,omitempty" yaml:"provider,omitempty"`
	ID           string         `json:"id" yaml:"id"`         // remote identifier returned by the provider
	Inputs       map[string]any `json:"inputs" yaml:"inputs"` // last-applied attributes
	Outputs      map[string]any `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	Dependencies []string       `json:"dependencies,omitempty" yaml:"dependencies,omitempty"` // addresses captured at apply time
}

// Addr returns the record's resource address, "type.name".
func (rs *ResourceState) Addr() string {
	return Address(rs.Type, rs.Name)
}

// CheckVersion returns an error when the state was written by a newer engine.
func (s *State) CheckVersion() error {
	if s.Version == 0 {
		return fmt.Errorf("state has no schema version")
	}
	if s.Version > StateVersion {
		return fmt.Errorf("state schema version %d is newer than supported version %d", s.Version, StateVersion)
	}
	return nil
}

// Resource returns the record with the given address, or nil.
func (s *State) Resource(addr string) *ResourceState {
	for _, rs := range s.Resources {
		if rs.Addr() == addr {
			return rs
		}
	}
	return nil
}

// RemoveResource drops the record with the given address, if present.
func (s *State) RemoveResource(addr string) {
	for i, rs := range s.Resources {
		if rs.Addr() == addr {
			s.Resources = append(s.Resources[:i], s.Resources[i+1:]...)
			return
		}
	}
}
