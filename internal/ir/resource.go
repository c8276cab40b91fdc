package ir

// DefaultProvider is assumed when a resource declares no provider.
const DefaultProvider = "local"

// Resource represents a single declared resource.
type Resource struct {
	Type       string         `yaml:"type" pkl:"type" json:"type"` // e.g., "webApp"
	Name       string         `yaml:"name" pkl:"name" json:"name"`
	Provider   string         `yaml:"provider" pkl:"provider" json:"provider,omitempty"`
	Lifecycle  *Lifecycle     `yaml:"lifecycle" pkl:"lifecycle" json:"lifecycle,omitempty"`
	DependsOn  []string       `yaml:"dependsOn" pkl:"dependsOn" json:"dependsOn,omitempty"`
	Count      *int           `yaml:"count" pkl:"count" json:"count,omitempty"`
	ForEach    map[string]any `yaml:"forEach" pkl:"forEach" json:"forEach,omitempty"`
	Timeout    string         `yaml:"timeout" pkl:"timeout" json:"timeout,omitempty"`
	Attributes map[string]any `yaml:"attributes" pkl:"attributes" json:"attributes"` // Dynamic attributes
}

// Addr returns the resource's unique address, "type.name".
func (r *Resource) Addr() string {
	return Address(r.Type, r.Name)
}

// ProviderName returns the provider managing the resource.
func (r *Resource) ProviderName() string {
	if r.Provider != "" {
		return r.Provider
	}
	return DefaultProvider
}

type Lifecycle struct {
	PreventDestroy bool     `yaml:"preventDestroy" pkl:"preventDestroy" json:"preventDestroy,omitempty"`
	IgnoreChanges  []string `yaml:"ignoreChanges" pkl:"ignoreChanges" json:"ignoreChanges,omitempty"`
}

// Variable is a typed input declared by the configuration. A nil Default
// makes the variable required: it must be supplied per run.
type Variable struct {
	Type        string `yaml:"type" pkl:"type" json:"type"` // "string", "number" or "bool"
	Description string `yaml:"description" pkl:"description" json:"description,omitempty"`
	Default     any    `yaml:"default" pkl:"default" json:"default,omitempty"`
}
