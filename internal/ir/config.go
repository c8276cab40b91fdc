package ir

// Config represents the top-level configuration. By the time a Config leaves
// the loader its variables have been substituted into attribute values;
// count/forEach expansion happens later, in the engine.
type Config struct {
	Variables map[string]*Variable `yaml:"variables" pkl:"variables" json:"variables,omitempty"`
	Resources []*Resource          `yaml:"resources" pkl:"resources" json:"resources"`
	Outputs   map[string]any       `yaml:"outputs" pkl:"outputs" json:"outputs,omitempty"`
}

// Resource returns the declared resource with the given address, or nil.
func (c *Config) Resource(addr string) *Resource {
	for _, r := range c.Resources {
		if r.Addr() == addr {
			return r
		}
	}
	return nil
}
