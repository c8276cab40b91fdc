package ir

// Action classifies a planned change.
type Action string

const (
	ActionCreate Action = "CREATE"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
	ActionNoOp   Action = "NOOP"
)

// Plan is an ordered change-set: creates and updates in dependency order,
// followed by deletes in reverse dependency order.
type Plan struct {
	Metadata *PlanMetadata     `json:"metadata" yaml:"metadata"`
	Changes  []*ResourceChange `json:"changes" yaml:"changes"`
	Summary  *PlanSummary      `json:"summary" yaml:"summary"`
	Outputs  map[string]any    `json:"outputs,omitempty" yaml:"outputs,omitempty"`
}

// HasChanges reports whether applying the plan would do anything.
func (p *Plan) HasChanges() bool {
	return len(p.Changes) > 0
}

type PlanMetadata struct {
	Timestamp        string `json:"timestamp" yaml:"timestamp"`
	ConfigHash       string `json:"configHash" yaml:"configHash"`
	PriorStateSerial int    `json:"priorStateSerial" yaml:"priorStateSerial"`
}

type ResourceChange struct {
	Address string                    `json:"address" yaml:"address"`
	Action  Action                    `json:"action" yaml:"action"`
	Desired *Resource                 `json:"resource,omitempty" yaml:"resource,omitempty"`
	Prior   *ResourceState            `json:"prior,omitempty" yaml:"prior,omitempty"`
	Diff    map[string]*AttributeDiff `json:"diff,omitempty" yaml:"diff,omitempty"`
}

type AttributeDiff struct {
	Before  any    `json:"before" yaml:"before"`
	After   any    `json:"after" yaml:"after"`
	Unknown bool   `json:"unknown,omitempty" yaml:"unknown,omitempty"` // after-value known only once the dependency is applied
	Action  Action `json:"action" yaml:"action"`
}

type PlanSummary struct {
	Create int `json:"create" yaml:"create"`
	Update int `json:"update" yaml:"update"`
	Delete int `json:"delete" yaml:"delete"`
	NoOp   int `json:"noop" yaml:"noop"`
}
