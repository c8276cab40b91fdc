package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/groundwork-io/groundwork/internal/ir"
	"github.com/groundwork-io/groundwork/internal/logging"
	"github.com/groundwork-io/groundwork/internal/provider"
)

// DefaultParallelism bounds concurrent provider calls during apply.
const DefaultParallelism = 10

// Engine calculates and applies execution plans.
type Engine struct {
	registry        *provider.Registry
	Parallelism     int
	Retry           *RetryPolicy // nil means provider calls are never retried
	ContinueOnError bool         // keep applying independent changes past a failure
}

func NewEngine(registry *provider.Registry) *Engine {
	return &Engine{
		registry:    registry,
		Parallelism: DefaultParallelism,
	}
}

// CreatePlan diffs the desired configuration against prior state and returns
// the ordered change-set: creates and updates in creation order, followed by
// deletes in destruction order. Planning never calls a provider.
func (e *Engine) CreatePlan(ctx context.Context, cfg *ir.Config, state *ir.State) (*ir.Plan, error) {
	return e.CreatePlanWithTargets(ctx, cfg, state, nil)
}

// CreatePlanWithTargets limits the plan to the given addresses and their
// transitive dependencies. An empty target list plans everything.
func (e *Engine) CreatePlanWithTargets(ctx context.Context, cfg *ir.Config, state *ir.State, targets []string) (*ir.Plan, error) {
	resources, err := ExpandForEach(cfg.Resources)
	if err != nil {
		return nil, err
	}

	dag, err := BuildDAG(resources)
	if err != nil {
		return nil, err
	}

	configByAddr := make(map[string]*ir.Resource, len(resources))
	for _, res := range resources {
		configByAddr[res.Addr()] = res
	}
	stateByAddr := make(map[string]*ir.ResourceState)
	if state != nil {
		for _, rs := range state.Resources {
			stateByAddr[rs.Addr()] = rs
		}
	}

	targetSet, err := buildTargetSet(dag, targets, configByAddr, stateByAddr)
	if err != nil {
		return nil, err
	}

	plan := &ir.Plan{
		Metadata: newPlanMetadata(resources, state),
		Summary:  &ir.PlanSummary{},
		Outputs:  cfg.Outputs,
	}

	for _, addr := range dag.CreationOrder() {
		if targetSet != nil && !targetSet[addr] {
			continue
		}
		change := diffResource(configByAddr[addr], stateByAddr[addr], stateByAddr)
		switch change.Action {
		case ir.ActionCreate:
			plan.Summary.Create++
			plan.Changes = append(plan.Changes, change)
		case ir.ActionUpdate:
			plan.Summary.Update++
			plan.Changes = append(plan.Changes, change)
		case ir.ActionNoOp:
			plan.Summary.NoOp++
		}
	}

	deletes, err := planRemovals(state, configByAddr, targetSet)
	if err != nil {
		return nil, err
	}
	plan.Changes = append(plan.Changes, deletes...)
	plan.Summary.Delete = len(deletes)

	logging.Debug("plan calculated",
		"create", plan.Summary.Create,
		"update", plan.Summary.Update,
		"delete", plan.Summary.Delete,
		"noop", plan.Summary.NoOp)
	return plan, nil
}

// CreateDestroyPlan plans the deletion of every resource in state, in
// destruction order. preventDestroy on a still-declared resource blocks the
// whole plan.
func (e *Engine) CreateDestroyPlan(ctx context.Context, cfg *ir.Config, state *ir.State) (*ir.Plan, error) {
	plan := &ir.Plan{
		Metadata: newPlanMetadata(nil, state),
		Summary:  &ir.PlanSummary{},
	}
	if state == nil || len(state.Resources) == 0 {
		return plan, nil
	}

	dag, err := BuildDAGFromState(state.Resources)
	if err != nil {
		return nil, err
	}

	stateByAddr := make(map[string]*ir.ResourceState, len(state.Resources))
	for _, rs := range state.Resources {
		stateByAddr[rs.Addr()] = rs
	}

	for _, addr := range dag.DestructionOrder() {
		rs, ok := stateByAddr[addr]
		if !ok {
			continue
		}
		if cfg != nil {
			if res := cfg.Resource(addr); res != nil && res.Lifecycle != nil && res.Lifecycle.PreventDestroy {
				return nil, fmt.Errorf("resource %s has preventDestroy set and cannot be destroyed", addr)
			}
		}
		plan.Changes = append(plan.Changes, deleteChange(rs))
	}
	plan.Summary.Delete = len(plan.Changes)
	return plan, nil
}

// planRemovals emits deletes for state records no longer declared, ordered by
// the dependency information captured in state (dependents first).
func planRemovals(state *ir.State, configByAddr map[string]*ir.Resource, targetSet map[string]bool) ([]*ir.ResourceChange, error) {
	if state == nil || len(state.Resources) == 0 {
		return nil, nil
	}

	dag, err := BuildDAGFromState(state.Resources)
	if err != nil {
		return nil, err
	}

	stateByAddr := make(map[string]*ir.ResourceState, len(state.Resources))
	for _, rs := range state.Resources {
		stateByAddr[rs.Addr()] = rs
	}

	var changes []*ir.ResourceChange
	for _, addr := range dag.DestructionOrder() {
		if _, declared := configByAddr[addr]; declared {
			continue
		}
		if targetSet != nil && !targetSet[addr] {
			continue
		}
		if rs, ok := stateByAddr[addr]; ok {
			changes = append(changes, deleteChange(rs))
		}
	}
	return changes, nil
}

func deleteChange(rs *ir.ResourceState) *ir.ResourceChange {
	diff := make(map[string]*ir.AttributeDiff, len(rs.Inputs))
	for k, v := range rs.Inputs {
		diff[k] = &ir.AttributeDiff{Before: v, After: nil, Action: ir.ActionDelete}
	}
	return &ir.ResourceChange{
		Address: rs.Addr(),
		Action:  ir.ActionDelete,
		Prior:   rs,
		Diff:    diff,
	}
}

// diffResource classifies one declared resource against its prior record.
func diffResource(res *ir.Resource, prior *ir.ResourceState, stateByAddr map[string]*ir.ResourceState) *ir.ResourceChange {
	desired, unknown := resolveAttrs(res.Attributes, stateByAddr)

	if prior == nil {
		diff := make(map[string]*ir.AttributeDiff, len(desired))
		for k, v := range desired {
			diff[k] = &ir.AttributeDiff{Before: nil, After: v, Action: ir.ActionCreate, Unknown: unknown[k]}
		}
		return &ir.ResourceChange{
			Address: res.Addr(),
			Action:  ir.ActionCreate,
			Desired: res,
			Diff:    diff,
		}
	}

	ignored := make(map[string]bool)
	if res.Lifecycle != nil {
		for _, name := range res.Lifecycle.IgnoreChanges {
			ignored[name] = true
		}
	}

	diff := make(map[string]*ir.AttributeDiff)
	for k, after := range desired {
		if ignored[k] {
			continue
		}
		before, existed := prior.Inputs[k]
		switch {
		case !existed:
			diff[k] = &ir.AttributeDiff{Before: nil, After: after, Action: ir.ActionCreate, Unknown: unknown[k]}
		case !valuesEqual(before, after):
			diff[k] = &ir.AttributeDiff{Before: before, After: after, Action: ir.ActionUpdate, Unknown: unknown[k]}
		}
	}
	for k, before := range prior.Inputs {
		if ignored[k] {
			continue
		}
		if _, still := desired[k]; !still {
			diff[k] = &ir.AttributeDiff{Before: before, After: nil, Action: ir.ActionDelete}
		}
	}

	if len(diff) == 0 {
		return &ir.ResourceChange{Address: res.Addr(), Action: ir.ActionNoOp, Desired: res, Prior: prior}
	}
	return &ir.ResourceChange{
		Address: res.Addr(),
		Action:  ir.ActionUpdate,
		Desired: res,
		Prior:   prior,
		Diff:    diff,
	}
}

// resolveAttrs resolves references against prior state for comparison.
// A reference to a resource not yet in state resolves to the unknown
// placeholder; the per-attribute unknown map records which top-level
// attributes ended up with one.
func resolveAttrs(attrs map[string]any, stateByAddr map[string]*ir.ResourceState) (map[string]any, map[string]bool) {
	out := make(map[string]any, len(attrs))
	unknown := make(map[string]bool)
	for k, v := range attrs {
		rv, unk := resolvePlanValue(v, stateByAddr)
		out[k] = rv
		if unk {
			unknown[k] = true
		}
	}
	return out, unknown
}

func resolvePlanValue(v any, stateByAddr map[string]*ir.ResourceState) (any, bool) {
	switch t := v.(type) {
	case string:
		addr, attr, ok := ir.ParseRef(t)
		if !ok {
			return t, false
		}
		if rs := stateByAddr[addr]; rs != nil {
			if out, found := rs.Outputs[attr]; found {
				return out, false
			}
			if in, found := rs.Inputs[attr]; found {
				return in, false
			}
		}
		return ir.Unknown, true
	case map[string]any:
		out := make(map[string]any, len(t))
		anyUnknown := false
		for k, vv := range t {
			rv, unk := resolvePlanValue(vv, stateByAddr)
			out[k] = rv
			anyUnknown = anyUnknown || unk
		}
		return out, anyUnknown
	case map[any]any:
		out := make(map[string]any, len(t))
		anyUnknown := false
		for k, vv := range t {
			rv, unk := resolvePlanValue(vv, stateByAddr)
			out[fmt.Sprintf("%v", k)] = rv
			anyUnknown = anyUnknown || unk
		}
		return out, anyUnknown
	case []any:
		out := make([]any, len(t))
		anyUnknown := false
		for i, vv := range t {
			rv, unk := resolvePlanValue(vv, stateByAddr)
			out[i] = rv
			anyUnknown = anyUnknown || unk
		}
		return out, anyUnknown
	default:
		return v, false
	}
}

// valuesEqual compares attribute values by their canonical string rendering.
// fmt prints maps with sorted keys, so nested maps compare deterministically.
func valuesEqual(a, b any) bool {
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func buildTargetSet(dag *DAG, targets []string, configByAddr map[string]*ir.Resource, stateByAddr map[string]*ir.ResourceState) (map[string]bool, error) {
	if len(targets) == 0 {
		return nil, nil
	}
	set := make(map[string]bool)
	for _, t := range targets {
		_, inConfig := configByAddr[t]
		_, inState := stateByAddr[t]
		if !inConfig && !inState {
			return nil, fmt.Errorf("unknown target %s: not in configuration or state", t)
		}
		set[t] = true
		for dep := range dag.TransitiveDeps(t) {
			set[dep] = true
		}
	}
	return set, nil
}

func newPlanMetadata(resources []*ir.Resource, state *ir.State) *ir.PlanMetadata {
	meta := &ir.PlanMetadata{
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		ConfigHash: hashResources(resources),
	}
	if state != nil {
		meta.PriorStateSerial = state.Serial
	}
	return meta
}

func hashResources(resources []*ir.Resource) string {
	data, err := json.Marshal(resources)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
