package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/groundwork-io/groundwork/internal/ir"
	"github.com/groundwork-io/groundwork/internal/logging"
	"github.com/groundwork-io/groundwork/internal/provider"
)

// ApplyEvent represents a progress event during apply.
type ApplyEvent struct {
	Address  string
	Action   ir.Action
	Status   string // "started", "completed", "failed", "skipped"
	Duration time.Duration
	Error    error
}

// ApplyCallback is called for each apply event if set.
type ApplyCallback func(event ApplyEvent)

// PersistFunc writes the state snapshot after an applied change. Apply halts
// when it fails: a successful remote change that is not recorded is
// indistinguishable from drift.
type PersistFunc func(state *ir.State) error

// ApplyPlan executes a plan strictly in plan order and returns the updated
// state. Independent changes run on bounded parallel workers; a dependent
// change waits for its prerequisites. State is persisted through persist
// after every individual change, never in batches.
//
// On failure the remaining changes are skipped (in-flight ones are awaited
// and recorded) and the returned error is a *PartialApplyError. Nothing is
// rolled back; recovery is another plan/apply round against the persisted
// state.
func (e *Engine) ApplyPlan(ctx context.Context, plan *ir.Plan, state *ir.State, persist PersistFunc) (*ir.State, error) {
	return e.ApplyPlanWithCallback(ctx, plan, state, persist, nil)
}

// ApplyPlanWithCallback is ApplyPlan with progress event callbacks.
func (e *Engine) ApplyPlanWithCallback(ctx context.Context, plan *ir.Plan, state *ir.State, persist PersistFunc, callback ApplyCallback) (*ir.State, error) {
	if state == nil {
		state = &ir.State{Version: ir.StateVersion}
	}
	if len(plan.Changes) == 0 {
		return state, nil
	}

	run := newApplyRun(e, state, persist, callback)

	var createUpdates, deletes []*ir.ResourceChange
	for _, change := range plan.Changes {
		if change.Action == ir.ActionDelete {
			deletes = append(deletes, change)
		} else {
			createUpdates = append(createUpdates, change)
		}
	}

	run.execute(ctx, createUpdates, createDeps(createUpdates))

	// deletes come after creates/updates in plan order; a halt covers them too
	if run.isHalted() {
		for _, c := range deletes {
			run.skip(c)
		}
	} else {
		run.execute(ctx, deletes, deleteDeps(deletes))
	}

	return run.finish(plan)
}

type applyRun struct {
	engine   *Engine
	state    *ir.State
	index    map[string]int // address -> position in state.Resources
	persist  PersistFunc
	callback ApplyCallback

	mu        sync.Mutex // guards state, index and the outcome sets
	cond      *sync.Cond
	succeeded map[string]bool
	failed    map[string]bool
	skipped   map[string]bool
	errs      []error
	halted    bool
}

func newApplyRun(e *Engine, state *ir.State, persist PersistFunc, callback ApplyCallback) *applyRun {
	run := &applyRun{
		engine:    e,
		state:     state,
		index:     make(map[string]int, len(state.Resources)),
		persist:   persist,
		callback:  callback,
		succeeded: make(map[string]bool),
		failed:    make(map[string]bool),
		skipped:   make(map[string]bool),
	}
	run.cond = sync.NewCond(&run.mu)
	for i, rs := range state.Resources {
		run.index[rs.Addr()] = i
	}
	return run
}

func (r *applyRun) emit(event ApplyEvent) {
	if r.callback != nil {
		r.callback(event)
	}
}

func (r *applyRun) isHalted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.halted
}

func (r *applyRun) skip(change *ir.ResourceChange) {
	r.mu.Lock()
	r.skipped[change.Address] = true
	r.mu.Unlock()
	r.emit(ApplyEvent{Address: change.Address, Action: change.Action, Status: "skipped"})
}

// execute runs one phase of the plan on bounded parallel workers. deps maps
// each change to the changes in the same phase it must wait for.
func (r *applyRun) execute(ctx context.Context, changes []*ir.ResourceChange, deps map[string]map[string]bool) {
	if len(changes) == 0 {
		return
	}

	parallelism := r.engine.Parallelism
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}
	sem := make(chan struct{}, parallelism)

	var wg sync.WaitGroup
	for _, change := range changes {
		wg.Add(1)
		go func(c *ir.ResourceChange) {
			defer wg.Done()

			// wait for prerequisites to finish
			r.mu.Lock()
			for {
				if r.halted {
					r.skipped[c.Address] = true
					r.mu.Unlock()
					r.emit(ApplyEvent{Address: c.Address, Action: c.Action, Status: "skipped"})
					r.cond.Broadcast()
					return
				}
				depFailed := false
				ready := true
				for dep := range deps[c.Address] {
					if r.failed[dep] || r.skipped[dep] {
						depFailed = true
						break
					}
					if !r.succeeded[dep] {
						ready = false
						break
					}
				}
				if depFailed {
					r.skipped[c.Address] = true
					r.mu.Unlock()
					r.emit(ApplyEvent{Address: c.Address, Action: c.Action, Status: "skipped"})
					r.cond.Broadcast()
					return
				}
				if ready {
					break
				}
				r.cond.Wait()
			}
			r.mu.Unlock()

			// cancellation stops new provider calls; in-flight ones finish
			if err := ctx.Err(); err != nil {
				r.mu.Lock()
				r.skipped[c.Address] = true
				if !r.halted {
					r.halted = true
					r.errs = append(r.errs, fmt.Errorf("apply cancelled: %w", err))
				}
				r.mu.Unlock()
				r.emit(ApplyEvent{Address: c.Address, Action: c.Action, Status: "skipped"})
				r.cond.Broadcast()
				return
			}

			sem <- struct{}{}
			if r.isHalted() {
				<-sem
				r.skip(c)
				r.cond.Broadcast()
				return
			}

			start := time.Now()
			r.emit(ApplyEvent{Address: c.Address, Action: c.Action, Status: "started"})

			err := r.applyChange(ctx, c)
			<-sem

			r.mu.Lock()
			if err != nil {
				r.failed[c.Address] = true
				r.errs = append(r.errs, err)
				if !r.engine.ContinueOnError {
					r.halted = true
				}
				r.mu.Unlock()
				r.emit(ApplyEvent{Address: c.Address, Action: c.Action, Status: "failed", Duration: time.Since(start), Error: err})
				r.cond.Broadcast()
				return
			}
			r.succeeded[c.Address] = true
			r.mu.Unlock()
			r.emit(ApplyEvent{Address: c.Address, Action: c.Action, Status: "completed", Duration: time.Since(start)})
			r.cond.Broadcast()
		}(change)
	}

	wg.Wait()
}

func (r *applyRun) finish(plan *ir.Plan) (*ir.State, error) {
	if len(r.errs) > 0 || len(r.failed) > 0 || len(r.skipped) > 0 {
		return r.state, &PartialApplyError{
			Succeeded: sortedKeys(r.succeeded),
			Failed:    sortedKeys(r.failed),
			Skipped:   sortedKeys(r.skipped),
			Errors:    r.errs,
		}
	}

	outputs, err := resolveOutputs(plan.Outputs, r.state)
	if err != nil {
		return r.state, err
	}
	r.state.Outputs = outputs
	if err := r.persistState(); err != nil {
		return r.state, err
	}
	return r.state, nil
}

func (r *applyRun) persistState() error {
	if r.persist == nil {
		return nil
	}
	return r.persist(r.state)
}

// applyChange performs the provider call for one change and records the
// outcome in state.
func (r *applyRun) applyChange(ctx context.Context, change *ir.ResourceChange) error {
	addr := change.Address
	op := strings.ToLower(string(change.Action))
	logging.Debug("applying change", "address", addr, "action", change.Action)

	timeout := DefaultTimeout
	if change.Desired != nil && change.Desired.Timeout != "" {
		if d, err := time.ParseDuration(change.Desired.Timeout); err == nil && d > 0 {
			timeout = d
		}
	}
	// the call context survives run cancellation so an in-flight call always
	// runs to a known outcome
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	provName := ir.DefaultProvider
	switch {
	case change.Desired != nil && change.Desired.Provider != "":
		provName = change.Desired.Provider
	case change.Prior != nil && change.Prior.Provider != "":
		provName = change.Prior.Provider
	}

	prov, err := r.engine.registry.Get(provName)
	if err != nil {
		return &ProviderCallError{Address: addr, Operation: op, Err: err}
	}

	switch change.Action {
	case ir.ActionCreate:
		attrs, err := r.resolveAttrs(change.Desired)
		if err != nil {
			return err
		}
		var resp *provider.CreateResponse
		err = r.withRetry(callCtx, func() error {
			var callErr error
			resp, callErr = prov.Create(callCtx, &provider.CreateRequest{
				Type:       change.Desired.Type,
				Name:       change.Desired.Name,
				Attributes: attrs,
			})
			return callErr
		})
		if err != nil {
			return &ProviderCallError{Address: addr, Operation: op, Err: err}
		}
		return r.recordApplied(change, provName, resp.ID, attrs, resp.Outputs)

	case ir.ActionUpdate:
		attrs, err := r.resolveAttrs(change.Desired)
		if err != nil {
			return err
		}
		prior := r.priorRecord(addr)
		if prior == nil {
			return fmt.Errorf("update %s: resource missing from state", addr)
		}
		var resp *provider.UpdateResponse
		err = r.withRetry(callCtx, func() error {
			var callErr error
			resp, callErr = prov.Update(callCtx, &provider.UpdateRequest{
				Type:         change.Desired.Type,
				Name:         change.Desired.Name,
				ID:           prior.ID,
				Attributes:   attrs,
				PriorOutputs: prior.Outputs,
			})
			return callErr
		})
		if err != nil {
			return &ProviderCallError{Address: addr, Operation: op, Err: err}
		}
		return r.recordApplied(change, provName, prior.ID, attrs, resp.Outputs)

	case ir.ActionDelete:
		prior := r.priorRecord(addr)
		if prior == nil {
			return nil // already gone
		}
		id := prior.ID
		if id == "" {
			id = fmt.Sprintf("%v", prior.Outputs["id"])
		}
		err = r.withRetry(callCtx, func() error {
			return prov.Delete(callCtx, &provider.DeleteRequest{Type: prior.Type, ID: id})
		})
		if err != nil {
			return &ProviderCallError{Address: addr, Operation: op, Err: err}
		}
		return r.recordDeleted(addr)
	}
	return nil
}

func (r *applyRun) withRetry(ctx context.Context, fn func() error) error {
	if r.engine.Retry == nil {
		return fn()
	}
	return RetryWithBackoff(ctx, r.engine.Retry, fn, IsTransientError)
}

func (r *applyRun) priorRecord(addr string) *ir.ResourceState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if idx, ok := r.index[addr]; ok {
		return r.state.Resources[idx]
	}
	return nil
}

// resolveAttrs substitutes every reference in the desired attributes with the
// referenced resource's applied value. The plan's ordering invariant means
// the dependency has been applied by now; a miss is an internal error.
func (r *applyRun) resolveAttrs(res *ir.Resource) (map[string]any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	resolved, err := resolveApplyValue(normalizeValue(res.Attributes), r.state)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", res.Addr(), err)
	}
	attrs, ok := resolved.(map[string]any)
	if !ok {
		attrs = map[string]any{}
	}
	return attrs, nil
}

func (r *applyRun) recordApplied(change *ir.ResourceChange, provName, id string, inputs, outputs map[string]any) error {
	record := &ir.ResourceState{
		Type:         change.Desired.Type,
		Name:         change.Desired.Name,
		Provider:     provName,
		ID:           id,
		Inputs:       inputs,
		Outputs:      outputs,
		Dependencies: dependencyAddrs(change.Desired),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if idx, ok := r.index[change.Address]; ok {
		r.state.Resources[idx] = record
	} else {
		r.index[change.Address] = len(r.state.Resources)
		r.state.Resources = append(r.state.Resources, record)
	}
	if err := r.persistState(); err != nil {
		return fmt.Errorf("persisting state after %s: %w", change.Address, err)
	}
	return nil
}

func (r *applyRun) recordDeleted(addr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if idx, ok := r.index[addr]; ok {
		r.state.Resources = append(r.state.Resources[:idx], r.state.Resources[idx+1:]...)
		r.index = make(map[string]int, len(r.state.Resources))
		for i, rs := range r.state.Resources {
			r.index[rs.Addr()] = i
		}
	}
	if err := r.persistState(); err != nil {
		return fmt.Errorf("persisting state after %s: %w", addr, err)
	}
	return nil
}

// resolveApplyValue substitutes references against applied state. Unlike
// planning, a reference that cannot be resolved here is an error.
func resolveApplyValue(v any, state *ir.State) (any, error) {
	switch t := v.(type) {
	case string:
		addr, attr, ok := ir.ParseRef(t)
		if !ok {
			return t, nil
		}
		rs := state.Resource(addr)
		if rs == nil {
			return nil, fmt.Errorf("unresolved reference %q: %s is not in state", t, addr)
		}
		if out, found := rs.Outputs[attr]; found {
			return out, nil
		}
		if in, found := rs.Inputs[attr]; found {
			return in, nil
		}
		return nil, fmt.Errorf("unresolved reference %q: %s has no attribute %q", t, addr, attr)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			rv, err := resolveApplyValue(vv, state)
			if err != nil {
				return nil, err
			}
			out[k] = rv
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			rv, err := resolveApplyValue(vv, state)
			if err != nil {
				return nil, err
			}
			out[i] = rv
		}
		return out, nil
	default:
		return v, nil
	}
}

// resolveOutputs projects the declared outputs against final state.
func resolveOutputs(outputs map[string]any, state *ir.State) (map[string]any, error) {
	if len(outputs) == 0 {
		return nil, nil
	}
	resolved, err := resolveApplyValue(normalizeValue(outputs), state)
	if err != nil {
		return nil, fmt.Errorf("resolving outputs: %w", err)
	}
	if m, ok := resolved.(map[string]any); ok {
		return m, nil
	}
	return nil, nil
}

// createDeps maps each create/update to the in-phase changes it waits for,
// derived from dependsOn and attribute references.
func createDeps(changes []*ir.ResourceChange) map[string]map[string]bool {
	inPhase := make(map[string]bool, len(changes))
	for _, c := range changes {
		inPhase[c.Address] = true
	}

	deps := make(map[string]map[string]bool, len(changes))
	for _, c := range changes {
		deps[c.Address] = make(map[string]bool)
		if c.Desired == nil {
			continue
		}
		for _, d := range c.Desired.DependsOn {
			if inPhase[d] {
				deps[c.Address][d] = true
			}
		}
		for _, ref := range extractRefs(c.Desired.Attributes) {
			if depAddr, _, ok := ir.ParseRef(ref); ok && inPhase[depAddr] {
				deps[c.Address][depAddr] = true
			}
		}
	}
	return deps
}

// deleteDeps inverts the captured dependency edges: deleting a dependency
// waits until every dependent in the phase is gone.
func deleteDeps(changes []*ir.ResourceChange) map[string]map[string]bool {
	deps := make(map[string]map[string]bool, len(changes))
	for _, c := range changes {
		deps[c.Address] = make(map[string]bool)
	}
	for _, c := range changes {
		if c.Prior == nil {
			continue
		}
		for _, dep := range c.Prior.Dependencies {
			if _, inPhase := deps[dep]; inPhase {
				deps[dep][c.Address] = true
			}
		}
	}
	return deps
}

// dependencyAddrs collects the addresses a resource depends on, for capture
// in its state record.
func dependencyAddrs(res *ir.Resource) []string {
	addrs := append([]string{}, res.DependsOn...)
	for _, ref := range extractRefs(res.Attributes) {
		if addr, _, ok := ir.ParseRef(ref); ok {
			addrs = append(addrs, addr)
		}
	}
	return dedupe(addrs)
}

// normalizeValue converts decoder-specific map types into map[string]any.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, vv := range val {
			out[fmt.Sprintf("%v", k)] = normalizeValue(vv)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, vv := range val {
			out[k] = normalizeValue(vv)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, vv := range val {
			out[i] = normalizeValue(vv)
		}
		return out
	default:
		return v
	}
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
