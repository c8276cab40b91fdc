package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groundwork-io/groundwork/internal/ir"
	"github.com/groundwork-io/groundwork/internal/provider"
)

// fakeProvider records every call and serves canned outputs per address.
type fakeProvider struct {
	mu        sync.Mutex
	creates   []*provider.CreateRequest
	updates   []*provider.UpdateRequest
	deleted   []string // remote IDs in call order
	outputs   map[string]map[string]any
	failOn    map[string]error // address -> permanent failure
	failTimes map[string]int   // address -> failures before success
	calls     map[string]int
}

func (f *fakeProvider) fail(addr string) error {
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[addr]++
	if err, ok := f.failOn[addr]; ok {
		return err
	}
	if n, ok := f.failTimes[addr]; ok && f.calls[addr] <= n {
		return fmt.Errorf("%s: connection refused", addr)
	}
	return nil
}

func (f *fakeProvider) Create(ctx context.Context, req *provider.CreateRequest) (*provider.CreateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	addr := ir.Address(req.Type, req.Name)
	if err := f.fail(addr); err != nil {
		return nil, err
	}
	f.creates = append(f.creates, req)

	id := fmt.Sprintf("%s-id", req.Name)
	outputs := map[string]any{"id": id}
	for k, v := range f.outputs[addr] {
		outputs[k] = v
	}
	return &provider.CreateResponse{ID: id, Outputs: outputs}, nil
}

func (f *fakeProvider) Read(ctx context.Context, req *provider.ReadRequest) (*provider.ReadResponse, error) {
	return &provider.ReadResponse{Exists: true, Outputs: req.Outputs}, nil
}

func (f *fakeProvider) Update(ctx context.Context, req *provider.UpdateRequest) (*provider.UpdateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	addr := ir.Address(req.Type, req.Name)
	if err := f.fail(addr); err != nil {
		return nil, err
	}
	f.updates = append(f.updates, req)

	outputs := make(map[string]any, len(req.PriorOutputs))
	for k, v := range req.PriorOutputs {
		outputs[k] = v
	}
	for k, v := range f.outputs[addr] {
		outputs[k] = v
	}
	return &provider.UpdateResponse{Outputs: outputs}, nil
}

func (f *fakeProvider) Delete(ctx context.Context, req *provider.DeleteRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, req.ID)
	return nil
}

func newApplyFixture(fake *fakeProvider) *Engine {
	registry := provider.NewRegistry(nil)
	registry.Register("local", fake)
	eng := NewEngine(registry)
	eng.Parallelism = 4
	return eng
}

// chainConfig declares appA <- appB <- appC, each consuming the previous
// app's hostname output.
func chainConfig() *ir.Config {
	return &ir.Config{
		Resources: []*ir.Resource{
			{Type: "webApp", Name: "appA", Attributes: map[string]any{"plan": "basic"}},
			{Type: "webApp", Name: "appB", Attributes: map[string]any{
				"apiBase": ir.MakeRef("webApp.appA", "hostname"),
			}},
			{Type: "webApp", Name: "appC", Attributes: map[string]any{
				"apiBase": ir.MakeRef("webApp.appB", "hostname"),
			}},
		},
	}
}

func TestApplyPlanResolvesReferences(t *testing.T) {
	fake := &fakeProvider{outputs: map[string]map[string]any{
		"webApp.appA": {"hostname": "appa.internal"},
		"webApp.appB": {"hostname": "appb.internal"},
	}}
	eng := newApplyFixture(fake)
	ctx := context.Background()

	plan, err := eng.CreatePlan(ctx, chainConfig(), nil)
	require.NoError(t, err)

	persistCalls := 0
	persist := func(s *ir.State) error {
		persistCalls++
		return nil
	}

	state, err := eng.ApplyPlan(ctx, plan, nil, persist)
	require.NoError(t, err)
	require.Len(t, state.Resources, 3)

	// the unknown from planning is substituted with the applied output
	appB := state.Resource("webApp.appB")
	require.NotNil(t, appB)
	assert.Equal(t, "appa.internal", appB.Inputs["apiBase"])
	assert.Equal(t, []string{"webApp.appA"}, appB.Dependencies)

	appC := state.Resource("webApp.appC")
	require.NotNil(t, appC)
	assert.Equal(t, "appb.internal", appC.Inputs["apiBase"])

	// once per applied change plus the final snapshot
	assert.Equal(t, 4, persistCalls)

	// the provider saw resolved attributes, not reference URIs
	for _, req := range fake.creates {
		for _, v := range req.Attributes {
			assert.False(t, ir.IsRef(v), "unresolved reference reached the provider: %v", v)
		}
	}
}

func TestApplyPlanResolvesOutputs(t *testing.T) {
	fake := &fakeProvider{outputs: map[string]map[string]any{
		"webApp.appA": {"hostname": "appa.internal"},
	}}
	eng := newApplyFixture(fake)
	ctx := context.Background()

	cfg := &ir.Config{
		Resources: []*ir.Resource{
			{Type: "webApp", Name: "appA", Attributes: map[string]any{"plan": "basic"}},
		},
		Outputs: map[string]any{
			"appUrl": ir.MakeRef("webApp.appA", "hostname"),
		},
	}

	plan, err := eng.CreatePlan(ctx, cfg, nil)
	require.NoError(t, err)

	state, err := eng.ApplyPlan(ctx, plan, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "appa.internal", state.Outputs["appUrl"])
}

func TestApplyPlanPartialFailure(t *testing.T) {
	fake := &fakeProvider{
		outputs: map[string]map[string]any{
			"webApp.appA": {"hostname": "appa.internal"},
		},
		failOn: map[string]error{
			"webApp.appB": errors.New("quota exceeded"),
		},
	}
	eng := newApplyFixture(fake)
	ctx := context.Background()

	plan, err := eng.CreatePlan(ctx, chainConfig(), nil)
	require.NoError(t, err)

	state, err := eng.ApplyPlan(ctx, plan, nil, nil)
	require.Error(t, err)

	var partial *PartialApplyError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, []string{"webApp.appA"}, partial.Succeeded)
	assert.Equal(t, []string{"webApp.appB"}, partial.Failed)
	assert.Equal(t, []string{"webApp.appC"}, partial.Skipped)

	// state reflects exactly the applied prefix
	require.Len(t, state.Resources, 1)
	assert.Equal(t, "webApp.appA", state.Resources[0].Addr())
}

func TestApplyPlanUpdateUsesPriorID(t *testing.T) {
	fake := &fakeProvider{outputs: map[string]map[string]any{
		"containerRegistry.registry": {"loginServer": "registry.example.io"},
	}}
	eng := newApplyFixture(fake)
	ctx := context.Background()

	cfg := webshopConfig()
	cfg.Resources[0].Attributes["sku"] = "Premium"

	plan, err := eng.CreatePlan(ctx, cfg, webshopState())
	require.NoError(t, err)
	require.Len(t, plan.Changes, 1)

	state, err := eng.ApplyPlan(ctx, plan, webshopState(), nil)
	require.NoError(t, err)

	require.Len(t, fake.updates, 1)
	assert.Equal(t, "reg-1", fake.updates[0].ID)
	assert.Equal(t, "Premium", fake.updates[0].Attributes["sku"])

	record := state.Resource("containerRegistry.registry")
	require.NotNil(t, record)
	assert.Equal(t, "reg-1", record.ID)
	assert.Equal(t, "Premium", record.Inputs["sku"])
	assert.Equal(t, "registry.example.io", record.Outputs["loginServer"])
}

func TestApplyPlanDeleteOrdering(t *testing.T) {
	fake := &fakeProvider{}
	eng := newApplyFixture(fake)
	ctx := context.Background()

	plan, err := eng.CreateDestroyPlan(ctx, nil, webshopState())
	require.NoError(t, err)

	state, err := eng.ApplyPlan(ctx, plan, webshopState(), nil)
	require.NoError(t, err)
	assert.Empty(t, state.Resources)
	require.Len(t, fake.deleted, 5)

	pos := make(map[string]int, len(fake.deleted))
	for i, id := range fake.deleted {
		pos[id] = i
	}
	// dependents go before their dependencies; unrelated deletes may interleave
	assert.Less(t, pos["app-b"], pos["app-a"])
	assert.Less(t, pos["app-a"], pos["ident-1"])
	assert.Less(t, pos["ra-1"], pos["ident-1"])
	assert.Less(t, pos["ra-1"], pos["reg-1"])
}

func TestApplyPlanEmptyPlan(t *testing.T) {
	eng := newApplyFixture(&fakeProvider{})

	persistCalls := 0
	persist := func(s *ir.State) error {
		persistCalls++
		return nil
	}

	prior := webshopState()
	state, err := eng.ApplyPlan(context.Background(), &ir.Plan{Summary: &ir.PlanSummary{}}, prior, persist)
	require.NoError(t, err)
	assert.Same(t, prior, state)
	assert.Zero(t, persistCalls)
}

func TestApplyPlanPersistFailureHalts(t *testing.T) {
	fake := &fakeProvider{outputs: map[string]map[string]any{
		"webApp.appA": {"hostname": "appa.internal"},
	}}
	eng := newApplyFixture(fake)
	ctx := context.Background()

	plan, err := eng.CreatePlan(ctx, chainConfig(), nil)
	require.NoError(t, err)

	persist := func(s *ir.State) error {
		return errors.New("disk full")
	}

	_, err = eng.ApplyPlan(ctx, plan, nil, persist)
	var partial *PartialApplyError
	require.ErrorAs(t, err, &partial)
	assert.Contains(t, err.Error(), "persisting state")
	assert.Equal(t, []string{"webApp.appA"}, partial.Failed)
}

func TestApplyPlanCancelledContext(t *testing.T) {
	fake := &fakeProvider{}
	eng := newApplyFixture(fake)

	plan, err := eng.CreatePlan(context.Background(), chainConfig(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = eng.ApplyPlan(ctx, plan, nil, nil)
	var partial *PartialApplyError
	require.ErrorAs(t, err, &partial)
	assert.Contains(t, err.Error(), "apply cancelled")
	assert.Empty(t, partial.Succeeded)
	assert.Empty(t, fake.creates)
}

func TestApplyPlanEmitsEvents(t *testing.T) {
	fake := &fakeProvider{
		failOn: map[string]error{"webApp.appB": errors.New("boom")},
		outputs: map[string]map[string]any{
			"webApp.appA": {"hostname": "appa.internal"},
		},
	}
	eng := newApplyFixture(fake)
	ctx := context.Background()

	plan, err := eng.CreatePlan(ctx, chainConfig(), nil)
	require.NoError(t, err)

	var mu sync.Mutex
	statuses := make(map[string][]string)
	callback := func(event ApplyEvent) {
		mu.Lock()
		defer mu.Unlock()
		statuses[event.Address] = append(statuses[event.Address], event.Status)
	}

	_, err = eng.ApplyPlanWithCallback(ctx, plan, nil, nil, callback)
	require.Error(t, err)

	assert.Equal(t, []string{"started", "completed"}, statuses["webApp.appA"])
	assert.Equal(t, []string{"started", "failed"}, statuses["webApp.appB"])
	assert.Equal(t, []string{"skipped"}, statuses["webApp.appC"])
}
