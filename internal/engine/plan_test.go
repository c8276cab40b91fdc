package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groundwork-io/groundwork/internal/ir"
	"github.com/groundwork-io/groundwork/internal/provider"
)

// webshopConfig declares a small application: a container registry, a managed
// identity, a role assignment binding the two, and two web apps where appB
// consumes appA's hostname.
func webshopConfig() *ir.Config {
	return &ir.Config{
		Resources: []*ir.Resource{
			{Type: "containerRegistry", Name: "registry", Attributes: map[string]any{
				"sku": "Standard",
			}},
			{Type: "managedIdentity", Name: "appIdentity", Attributes: map[string]any{}},
			{Type: "roleAssignment", Name: "pull", Attributes: map[string]any{
				"scope":       ir.MakeRef("containerRegistry.registry", "id"),
				"principalId": ir.MakeRef("managedIdentity.appIdentity", "principalId"),
				"role":        "AcrPull",
			}},
			{Type: "webApp", Name: "appA", Attributes: map[string]any{
				"identity": ir.MakeRef("managedIdentity.appIdentity", "id"),
				"plan":     "basic",
			}},
			{Type: "webApp", Name: "appB", Attributes: map[string]any{
				"apiBase": ir.MakeRef("webApp.appA", "hostname"),
			}},
		},
	}
}

// webshopState is the state an apply of webshopConfig would leave behind.
func webshopState() *ir.State {
	return &ir.State{
		Version: ir.StateVersion,
		Serial:  4,
		Lineage: "test-lineage",
		Resources: []*ir.ResourceState{
			{Type: "containerRegistry", Name: "registry", Provider: "local", ID: "reg-1",
				Inputs:  map[string]any{"sku": "Standard"},
				Outputs: map[string]any{"id": "reg-1", "loginServer": "registry.example.io"}},
			{Type: "managedIdentity", Name: "appIdentity", Provider: "local", ID: "ident-1",
				Inputs:  map[string]any{},
				Outputs: map[string]any{"id": "ident-1", "principalId": "principal-1"}},
			{Type: "roleAssignment", Name: "pull", Provider: "local", ID: "ra-1",
				Inputs:       map[string]any{"scope": "reg-1", "principalId": "principal-1", "role": "AcrPull"},
				Outputs:      map[string]any{"id": "ra-1"},
				Dependencies: []string{"containerRegistry.registry", "managedIdentity.appIdentity"}},
			{Type: "webApp", Name: "appA", Provider: "local", ID: "app-a",
				Inputs:       map[string]any{"identity": "ident-1", "plan": "basic"},
				Outputs:      map[string]any{"id": "app-a", "hostname": "appa.example.com"},
				Dependencies: []string{"managedIdentity.appIdentity"}},
			{Type: "webApp", Name: "appB", Provider: "local", ID: "app-b",
				Inputs:       map[string]any{"apiBase": "appa.example.com"},
				Outputs:      map[string]any{"id": "app-b"},
				Dependencies: []string{"webApp.appA"}},
		},
	}
}

func newTestEngine() *Engine {
	registry := provider.NewRegistry(nil)
	registry.Register("local", &fakeProvider{})
	return NewEngine(registry)
}

func changeAddrs(plan *ir.Plan) []string {
	addrs := make([]string, len(plan.Changes))
	for i, c := range plan.Changes {
		addrs[i] = c.Address
	}
	return addrs
}

func TestCreatePlanFreshState(t *testing.T) {
	eng := newTestEngine()

	plan, err := eng.CreatePlan(context.Background(), webshopConfig(), &ir.State{Version: ir.StateVersion})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"containerRegistry.registry",
		"managedIdentity.appIdentity",
		"roleAssignment.pull",
		"webApp.appA",
		"webApp.appB",
	}, changeAddrs(plan))

	assert.Equal(t, 5, plan.Summary.Create)
	assert.Equal(t, 0, plan.Summary.Update)
	assert.Equal(t, 0, plan.Summary.Delete)
	assert.True(t, plan.HasChanges())
	for _, c := range plan.Changes {
		assert.Equal(t, ir.ActionCreate, c.Action)
	}

	// references to unapplied resources surface as unknown, not as errors
	appB := plan.Changes[4]
	require.Contains(t, appB.Diff, "apiBase")
	assert.True(t, appB.Diff["apiBase"].Unknown)
	assert.Equal(t, ir.Unknown, appB.Diff["apiBase"].After)

	// literal attributes are never unknown
	registry := plan.Changes[0]
	require.Contains(t, registry.Diff, "sku")
	assert.False(t, registry.Diff["sku"].Unknown)
	assert.Equal(t, "Standard", registry.Diff["sku"].After)
}

func TestCreatePlanIdempotent(t *testing.T) {
	eng := newTestEngine()

	plan, err := eng.CreatePlan(context.Background(), webshopConfig(), webshopState())
	require.NoError(t, err)

	assert.Empty(t, plan.Changes)
	assert.False(t, plan.HasChanges())
	assert.Equal(t, 5, plan.Summary.NoOp)
	assert.Equal(t, 4, plan.Metadata.PriorStateSerial)
}

func TestCreatePlanUpdate(t *testing.T) {
	eng := newTestEngine()
	cfg := webshopConfig()
	cfg.Resources[0].Attributes["sku"] = "Premium"

	plan, err := eng.CreatePlan(context.Background(), cfg, webshopState())
	require.NoError(t, err)

	require.Len(t, plan.Changes, 1)
	change := plan.Changes[0]
	assert.Equal(t, "containerRegistry.registry", change.Address)
	assert.Equal(t, ir.ActionUpdate, change.Action)
	require.Contains(t, change.Diff, "sku")
	assert.Equal(t, "Standard", change.Diff["sku"].Before)
	assert.Equal(t, "Premium", change.Diff["sku"].After)
	assert.Equal(t, 1, plan.Summary.Update)
	assert.Equal(t, 4, plan.Summary.NoOp)
}

func TestCreatePlanRemoval(t *testing.T) {
	eng := newTestEngine()
	cfg := webshopConfig()
	cfg.Resources = cfg.Resources[:4] // drop webApp.appB

	plan, err := eng.CreatePlan(context.Background(), cfg, webshopState())
	require.NoError(t, err)

	require.Len(t, plan.Changes, 1)
	change := plan.Changes[0]
	assert.Equal(t, "webApp.appB", change.Address)
	assert.Equal(t, ir.ActionDelete, change.Action)
	require.NotNil(t, change.Prior)
	assert.Equal(t, "app-b", change.Prior.ID)
	assert.Equal(t, 1, plan.Summary.Delete)
}

func TestCreatePlanRemovalOrdering(t *testing.T) {
	eng := newTestEngine()
	cfg := webshopConfig()
	cfg.Resources = cfg.Resources[:3] // drop both web apps

	plan, err := eng.CreatePlan(context.Background(), cfg, webshopState())
	require.NoError(t, err)

	// the dependent must be removed before its dependency
	assert.Equal(t, []string{"webApp.appB", "webApp.appA"}, changeAddrs(plan))
}

func TestCreatePlanIgnoreChanges(t *testing.T) {
	eng := newTestEngine()
	cfg := webshopConfig()
	cfg.Resources[0].Attributes["sku"] = "Premium"
	cfg.Resources[0].Lifecycle = &ir.Lifecycle{IgnoreChanges: []string{"sku"}}

	plan, err := eng.CreatePlan(context.Background(), cfg, webshopState())
	require.NoError(t, err)

	assert.Empty(t, plan.Changes)
	assert.Equal(t, 5, plan.Summary.NoOp)
}

func TestCreatePlanWithTargets(t *testing.T) {
	eng := newTestEngine()

	plan, err := eng.CreatePlanWithTargets(context.Background(), webshopConfig(), &ir.State{Version: ir.StateVersion}, []string{"webApp.appB"})
	require.NoError(t, err)

	// the target plus its transitive dependencies, nothing else
	assert.Equal(t, []string{
		"managedIdentity.appIdentity",
		"webApp.appA",
		"webApp.appB",
	}, changeAddrs(plan))
}

func TestCreatePlanUnknownTarget(t *testing.T) {
	eng := newTestEngine()

	_, err := eng.CreatePlanWithTargets(context.Background(), webshopConfig(), &ir.State{Version: ir.StateVersion}, []string{"webApp.nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown target")
}

func TestCreateDestroyPlanOrdering(t *testing.T) {
	eng := newTestEngine()

	plan, err := eng.CreateDestroyPlan(context.Background(), webshopConfig(), webshopState())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"webApp.appB",
		"webApp.appA",
		"roleAssignment.pull",
		"managedIdentity.appIdentity",
		"containerRegistry.registry",
	}, changeAddrs(plan))
	assert.Equal(t, 5, plan.Summary.Delete)
	for _, c := range plan.Changes {
		assert.Equal(t, ir.ActionDelete, c.Action)
	}
}

func TestCreateDestroyPlanEmptyState(t *testing.T) {
	eng := newTestEngine()

	plan, err := eng.CreateDestroyPlan(context.Background(), webshopConfig(), &ir.State{Version: ir.StateVersion})
	require.NoError(t, err)
	assert.Empty(t, plan.Changes)
	assert.False(t, plan.HasChanges())
}

func TestCreateDestroyPlanPreventDestroy(t *testing.T) {
	eng := newTestEngine()
	cfg := webshopConfig()
	cfg.Resources[0].Lifecycle = &ir.Lifecycle{PreventDestroy: true}

	_, err := eng.CreateDestroyPlan(context.Background(), cfg, webshopState())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "preventDestroy")
	assert.Contains(t, err.Error(), "containerRegistry.registry")
}
