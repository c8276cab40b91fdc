package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groundwork-io/groundwork/internal/ir"
)

func TestBuildDAGCreationOrder(t *testing.T) {
	resources := []*ir.Resource{
		{Type: "webApp", Name: "frontend", Attributes: map[string]any{
			"apiBase": ir.MakeRef("webApp.api", "hostname"),
		}},
		{Type: "webApp", Name: "api", Attributes: map[string]any{
			"image": ir.MakeRef("containerRegistry.main", "loginServer"),
		}},
		{Type: "containerRegistry", Name: "main", Attributes: map[string]any{}},
	}

	dag, err := BuildDAG(resources)
	require.NoError(t, err)

	order := dag.CreationOrder()
	assert.Equal(t, []string{"containerRegistry.main", "webApp.api", "webApp.frontend"}, order)

	reverse := dag.DestructionOrder()
	assert.Equal(t, []string{"webApp.frontend", "webApp.api", "containerRegistry.main"}, reverse)
}

func TestBuildDAGExplicitDependsOn(t *testing.T) {
	resources := []*ir.Resource{
		{Type: "webApp", Name: "app", DependsOn: []string{"roleAssignment.pull"}, Attributes: map[string]any{}},
		{Type: "roleAssignment", Name: "pull", Attributes: map[string]any{}},
	}

	dag, err := BuildDAG(resources)
	require.NoError(t, err)
	assert.Equal(t, []string{"roleAssignment.pull", "webApp.app"}, dag.CreationOrder())
	assert.Equal(t, []string{"roleAssignment.pull"}, dag.Dependencies("webApp.app"))
}

func TestBuildDAGFindsRefsInNestedValues(t *testing.T) {
	resources := []*ir.Resource{
		{Type: "webApp", Name: "app", Attributes: map[string]any{
			"env": map[string]any{
				"DATABASE_URL": ir.MakeRef("database.main", "connectionString"),
			},
			"mounts": []any{
				map[string]any{"source": ir.MakeRef("storage.data", "path")},
			},
		}},
		{Type: "database", Name: "main", Attributes: map[string]any{}},
		{Type: "storage", Name: "data", Attributes: map[string]any{}},
	}

	dag, err := BuildDAG(resources)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"database.main", "storage.data"}, dag.Dependencies("webApp.app"))
}

func TestBuildDAGCycle(t *testing.T) {
	resources := []*ir.Resource{
		{Type: "webApp", Name: "a", Attributes: map[string]any{
			"peer": ir.MakeRef("webApp.b", "hostname"),
		}},
		{Type: "webApp", Name: "b", Attributes: map[string]any{
			"peer": ir.MakeRef("webApp.a", "hostname"),
		}},
	}

	_, err := BuildDAG(resources)
	require.Error(t, err)

	var cycleErr *CyclicDependencyError
	require.ErrorAs(t, err, &cycleErr)
	assert.Equal(t, []string{"webApp.a", "webApp.b", "webApp.a"}, cycleErr.Path)
	assert.Contains(t, err.Error(), "webApp.a -> webApp.b -> webApp.a")
}

func TestBuildDAGSelfReference(t *testing.T) {
	resources := []*ir.Resource{
		{Type: "webApp", Name: "app", Attributes: map[string]any{
			"callback": ir.MakeRef("webApp.app", "hostname"),
		}},
	}

	_, err := BuildDAG(resources)
	var cycleErr *CyclicDependencyError
	require.ErrorAs(t, err, &cycleErr)
	assert.Equal(t, []string{"webApp.app", "webApp.app"}, cycleErr.Path)
}

func TestBuildDAGUnknownReference(t *testing.T) {
	resources := []*ir.Resource{
		{Type: "webApp", Name: "app", Attributes: map[string]any{
			"image": ir.MakeRef("containerRegistry.missing", "loginServer"),
		}},
	}

	_, err := BuildDAG(resources)
	var refErr *UnknownReferenceError
	require.ErrorAs(t, err, &refErr)
	assert.Equal(t, "webApp.app", refErr.Address)
	assert.Equal(t, "containerRegistry.missing", refErr.Target)
}

func TestBuildDAGUnknownDependsOn(t *testing.T) {
	resources := []*ir.Resource{
		{Type: "webApp", Name: "app", DependsOn: []string{"database.gone"}, Attributes: map[string]any{}},
	}

	_, err := BuildDAG(resources)
	var refErr *UnknownReferenceError
	require.ErrorAs(t, err, &refErr)
	assert.Equal(t, "database.gone", refErr.Target)
}

func TestBuildDAGFromStateDropsDanglingDeps(t *testing.T) {
	resources := []*ir.ResourceState{
		{Type: "webApp", Name: "app", Dependencies: []string{"containerRegistry.main", "identity.removed"}},
		{Type: "containerRegistry", Name: "main"},
	}

	dag, err := BuildDAGFromState(resources)
	require.NoError(t, err)
	assert.Equal(t, []string{"containerRegistry.main"}, dag.Dependencies("webApp.app"))
	assert.Equal(t, []string{"webApp.app", "containerRegistry.main"}, dag.DestructionOrder())
}

func TestTransitiveDeps(t *testing.T) {
	resources := []*ir.Resource{
		{Type: "webApp", Name: "b", Attributes: map[string]any{
			"api": ir.MakeRef("webApp.a", "hostname"),
		}},
		{Type: "webApp", Name: "a", Attributes: map[string]any{
			"principal": ir.MakeRef("identity.app", "principalId"),
		}},
		{Type: "identity", Name: "app", Attributes: map[string]any{}},
		{Type: "containerRegistry", Name: "main", Attributes: map[string]any{}},
	}

	dag, err := BuildDAG(resources)
	require.NoError(t, err)

	deps := dag.TransitiveDeps("webApp.b")
	assert.Equal(t, map[string]bool{"webApp.a": true, "identity.app": true}, deps)
	assert.Empty(t, dag.TransitiveDeps("containerRegistry.main"))
}
