package local

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groundwork-io/groundwork/internal/provider"
)

func TestCreateSynthesizesOutputs(t *testing.T) {
	p := New()
	ctx := context.Background()

	tests := []struct {
		typ  string
		name string
		want []string
	}{
		{"containerRegistry", "registry", []string{"loginServer"}},
		{"managedIdentity", "identity", []string{"principalId", "clientId"}},
		{"roleAssignment", "pull", []string{"assignmentId"}},
		{"webApp", "appA", []string{"hostname", "url"}},
	}

	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			resp, err := p.Create(ctx, &provider.CreateRequest{
				Type:       tt.typ,
				Name:       tt.name,
				Attributes: map[string]any{"sku": "basic"},
			})
			require.NoError(t, err)
			assert.NotEmpty(t, resp.ID)
			assert.Equal(t, "basic", resp.Outputs["sku"], "inputs are echoed")
			for _, key := range tt.want {
				assert.NotEmpty(t, resp.Outputs[key], key)
			}
		})
	}
}

func TestWebAppHostnameIsDeterministic(t *testing.T) {
	p := New()
	resp, err := p.Create(context.Background(), &provider.CreateRequest{Type: "webApp", Name: "appA"})
	require.NoError(t, err)
	assert.Equal(t, "appA.apps.local", resp.Outputs["hostname"])
	assert.Equal(t, "https://appA.apps.local", resp.Outputs["url"])
}

func TestReadUpdateDelete(t *testing.T) {
	p := New()
	ctx := context.Background()

	created, err := p.Create(ctx, &provider.CreateRequest{
		Type: "webApp", Name: "appA", Attributes: map[string]any{"plan": "basic"},
	})
	require.NoError(t, err)

	read, err := p.Read(ctx, &provider.ReadRequest{Type: "webApp", ID: created.ID})
	require.NoError(t, err)
	assert.True(t, read.Exists)
	assert.Equal(t, "basic", read.Outputs["plan"])

	updated, err := p.Update(ctx, &provider.UpdateRequest{
		Type: "webApp", Name: "appA", ID: created.ID,
		Attributes: map[string]any{"plan": "premium"},
	})
	require.NoError(t, err)
	assert.Equal(t, "premium", updated.Outputs["plan"])
	assert.Equal(t, created.ID, updated.Outputs["id"], "update keeps the remote id")

	require.NoError(t, p.Delete(ctx, &provider.DeleteRequest{Type: "webApp", ID: created.ID}))

	gone, err := p.Read(ctx, &provider.ReadRequest{Type: "webApp", ID: created.ID})
	require.NoError(t, err)
	assert.False(t, gone.Exists)
}

func TestReadUnknownIDWithRecordedOutputs(t *testing.T) {
	p := New()
	read, err := p.Read(context.Background(), &provider.ReadRequest{
		Type:    "webApp",
		ID:      "local-webApp-fromLastRun",
		Outputs: map[string]any{"hostname": "fromLastRun.apps.local"},
	})
	require.NoError(t, err)
	assert.True(t, read.Exists)
	assert.Equal(t, "fromLastRun.apps.local", read.Outputs["hostname"])
}
