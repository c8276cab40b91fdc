package eval

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groundwork-io/groundwork/internal/ir"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	return dir
}

func TestLoadYAML(t *testing.T) {
	dir := writeConfig(t, "groundwork.yaml", `
variables:
  location:
    type: string
    default: westeurope
  replicas:
    type: number
resources:
  - type: containerRegistry
    name: registry
    attributes:
      sku: Basic
      location: "${var.location}"
  - type: webApp
    name: appA
    attributes:
      replicas: "${var.replicas}"
      registry: "ref://containerRegistry.registry/loginServer"
outputs:
  registryServer: "ref://containerRegistry.registry/loginServer"
`)

	cfg, err := Load(context.Background(), dir, "groundwork.yaml", map[string]string{"replicas": "3"})
	require.NoError(t, err)
	require.Len(t, cfg.Resources, 2)

	registry := cfg.Resource("containerRegistry.registry")
	require.NotNil(t, registry)
	assert.Equal(t, "westeurope", registry.Attributes["location"])

	appA := cfg.Resource("webApp.appA")
	require.NotNil(t, appA)
	// whole-value substitution keeps the declared type
	assert.Equal(t, 3, appA.Attributes["replicas"])
	assert.True(t, ir.IsRef(appA.Attributes["registry"]))

	assert.Equal(t, "ref://containerRegistry.registry/loginServer", cfg.Outputs["registryServer"])
}

func TestLoadYAMLEmptyFile(t *testing.T) {
	dir := writeConfig(t, "groundwork.yaml", "")

	cfg, err := Load(context.Background(), dir, "groundwork.yaml", nil)
	require.NoError(t, err)
	assert.Empty(t, cfg.Resources)
}

func TestLoadYAMLInterpolation(t *testing.T) {
	dir := writeConfig(t, "groundwork.yaml", `
variables:
  env:
    type: string
    default: staging
resources:
  - type: webApp
    name: appA
    attributes:
      siteName: "app-${var.env}-01"
`)

	cfg, err := Load(context.Background(), dir, "groundwork.yaml", nil)
	require.NoError(t, err)
	assert.Equal(t, "app-staging-01", cfg.Resource("webApp.appA").Attributes["siteName"])
}

func TestLoadMalformedYAML(t *testing.T) {
	dir := writeConfig(t, "groundwork.yaml", "resources:\n  - type: [broken\n")

	_, err := Load(context.Background(), dir, "groundwork.yaml", nil)
	require.Error(t, err)

	var parseErr *ParseError
	assert.ErrorAs(t, err, &parseErr)
}

func TestLoadUnknownField(t *testing.T) {
	dir := writeConfig(t, "groundwork.yaml", `
resources:
  - type: webApp
    name: appA
    attribtues:
      plan: shared
`)

	_, err := Load(context.Background(), dir, "groundwork.yaml", nil)
	var parseErr *ParseError
	assert.ErrorAs(t, err, &parseErr)
}

func TestLoadDuplicateResource(t *testing.T) {
	dir := writeConfig(t, "groundwork.yaml", `
resources:
  - type: webApp
    name: appA
    attributes: {}
  - type: webApp
    name: appA
    attributes: {}
`)

	_, err := Load(context.Background(), dir, "groundwork.yaml", nil)
	require.Error(t, err)

	var dupErr *DuplicateResourceError
	require.ErrorAs(t, err, &dupErr)
	assert.Equal(t, "webApp.appA", dupErr.Address)
}

func TestLoadUndeclaredVariable(t *testing.T) {
	dir := writeConfig(t, "groundwork.yaml", `
resources:
  - type: webApp
    name: appA
    attributes:
      plan: "${var.plan}"
`)

	_, err := Load(context.Background(), dir, "groundwork.yaml", nil)
	require.Error(t, err)

	var varErr *UnknownVariableError
	require.ErrorAs(t, err, &varErr)
	assert.Equal(t, "plan", varErr.Name)
}

func TestLoadRequiredVariableUnsupplied(t *testing.T) {
	dir := writeConfig(t, "groundwork.yaml", `
variables:
  plan:
    type: string
resources:
  - type: webApp
    name: appA
    attributes:
      plan: "${var.plan}"
`)

	_, err := Load(context.Background(), dir, "groundwork.yaml", nil)
	var varErr *UnknownVariableError
	require.ErrorAs(t, err, &varErr)
	assert.Equal(t, "plan", varErr.Name)

	// supplying the value resolves it
	cfg, err := Load(context.Background(), dir, "groundwork.yaml", map[string]string{"plan": "premium"})
	require.NoError(t, err)
	assert.Equal(t, "premium", cfg.Resource("webApp.appA").Attributes["plan"])
}

func TestLoadBadVariableValue(t *testing.T) {
	dir := writeConfig(t, "groundwork.yaml", `
variables:
  replicas:
    type: number
resources:
  - type: webApp
    name: appA
    attributes:
      replicas: "${var.replicas}"
`)

	_, err := Load(context.Background(), dir, "groundwork.yaml", map[string]string{"replicas": "many"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a number")
}

func TestLoadUnsupportedExtension(t *testing.T) {
	dir := writeConfig(t, "groundwork.toml", "answer = 42\n")

	_, err := Load(context.Background(), dir, "groundwork.toml", nil)
	var parseErr *ParseError
	assert.ErrorAs(t, err, &parseErr)
}

func TestLoadMissingTypeOrName(t *testing.T) {
	dir := writeConfig(t, "groundwork.yaml", `
resources:
  - type: webApp
    attributes: {}
`)

	_, err := Load(context.Background(), dir, "groundwork.yaml", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing a type or name")
}
