package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/groundwork-io/groundwork/internal/ir"
	"github.com/groundwork-io/groundwork/internal/state"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate-from-terraform [tf-dir]",
	Short: "Migrate Terraform state to Groundwork",
	Long: `Converts a Terraform state file (terraform.tfstate) to a Groundwork
state file.

This performs a best-effort conversion. You still need to write the
corresponding Groundwork configuration manually, but the state conversion
ensures existing resources are managed without being recreated.

Example:
  groundwork migrate-from-terraform .
  groundwork migrate-from-terraform /path/to/terraform/project`,
	RunE: runMigrate,
}

// TerraformState mirrors the terraform.tfstate file format.
type TerraformState struct {
	Version          int                 `json:"version"`
	TerraformVersion string              `json:"terraform_version"`
	Serial           int                 `json:"serial"`
	Lineage          string              `json:"lineage"`
	Outputs          map[string]TFOutput `json:"outputs"`
	Resources        []TFResource        `json:"resources"`
}

type TFOutput struct {
	Value any `json:"value"`
}

type TFResource struct {
	Module    string       `json:"module"`
	Mode      string       `json:"mode"` // "managed" or "data"
	Type      string       `json:"type"`
	Name      string       `json:"name"`
	Provider  string       `json:"provider"`
	Instances []TFInstance `json:"instances"`
}

type TFInstance struct {
	SchemaVersion int            `json:"schema_version"`
	Attributes    map[string]any `json:"attributes"`
	Dependencies  []string       `json:"dependencies"`
}

func runMigrate(cmd *cobra.Command, args []string) error {
	tfDir := "."
	if len(args) > 0 {
		tfDir = args[0]
	}

	statePath := filepath.Join(tfDir, "terraform.tfstate")
	data, err := os.ReadFile(statePath)
	if err != nil {
		return fmt.Errorf("failed to read terraform state from %s: %w", statePath, err)
	}

	var tfState TerraformState
	if err := json.Unmarshal(data, &tfState); err != nil {
		return fmt.Errorf("failed to parse terraform state: %w", err)
	}

	fmt.Printf("Found Terraform state: version=%d serial=%d lineage=%s\n",
		tfState.Version, tfState.Serial, tfState.Lineage)
	fmt.Printf("Resources: %d\n", len(tfState.Resources))

	converted := &ir.State{
		Version: ir.StateVersion,
		Serial:  tfState.Serial,
		Lineage: tfState.Lineage,
		Outputs: make(map[string]any),
	}
	if converted.Lineage == "" {
		converted.Lineage = uuid.NewString()
	}
	for k, v := range tfState.Outputs {
		converted.Outputs[k] = v.Value
	}

	count := 0
	for _, res := range tfState.Resources {
		if res.Mode != "managed" {
			continue
		}
		providerName := mapTFProvider(res.Provider)
		for _, inst := range res.Instances {
			id := ""
			if v, ok := inst.Attributes["id"]; ok {
				id = fmt.Sprintf("%v", v)
			}
			converted.Resources = append(converted.Resources, &ir.ResourceState{
				Type:     res.Type,
				Name:     res.Name,
				Provider: providerName,
				ID:       id,
				Inputs:   map[string]any{},
				Outputs:  inst.Attributes,
			})
			count++
		}
	}

	if err := os.MkdirAll(groundworkDir(), 0o755); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", groundworkDir(), err)
	}
	outPath := workspaceStatePath()
	mgr := state.NewManager(outPath)
	if err := mgr.Write(cmd.Context(), converted); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}

	fmt.Printf("\nMigration complete! Converted %d resources to %s\n", count, outPath)
	fmt.Println("\nNext steps:")
	fmt.Printf("  1. Write the corresponding configuration in %s\n", defaultEntryPoint)
	fmt.Println("  2. Run 'groundwork plan' to verify no changes are needed")
	fmt.Println("  3. If plan shows changes, adjust your config to match")
	return nil
}

// mapTFProvider maps a Terraform provider source to a Groundwork provider
// name, e.g. registry.terraform.io/kreuzwerker/docker -> docker.
func mapTFProvider(tfProvider string) string {
	parts := strings.Split(tfProvider, "/")
	name := parts[len(parts)-1]
	name = strings.Trim(name, "[]\"")
	switch name {
	case "docker":
		return "docker"
	default:
		return ir.DefaultProvider
	}
}
