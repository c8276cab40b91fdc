package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/groundwork-io/groundwork/internal/state"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new Groundwork project",
	Long:  `Creates the .groundwork directory, an empty state file and a starter configuration.`,
	RunE:  runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	if err := os.MkdirAll(groundworkDir(), 0o755); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", groundworkDir(), err)
	}

	if _, err := os.Stat(defaultEntryPoint); os.IsNotExist(err) {
		content := `# Groundwork configuration
# See: https://github.com/groundwork-io/groundwork

variables:
  environment:
    type: string
    default: dev

resources:
  - type: webApp
    name: app
    attributes:
      plan: basic
      environment: ${var.environment}

outputs:
  appUrl: ref://webApp.app/url
`
		if err := os.WriteFile(defaultEntryPoint, []byte(content), 0o644); err != nil {
			return fmt.Errorf("failed to create %s: %w", defaultEntryPoint, err)
		}
		fmt.Printf("Created %s\n", defaultEntryPoint)
	}

	statePath := filepath.Join(groundworkDir(), "state.json")
	if _, err := os.Stat(statePath); os.IsNotExist(err) {
		mgr := state.NewManager(statePath)
		if err := mgr.Write(cmd.Context(), state.NewState()); err != nil {
			return fmt.Errorf("failed to create state file: %w", err)
		}
		fmt.Printf("Created %s\n", statePath)
	}

	fmt.Println("\nGroundwork initialized successfully!")
	fmt.Println("Next steps:")
	fmt.Printf("  1. Edit %s to define your resources\n", defaultEntryPoint)
	fmt.Println("  2. Run 'groundwork plan' to see what will be created")
	fmt.Println("  3. Run 'groundwork apply' to create your resources")

	return nil
}
