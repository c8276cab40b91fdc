package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/groundwork-io/groundwork/internal/engine"
	"github.com/groundwork-io/groundwork/internal/eval"
)

var validateCmd = &cobra.Command{
	Use:   "validate [config]",
	Short: "Validate the configuration",
	Long: `Checks that the configuration parses, that every resource address is
unique, that all references resolve and that the dependency graph is acyclic.
No providers are called and no state is read.`,
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	dir, entryPoint, err := resolveProject(args)
	if err != nil {
		return err
	}

	cfg, err := eval.Load(cmd.Context(), dir, entryPoint, nil)
	if err != nil {
		return fmt.Errorf("configuration is invalid: %w", err)
	}

	resources, err := engine.ExpandForEach(cfg.Resources)
	if err != nil {
		return fmt.Errorf("configuration is invalid: %w", err)
	}
	if _, err := engine.BuildDAG(resources); err != nil {
		return fmt.Errorf("configuration is invalid: %w", err)
	}

	fmt.Printf("Configuration is valid. %d resource(s) declared.\n", len(resources))
	return nil
}
