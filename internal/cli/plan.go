package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/groundwork-io/groundwork/internal/engine"
	"github.com/groundwork-io/groundwork/internal/eval"
)

var (
	planOutFile string
	planVars    []string
	planVarFile string
	planTargets []string
)

var planCmd = &cobra.Command{
	Use:   "plan [config]",
	Short: "Generate an execution plan",
	Long: `Generates an execution plan showing what actions Groundwork will take
to reach the desired state defined in your configuration.

The plan shows:
  • Resources to be created
  • Resources to be updated (with diff)
  • Resources to be deleted

Exit codes: 0 when there are no changes, 2 when changes are present,
1 on error.`,
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringVarP(&planOutFile, "out", "o", "", "Write the plan to a file as JSON")
	planCmd.Flags().StringArrayVar(&planVars, "var", nil, "Set a variable (format: key=value)")
	planCmd.Flags().StringVar(&planVarFile, "var-file", "", "Read variables from a file (key=value lines)")
	planCmd.Flags().StringSliceVar(&planTargets, "target", nil, "Limit the plan to the given addresses and their dependencies")
}

func runPlan(cmd *cobra.Command, args []string) error {
	dir, entryPoint, err := resolveProject(args)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	vars, err := collectVars(planVars, planVarFile)
	if err != nil {
		return err
	}

	cfg, err := eval.Load(ctx, dir, entryPoint, vars)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	backend, err := openBackend(dir)
	if err != nil {
		return err
	}
	currentState, err := backend.Read(ctx)
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	// Planning never calls a provider, no registry needed.
	eng := engine.NewEngine(newRegistry())
	plan, err := eng.CreatePlanWithTargets(ctx, cfg, currentState, planTargets)
	if err != nil {
		return fmt.Errorf("plan generation failed: %w", err)
	}

	if plan.HasChanges() {
		fmt.Println("Groundwork will perform the following actions:")
		renderPlanChanges(plan)
	} else {
		fmt.Println("No changes. Infrastructure is up-to-date.")
	}
	renderPlanSummary(plan)

	if planOutFile != "" {
		data, err := json.MarshalIndent(plan, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode plan: %w", err)
		}
		if err := os.WriteFile(planOutFile, append(data, '\n'), 0o644); err != nil {
			return fmt.Errorf("failed to write plan file: %w", err)
		}
		fmt.Printf("\nPlan written to %s\n", planOutFile)
	}

	if plan.HasChanges() {
		return &exitError{code: exitChanges}
	}
	return nil
}
