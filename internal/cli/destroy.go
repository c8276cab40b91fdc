package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/groundwork-io/groundwork/internal/engine"
	"github.com/groundwork-io/groundwork/internal/eval"
	"github.com/groundwork-io/groundwork/internal/ir"
)

var destroyAutoApprove bool

var destroyCmd = &cobra.Command{
	Use:   "destroy [config]",
	Short: "Destroy all managed resources",
	Long: `Destroys every resource tracked in state, in reverse dependency order.

This command is the inverse of 'groundwork apply'. Resources marked with
lifecycle.preventDestroy block the whole destroy.

Exit codes: 0 on success, 2 when state is already empty, 3 when some
deletions failed (partial destroy), 1 on hard error.`,
	RunE: runDestroy,
}

func init() {
	destroyCmd.Flags().BoolVar(&destroyAutoApprove, "auto-approve", false, "Skip interactive approval before destroying")
}

func runDestroy(cmd *cobra.Command, args []string) error {
	dir, entryPoint, err := resolveProject(args)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	backend, err := openBackend(dir)
	if err != nil {
		return err
	}
	if err := backend.Lock(); err != nil {
		return err
	}
	defer backend.Unlock()

	currentState, err := backend.Read(ctx)
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}
	if len(currentState.Resources) == 0 {
		fmt.Println("No resources in state. Nothing to destroy.")
		return &exitError{code: exitNothingToDo}
	}

	// The config is optional for destroy; preventDestroy checks need it when
	// present.
	cfg, err := eval.Load(ctx, dir, entryPoint, nil)
	if err != nil {
		cfg = &ir.Config{}
	}

	registry := newRegistry()
	if err := loadStateProviders(registry, currentState); err != nil {
		return err
	}

	eng := engine.NewEngine(registry)
	plan, err := eng.CreateDestroyPlan(ctx, cfg, currentState)
	if err != nil {
		return fmt.Errorf("destroy plan failed: %w", err)
	}
	if !plan.HasChanges() {
		fmt.Println("No resources in state. Nothing to destroy.")
		return &exitError{code: exitNothingToDo}
	}

	fmt.Println("Groundwork will destroy the following resources:")
	renderPlanChanges(plan)
	renderPlanSummary(plan)

	if !destroyAutoApprove {
		if !confirm("\nDo you really want to destroy all resources?") {
			fmt.Println("Destroy cancelled.")
			return nil
		}
	}

	fmt.Printf("\nDestroying %d resources...\n", len(plan.Changes))

	persist := func(s *ir.State) error {
		return backend.Write(ctx, s)
	}
	_, applyErr := eng.ApplyPlanWithCallback(ctx, plan, currentState, persist, printApplyEvent)

	writeApplyAudit("destroy", plan, applyErr)

	var partial *engine.PartialApplyError
	if errors.As(applyErr, &partial) {
		fmt.Printf("\nDestroy incomplete: %d succeeded, %d failed, %d skipped.\n",
			len(partial.Succeeded), len(partial.Failed), len(partial.Skipped))
		return &exitError{code: exitPartialFailure, err: applyErr}
	}
	if applyErr != nil {
		return fmt.Errorf("destroy failed: %w", applyErr)
	}

	fmt.Printf("\nDestroy complete! %d resources deleted.\n", plan.Summary.Delete)
	return nil
}
