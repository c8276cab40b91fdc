package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/groundwork-io/groundwork/internal/engine"
	"github.com/groundwork-io/groundwork/internal/eval"
	"github.com/groundwork-io/groundwork/internal/ir"
)

var (
	applyAutoApprove bool
	applyVars        []string
	applyVarFile     string
	applyTargets     []string
	applyParallelism int
)

var applyCmd = &cobra.Command{
	Use:   "apply [config]",
	Short: "Apply a configuration",
	Long: `Builds or changes resources according to the Groundwork configuration.

Plans first, shows the change-set, asks for confirmation (unless
--auto-approve), then executes the plan with per-change state persistence.

Exit codes: 0 on success, 2 when there is nothing to do, 3 when some
changes failed (partial apply), 1 on hard error.`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().BoolVar(&applyAutoApprove, "auto-approve", false, "Skip interactive approval of the plan before applying")
	applyCmd.Flags().StringArrayVar(&applyVars, "var", nil, "Set a variable (format: key=value)")
	applyCmd.Flags().StringVar(&applyVarFile, "var-file", "", "Read variables from a file (key=value lines)")
	applyCmd.Flags().StringSliceVar(&applyTargets, "target", nil, "Limit the apply to the given addresses and their dependencies")
	applyCmd.Flags().IntVar(&applyParallelism, "parallelism", 0, "Maximum number of concurrent provider operations")
}

func runApply(cmd *cobra.Command, args []string) error {
	dir, entryPoint, err := resolveProject(args)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	vars, err := collectVars(applyVars, applyVarFile)
	if err != nil {
		return err
	}

	backend, err := openBackend(dir)
	if err != nil {
		return err
	}
	if err := backend.Lock(); err != nil {
		return err
	}
	defer backend.Unlock()

	cfg, err := eval.Load(ctx, dir, entryPoint, vars)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	registry := newRegistry()
	if err := loadRequiredProviders(registry, cfg); err != nil {
		return err
	}

	currentState, err := backend.Read(ctx)
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}
	// providers for resources only present in state are needed for DELETE
	if err := loadStateProviders(registry, currentState); err != nil {
		return err
	}

	eng := engine.NewEngine(registry)
	if applyParallelism > 0 {
		eng.Parallelism = applyParallelism
	} else if s := loadSettings(); s.Parallelism > 0 {
		eng.Parallelism = s.Parallelism
	}

	plan, err := eng.CreatePlanWithTargets(ctx, cfg, currentState, applyTargets)
	if err != nil {
		return fmt.Errorf("plan generation failed: %w", err)
	}

	if !plan.HasChanges() {
		fmt.Println("No changes. Infrastructure is up-to-date.")
		return &exitError{code: exitNothingToDo}
	}

	fmt.Println("Groundwork will perform the following actions:")
	renderPlanChanges(plan)
	renderPlanSummary(plan)

	if !applyAutoApprove {
		if !confirm("\nDo you want to perform these actions?") {
			fmt.Println("Apply cancelled.")
			return nil
		}
	}

	fmt.Printf("\nApplying %d changes...\n", len(plan.Changes))

	persist := func(s *ir.State) error {
		return backend.Write(ctx, s)
	}
	newState, applyErr := eng.ApplyPlanWithCallback(ctx, plan, currentState, persist, printApplyEvent)

	writeApplyAudit("apply", plan, applyErr)

	var partial *engine.PartialApplyError
	if errors.As(applyErr, &partial) {
		fmt.Printf("\nApply incomplete: %d succeeded, %d failed, %d skipped.\n",
			len(partial.Succeeded), len(partial.Failed), len(partial.Skipped))
		fmt.Println("Successful changes are recorded in state; re-run plan/apply to retry the rest.")
		return &exitError{code: exitPartialFailure, err: applyErr}
	}
	if applyErr != nil {
		return fmt.Errorf("apply failed: %w", applyErr)
	}

	fmt.Printf("\nApply complete! Resources: %d added, %d changed, %d destroyed.\n",
		plan.Summary.Create, plan.Summary.Update, plan.Summary.Delete)

	if len(newState.Outputs) > 0 {
		fmt.Println("\nOutputs:")
		for _, k := range sortedMapKeys(newState.Outputs) {
			fmt.Printf("  %s = %v\n", k, newState.Outputs[k])
		}
	}
	return nil
}

// printApplyEvent reports per-change progress as it happens.
func printApplyEvent(event engine.ApplyEvent) {
	switch event.Status {
	case "started":
		fmt.Printf("%s: %s...\n", event.Address, applyVerb(event.Action))
	case "completed":
		fmt.Printf("%s: done (%s)\n", event.Address, event.Duration.Round(time.Millisecond))
	case "failed":
		fmt.Printf("%s%s: failed: %v%s\n", colorize("\033[31m"), event.Address, event.Error, colorize("\033[0m"))
	case "skipped":
		fmt.Printf("%s: skipped\n", event.Address)
	}
}

func applyVerb(action ir.Action) string {
	switch action {
	case ir.ActionCreate:
		return "creating"
	case ir.ActionUpdate:
		return "updating"
	case ir.ActionDelete:
		return "deleting"
	}
	return "applying"
}

// writeApplyAudit appends an audit entry for an apply or destroy run.
// Best-effort: failures never block the operation.
func writeApplyAudit(operation string, plan *ir.Plan, applyErr error) {
	entry := AuditEntry{
		Operation: operation,
		Summary: map[string]int{
			"create": plan.Summary.Create,
			"update": plan.Summary.Update,
			"delete": plan.Summary.Delete,
		},
	}
	for _, change := range plan.Changes {
		entry.Changes = append(entry.Changes, AuditChange{
			Address: change.Address,
			Action:  string(change.Action),
		})
	}
	if applyErr != nil {
		entry.Error = applyErr.Error()
	}
	_ = writeAuditLog(entry)
}
