package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/groundwork-io/groundwork/internal/engine"
	"github.com/groundwork-io/groundwork/internal/eval"
	"github.com/groundwork-io/groundwork/internal/ir"
	"github.com/groundwork-io/groundwork/internal/pipeline"
)

const defaultPipelineFile = "pipeline.yaml"

var runWorkers int

var runCmd = &cobra.Command{
	Use:   "run [pipeline.yaml]",
	Short: "Execute a pipeline",
	Long: `Runs the stages of a pipeline definition in dependency order: jobs inside
a stage run concurrently, artifacts are handed between stages, and an
'apply: true' job performs one plan+apply of the project configuration.

Run history is recorded in the SQLite run store under .groundwork/.

Exit codes: 0 when the run succeeded, 1 when it failed.`,
	RunE: runPipeline,
}

func init() {
	runCmd.Flags().IntVar(&runWorkers, "workers", 0, "Maximum number of concurrent jobs per stage")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	pipelineFile := defaultPipelineFile
	if len(args) > 0 {
		pipelineFile = args[0]
	}

	pl, err := pipeline.LoadPipeline(pipelineFile)
	if err != nil {
		return err
	}

	dir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}
	ctx := cmd.Context()

	store, err := pipeline.OpenStore(ctx, pipelineDBPath())
	if err != nil {
		return err
	}
	defer store.Close()

	s := loadSettings()
	workers := runWorkers
	if workers <= 0 {
		workers = s.Workers
	}

	orch := &pipeline.Orchestrator{
		Store:        store,
		Runner:       pipeline.NewRunner(dir),
		Apply:        func(ctx context.Context) error { return pipelineApply(ctx, dir) },
		Workers:      workers,
		ArtifactsDir: filepath.Join(dir, groundworkDir(), "artifacts"),
		Dir:          dir,
	}

	fmt.Printf("Running pipeline %q (%d stages)...\n", pl.Name, len(pl.Stages))
	run, err := orch.Run(ctx, pl)
	if err != nil {
		return err
	}

	fmt.Printf("\nRun %s finished: %s\n", run.ID, run.Status)
	for _, st := range run.Stages {
		line := fmt.Sprintf("  %-16s %s", st.Name, st.Status)
		if st.Error != "" {
			line += " (" + st.Error + ")"
		}
		fmt.Println(line)
	}

	if run.Failed() {
		return &exitError{code: 1, err: fmt.Errorf("pipeline run %s failed", run.ID)}
	}
	return nil
}

func pipelineDBPath() string {
	if s := loadSettings(); s.PipelineDB != "" {
		return s.PipelineDB
	}
	return filepath.Join(groundworkDir(), "runs.db")
}

// pipelineApply is the single plan+apply invocation behind 'apply: true'
// jobs. It is non-interactive: the pipeline definition is the approval.
func pipelineApply(ctx context.Context, dir string) error {
	backend, err := openBackend(dir)
	if err != nil {
		return err
	}
	if err := backend.Lock(); err != nil {
		return err
	}
	defer backend.Unlock()

	cfg, err := eval.Load(ctx, dir, defaultEntryPoint, nil)
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
	if err := loadStateProviders(registry, currentState); err != nil {
		return err
	}

	eng := engine.NewEngine(registry)
	plan, err := eng.CreatePlan(ctx, cfg, currentState)
	if err != nil {
		return fmt.Errorf("plan generation failed: %w", err)
	}
	if !plan.HasChanges() {
		return nil
	}

	persist := func(s *ir.State) error {
		return backend.Write(ctx, s)
	}
	_, applyErr := eng.ApplyPlan(ctx, plan, currentState, persist)
	writeApplyAudit("apply", plan, applyErr)
	return applyErr
}
