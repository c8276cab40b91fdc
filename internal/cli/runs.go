package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/groundwork-io/groundwork/internal/pipeline"
)

var (
	runsLimit    int
	runsGCMaxAge time.Duration
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect pipeline run history",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded pipeline runs",
	RunE:  runRunsList,
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show the stages, jobs and artifacts of a run",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

var runsGCCmd = &cobra.Command{
	Use:   "gc",
	Short: "Delete expired artifacts and prune old run records",
	RunE:  runRunsGC,
}

func init() {
	runsListCmd.Flags().IntVar(&runsLimit, "limit", 20, "Maximum number of runs to list")
	runsGCCmd.Flags().DurationVar(&runsGCMaxAge, "older-than", 7*24*time.Hour, "Prune terminal runs older than this")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsGCCmd)
}

func runRunsList(cmd *cobra.Command, args []string) error {
	store, err := pipeline.OpenStore(cmd.Context(), pipelineDBPath())
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRuns(cmd.Context(), runsLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No recorded runs.")
		return nil
	}

	fmt.Printf("%-36s  %-12s  %-10s  %s\n", "ID", "PIPELINE", "STATUS", "STARTED")
	for _, run := range runs {
		fmt.Printf("%-36s  %-12s  %-10s  %s\n",
			run.ID, run.Pipeline, run.Status, run.StartedAt.Local().Format(time.RFC3339))
	}
	return nil
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	store, err := pipeline.OpenStore(cmd.Context(), pipelineDBPath())
	if err != nil {
		return err
	}
	defer store.Close()
	ctx := cmd.Context()

	run, err := store.GetRun(ctx, args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Run %s\n", run.ID)
	fmt.Printf("  pipeline = %s\n", run.Pipeline)
	fmt.Printf("  status   = %s\n", run.Status)
	fmt.Printf("  started  = %s\n", run.StartedAt.Local().Format(time.RFC3339))
	if run.CompletedAt != nil {
		fmt.Printf("  finished = %s\n", run.CompletedAt.Local().Format(time.RFC3339))
	}
	if run.Error != "" {
		fmt.Printf("  error    = %s\n", run.Error)
	}

	stages, err := store.ListStages(ctx, run.ID)
	if err != nil {
		return err
	}
	jobs, err := store.ListJobs(ctx, run.ID)
	if err != nil {
		return err
	}
	jobsByStage := make(map[string][]*pipeline.JobRecord)
	for _, j := range jobs {
		jobsByStage[j.Stage] = append(jobsByStage[j.Stage], j)
	}

	fmt.Println("\nStages:")
	for _, st := range stages {
		fmt.Printf("  %-16s %s\n", st.Name, st.Status)
		for _, j := range jobsByStage[st.Name] {
			line := fmt.Sprintf("    %-16s %s (attempts: %d)", j.Name, j.Status, j.Attempts)
			if j.Error != "" {
				line += " - " + j.Error
			}
			fmt.Println(line)
		}
	}

	artifacts, err := store.ListArtifacts(ctx, run.ID)
	if err != nil {
		return err
	}
	if len(artifacts) > 0 {
		fmt.Println("\nArtifacts:")
		for _, a := range artifacts {
			expiry := "never expires"
			if a.ExpiresAt != nil {
				expiry = "expires " + a.ExpiresAt.Local().Format(time.RFC3339)
			}
			fmt.Printf("  %-16s %s (%s)\n", a.Name, a.Path, expiry)
		}
	}
	return nil
}

func runRunsGC(cmd *cobra.Command, args []string) error {
	store, err := pipeline.OpenStore(cmd.Context(), pipelineDBPath())
	if err != nil {
		return err
	}
	defer store.Close()
	ctx := cmd.Context()

	paths, err := store.DeleteExpiredArtifacts(ctx)
	if err != nil {
		return err
	}
	removed := 0
	for _, p := range paths {
		if err := os.Remove(p); err == nil || os.IsNotExist(err) {
			removed++
		}
	}

	pruned, err := store.PruneRuns(ctx, time.Now().Add(-runsGCMaxAge))
	if err != nil {
		return err
	}

	fmt.Printf("Deleted %d expired artifact(s), pruned %d run record(s) older than %s.\n",
		removed, pruned, runsGCMaxAge)
	return nil
}
