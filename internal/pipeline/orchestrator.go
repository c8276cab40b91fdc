package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/groundwork-io/groundwork/internal/logging"
)

// ApplyFunc performs the single plan+apply invocation of an apply job. The
// CLI wires the real engine; tests wire stubs.
type ApplyFunc func(ctx context.Context) error

const defaultWorkers = 4

// Orchestrator executes a pipeline: stages sequentially, gated on the
// recorded status of their dependencies, jobs within a stage concurrently.
type Orchestrator struct {
	Store        *Store
	Runner       JobRunner
	Apply        ApplyFunc
	Workers      int
	ArtifactsDir string
	Dir          string

	// now is swappable so artifact expiry is testable.
	now func() time.Time
}

// Run is the in-memory result of one pipeline execution.
type Run struct {
	ID       string
	Pipeline string
	Status   Status
	Stages   []StageResult
}

// StageResult is the final status of one stage.
type StageResult struct {
	Name   string
	Status Status
	Error  string
}

// Failed reports whether the run ended with a failed stage.
func (r *Run) Failed() bool {
	return r.Status == StatusFailed
}

// Run executes the pipeline to completion. The returned error covers
// orchestration failures (persistence, bad wiring); job and stage failures
// are reported through the run's status.
func (o *Orchestrator) Run(ctx context.Context, pl *Pipeline) (*Run, error) {
	if o.Store == nil {
		return nil, fmt.Errorf("orchestrator: run store is required")
	}
	if o.Runner == nil {
		o.Runner = NewRunner(o.Dir)
	}
	if o.Workers <= 0 {
		o.Workers = defaultWorkers
	}
	if o.now == nil {
		o.now = time.Now
	}

	run := &Run{
		ID:       uuid.NewString(),
		Pipeline: pl.Name,
		Status:   StatusRunning,
	}
	// terminal statuses must reach the store even after cancellation
	pctx := context.WithoutCancel(ctx)

	if err := o.Store.CreateRun(pctx, &RunRecord{
		ID: run.ID, Pipeline: pl.Name, Status: StatusRunning, StartedAt: o.now().UTC(),
	}); err != nil {
		return nil, err
	}
	statuses := make(map[string]Status, len(pl.Stages))
	for _, st := range pl.Stages {
		statuses[st.Name] = StatusPending
		if err := o.Store.UpsertStage(pctx, &StageRecord{RunID: run.ID, Name: st.Name, Status: StatusPending}); err != nil {
			return nil, err
		}
	}

	logger := logging.Logger().With("run", run.ID, "pipeline", pl.Name)

	for i := range pl.Stages {
		st := &pl.Stages[i]

		if blocked(st, statuses) {
			statuses[st.Name] = StatusSkipped
			run.Stages = append(run.Stages, StageResult{Name: st.Name, Status: StatusSkipped})
			logger.Info("stage skipped", "stage", st.Name)
			if err := o.Store.UpsertStage(pctx, &StageRecord{RunID: run.ID, Name: st.Name, Status: StatusSkipped}); err != nil {
				return nil, err
			}
			continue
		}

		result := o.runStage(ctx, run.ID, st)
		statuses[st.Name] = result.Status
		run.Stages = append(run.Stages, result)
		logger.Info("stage finished", "stage", st.Name, "status", result.Status)
	}

	run.Status = StatusSucceeded
	var runErr string
	for _, sr := range run.Stages {
		if sr.Status == StatusFailed {
			run.Status = StatusFailed
			runErr = sr.Error
			break
		}
	}

	completed := o.now().UTC()
	if err := o.Store.UpdateRun(pctx, &RunRecord{
		ID: run.ID, Status: run.Status, CompletedAt: &completed, Error: runErr,
	}); err != nil {
		return nil, err
	}
	return run, nil
}

// blocked reports whether any dependency of the stage is not succeeded.
func blocked(st *Stage, statuses map[string]Status) bool {
	for _, need := range st.Needs {
		if statuses[need] != StatusSucceeded {
			return true
		}
	}
	return false
}

func (o *Orchestrator) runStage(ctx context.Context, runID string, st *Stage) StageResult {
	pctx := context.WithoutCancel(ctx)
	started := o.now().UTC()
	_ = o.Store.UpsertStage(pctx, &StageRecord{
		RunID: runID, Name: st.Name, Status: StatusRunning, StartedAt: &started,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.Workers)
	for i := range st.Jobs {
		job := &st.Jobs[i]
		g.Go(func() error {
			return o.runJob(gctx, runID, st, job)
		})
	}
	err := g.Wait()

	completed := o.now().UTC()
	rec := &StageRecord{
		RunID: runID, Name: st.Name, Status: StatusSucceeded,
		StartedAt: &started, CompletedAt: &completed,
	}
	result := StageResult{Name: st.Name, Status: StatusSucceeded}
	if err != nil {
		rec.Status = StatusFailed
		rec.Error = err.Error()
		result.Status = StatusFailed
		result.Error = err.Error()
	}
	_ = o.Store.UpsertStage(pctx, rec)
	return result
}

func (o *Orchestrator) runJob(ctx context.Context, runID string, st *Stage, job *Job) error {
	pctx := context.WithoutCancel(ctx)
	started := o.now().UTC()
	rec := &JobRecord{
		RunID: runID, Stage: st.Name, Name: job.Name,
		Status: StatusRunning, StartedAt: &started,
	}
	if err := o.Store.UpsertJob(pctx, rec); err != nil {
		return err
	}

	err := o.executeJob(ctx, runID, st, job, rec)

	completed := o.now().UTC()
	rec.CompletedAt = &completed
	rec.Status = StatusSucceeded
	if err != nil {
		rec.Status = StatusFailed
		rec.Error = err.Error()
	}
	if perr := o.Store.UpsertJob(pctx, rec); perr != nil && err == nil {
		err = perr
	}
	return err
}

func (o *Orchestrator) executeJob(ctx context.Context, runID string, st *Stage, job *Job, rec *JobRecord) error {
	env, err := o.resolveInputs(ctx, runID, job)
	if err != nil {
		return err
	}
	env["GROUNDWORK_RUN_ID"] = runID

	if job.Apply {
		if o.Apply == nil {
			return fmt.Errorf("job %s/%s: no apply function configured", st.Name, job.Name)
		}
		rec.Attempts = 1
		if err := o.withTimeout(ctx, job, func(jctx context.Context) error {
			return o.Apply(jctx)
		}); err != nil {
			return fmt.Errorf("job %s: %w", job.Name, err)
		}
	} else {
		attempts := job.Retries + 1
		var lastErr error
		for attempt := 1; attempt <= attempts; attempt++ {
			rec.Attempts = attempt
			lastErr = o.withTimeout(ctx, job, func(jctx context.Context) error {
				return o.Runner.RunJob(jctx, job, env)
			})
			if lastErr == nil {
				break
			}
			if ctx.Err() != nil {
				return lastErr
			}
			if attempt < attempts {
				logging.Logger().Warn("job failed, retrying",
					"job", job.Name, "attempt", attempt, "error", lastErr)
			}
		}
		if lastErr != nil {
			return lastErr
		}
	}

	return o.collectOutputs(ctx, runID, st, job)
}

func (o *Orchestrator) withTimeout(ctx context.Context, job *Job, fn func(context.Context) error) error {
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(job.Timeout))
		defer cancel()
	}
	return fn(ctx)
}

// resolveInputs maps each declared input artifact to its stored path,
// exported to the job as GROUNDWORK_INPUT_<NAME>.
func (o *Orchestrator) resolveInputs(ctx context.Context, runID string, job *Job) (map[string]string, error) {
	env := make(map[string]string, len(job.Inputs)+1)
	for _, name := range job.Inputs {
		a, err := o.Store.GetArtifact(ctx, runID, name)
		if err != nil {
			return nil, err
		}
		if a == nil {
			return nil, &MissingArtifactError{Artifact: name, Job: job.Name}
		}
		if a.ExpiresAt != nil && !o.now().Before(*a.ExpiresAt) {
			return nil, &MissingArtifactError{Artifact: name, Job: job.Name, Expired: true}
		}
		env["GROUNDWORK_INPUT_"+envKey(name)] = a.Path
	}
	return env, nil
}

func (o *Orchestrator) collectOutputs(ctx context.Context, runID string, st *Stage, job *Job) error {
	if len(job.Outputs) == 0 {
		return nil
	}

	store := &artifactStore{root: o.ArtifactsDir}
	for _, out := range job.Outputs {
		src := out.Path
		if !filepath.IsAbs(src) {
			src = filepath.Join(o.Dir, src)
		}
		stored, err := store.save(runID, out.Name, src)
		if err != nil {
			return fmt.Errorf("job %s: collecting artifact %q: %w", job.Name, out.Name, err)
		}

		now := o.now().UTC()
		rec := &ArtifactRecord{
			ID: uuid.NewString(), RunID: runID, Stage: st.Name, Job: job.Name,
			Name: out.Name, Path: stored, CreatedAt: now,
		}
		if st.ArtifactTTL > 0 {
			expires := now.Add(time.Duration(st.ArtifactTTL))
			rec.ExpiresAt = &expires
		}
		if err := o.Store.InsertArtifact(context.WithoutCancel(ctx), rec); err != nil {
			return err
		}
	}
	return nil
}

func envKey(name string) string {
	key := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, name)
	return strings.ToUpper(key)
}
