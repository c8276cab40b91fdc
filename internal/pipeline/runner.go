package pipeline

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/groundwork-io/groundwork/internal/logging"
)

// JobRunner executes one job's script. env carries resolved input artifact
// paths and run metadata.
type JobRunner interface {
	RunJob(ctx context.Context, job *Job, env map[string]string) error
}

// NewRunner returns the default runner: host shell for plain jobs, a
// throwaway container for jobs that declare an image.
func NewRunner(dir string) JobRunner {
	return &dispatchRunner{
		shell:     &ExecRunner{Dir: dir},
		container: &DockerRunner{Dir: dir},
	}
}

type dispatchRunner struct {
	shell     *ExecRunner
	container *DockerRunner
}

func (r *dispatchRunner) RunJob(ctx context.Context, job *Job, env map[string]string) error {
	if job.Image != "" {
		return r.container.RunJob(ctx, job, env)
	}
	return r.shell.RunJob(ctx, job, env)
}

// ExecRunner runs job scripts with the host shell.
type ExecRunner struct {
	Dir string
}

func (r *ExecRunner) RunJob(ctx context.Context, job *Job, env map[string]string) error {
	script := strings.Join(job.Run, "\n")
	cmd := exec.CommandContext(ctx, "sh", "-c", script)
	cmd.Dir = r.Dir
	cmd.Env = append(cmd.Environ(), envList(env)...)

	out := logging.NewWriter(logging.Logger(), "job", job.Name)
	cmd.Stdout = out
	cmd.Stderr = out

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("job %s: %w", job.Name, err)
	}
	return nil
}

// DockerRunner runs job scripts inside a one-shot container with the working
// directory bind-mounted at /work.
type DockerRunner struct {
	Dir    string
	client *client.Client
}

func (r *DockerRunner) ensureClient() error {
	if r.client != nil {
		return nil
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return fmt.Errorf("creating docker client: %w", err)
	}
	r.client = cli
	return nil
}

func (r *DockerRunner) RunJob(ctx context.Context, job *Job, env map[string]string) error {
	if err := r.ensureClient(); err != nil {
		return err
	}

	out := logging.NewWriter(logging.Logger(), "job", job.Name)

	reader, err := r.client.ImagePull(ctx, job.Image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pulling image %s: %w", job.Image, err)
	}
	io.Copy(out, reader)
	reader.Close()

	script := strings.Join(job.Run, "\n")
	resp, err := r.client.ContainerCreate(ctx,
		&container.Config{
			Image:      job.Image,
			Cmd:        []string{"sh", "-c", script},
			Env:        envList(env),
			WorkingDir: "/work",
		},
		&container.HostConfig{
			Binds:      []string{r.Dir + ":/work"},
			AutoRemove: false,
		},
		&network.NetworkingConfig{}, &v1.Platform{}, "")
	if err != nil {
		return fmt.Errorf("creating job container: %w", err)
	}
	defer r.client.ContainerRemove(context.WithoutCancel(ctx), resp.ID, container.RemoveOptions{Force: true})

	if err := r.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return fmt.Errorf("starting job container: %w", err)
	}

	statusCh, errCh := r.client.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		return fmt.Errorf("waiting for job container: %w", err)
	case status := <-statusCh:
		logs, err := r.client.ContainerLogs(ctx, resp.ID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
		if err == nil {
			stdcopy.StdCopy(out, out, logs)
			logs.Close()
		}
		if status.StatusCode != 0 {
			return fmt.Errorf("job %s: exit status %d", job.Name, status.StatusCode)
		}
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func envList(env map[string]string) []string {
	var list []string
	for k, v := range env {
		list = append(list, fmt.Sprintf("%s=%s", k, v))
	}
	return list
}
