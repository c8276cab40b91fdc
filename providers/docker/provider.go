// Package docker implements the provider for the local Docker daemon:
// images, containers, networks and volumes. Driving a local daemon through
// its published client keeps the engine testable without any cloud account.
package docker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/go-connections/nat"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/groundwork-io/groundwork/internal/logging"
	"github.com/groundwork-io/groundwork/internal/provider"
)

type Provider struct {
	client *client.Client
}

func New() *Provider {
	return &Provider{}
}

func (p *Provider) ensureClient() error {
	if p.client != nil {
		return nil
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return fmt.Errorf("creating docker client: %w", err)
	}
	p.client = cli
	return nil
}

func (p *Provider) Create(ctx context.Context, req *provider.CreateRequest) (*provider.CreateResponse, error) {
	if err := p.ensureClient(); err != nil {
		return nil, err
	}

	switch req.Type {
	case "docker_image":
		return p.createImage(ctx, req)
	case "docker_container":
		return p.createContainer(ctx, req)
	case "docker_network":
		return p.createNetwork(ctx, req)
	case "docker_volume":
		return p.createVolume(ctx, req)
	}
	return nil, fmt.Errorf("unknown resource type: %s", req.Type)
}

func (p *Provider) Read(ctx context.Context, req *provider.ReadRequest) (*provider.ReadResponse, error) {
	if err := p.ensureClient(); err != nil {
		return nil, err
	}

	switch req.Type {
	case "docker_image":
		inspect, _, err := p.client.ImageInspectWithRaw(ctx, req.ID)
		if err != nil {
			if client.IsErrNotFound(err) {
				return &provider.ReadResponse{Exists: false}, nil
			}
			return nil, fmt.Errorf("inspecting image: %w", err)
		}
		return &provider.ReadResponse{Exists: true, Outputs: map[string]any{"id": inspect.ID}}, nil

	case "docker_container":
		inspect, err := p.client.ContainerInspect(ctx, req.ID)
		if err != nil {
			if client.IsErrNotFound(err) {
				return &provider.ReadResponse{Exists: false}, nil
			}
			return nil, fmt.Errorf("inspecting container: %w", err)
		}
		return &provider.ReadResponse{Exists: true, Outputs: map[string]any{
			"id":    inspect.ID,
			"name":  strings.TrimPrefix(inspect.Name, "/"),
			"image": inspect.Config.Image,
		}}, nil

	case "docker_network":
		inspect, err := p.client.NetworkInspect(ctx, req.ID, network.InspectOptions{})
		if err != nil {
			if client.IsErrNotFound(err) {
				return &provider.ReadResponse{Exists: false}, nil
			}
			return nil, fmt.Errorf("inspecting network: %w", err)
		}
		return &provider.ReadResponse{Exists: true, Outputs: map[string]any{"id": inspect.ID, "name": inspect.Name}}, nil

	case "docker_volume":
		inspect, err := p.client.VolumeInspect(ctx, req.ID)
		if err != nil {
			if client.IsErrNotFound(err) {
				return &provider.ReadResponse{Exists: false}, nil
			}
			return nil, fmt.Errorf("inspecting volume: %w", err)
		}
		return &provider.ReadResponse{Exists: true, Outputs: map[string]any{"name": inspect.Name, "driver": inspect.Driver}}, nil
	}
	return nil, fmt.Errorf("unknown resource type: %s", req.Type)
}

// Update recreates the object with the new attributes. The daemon has no
// in-place update for images or containers, so update is remove-and-create;
// the new remote id is surfaced through the outputs.
func (p *Provider) Update(ctx context.Context, req *provider.UpdateRequest) (*provider.UpdateResponse, error) {
	if err := p.ensureClient(); err != nil {
		return nil, err
	}

	if err := p.Delete(ctx, &provider.DeleteRequest{Type: req.Type, ID: req.ID}); err != nil {
		return nil, err
	}
	resp, err := p.Create(ctx, &provider.CreateRequest{Type: req.Type, Name: req.Name, Attributes: req.Attributes})
	if err != nil {
		return nil, err
	}
	return &provider.UpdateResponse{Outputs: resp.Outputs}, nil
}

func (p *Provider) Delete(ctx context.Context, req *provider.DeleteRequest) error {
	if err := p.ensureClient(); err != nil {
		return err
	}
	if req.ID == "" {
		return nil
	}

	switch req.Type {
	case "docker_image":
		if _, err := p.client.ImageRemove(ctx, req.ID, image.RemoveOptions{Force: true}); err != nil {
			if !client.IsErrNotFound(err) {
				return fmt.Errorf("removing image: %w", err)
			}
		}
		return nil

	case "docker_container":
		timeout := 10 // seconds
		_ = p.client.ContainerStop(ctx, req.ID, container.StopOptions{Timeout: &timeout})
		if err := p.client.ContainerRemove(ctx, req.ID, container.RemoveOptions{Force: true}); err != nil {
			if !client.IsErrNotFound(err) {
				return fmt.Errorf("removing container: %w", err)
			}
		}
		return nil

	case "docker_network":
		if err := p.client.NetworkRemove(ctx, req.ID); err != nil {
			if !client.IsErrNotFound(err) {
				return fmt.Errorf("removing network: %w", err)
			}
		}
		return nil

	case "docker_volume":
		if err := p.client.VolumeRemove(ctx, req.ID, true); err != nil {
			if !client.IsErrNotFound(err) {
				return fmt.Errorf("removing volume: %w", err)
			}
		}
		return nil
	}
	return fmt.Errorf("unknown resource type: %s", req.Type)
}

func (p *Provider) createImage(ctx context.Context, req *provider.CreateRequest) (*provider.CreateResponse, error) {
	var cfg imageConfig
	if err := decodeAttrs(req.Attributes, &cfg); err != nil {
		return nil, err
	}
	if cfg.Name == "" {
		cfg.Name = req.Name
	}

	out := logging.NewWriter(logging.Logger(), "image", cfg.Name)

	if cfg.BuildContext != "" {
		tar, err := archive.TarWithOptions(cfg.BuildContext, &archive.TarOptions{})
		if err != nil {
			return nil, fmt.Errorf("creating build context tar: %w", err)
		}
		resp, err := p.client.ImageBuild(ctx, tar, types.ImageBuildOptions{
			Tags:       []string{cfg.Name},
			Dockerfile: cfg.Dockerfile,
			Remove:     true,
		})
		if err != nil {
			return nil, fmt.Errorf("building image: %w", err)
		}
		defer resp.Body.Close()
		io.Copy(out, resp.Body) // drain so the build isn't blocked
	} else {
		reader, err := p.client.ImagePull(ctx, cfg.Name, image.PullOptions{})
		if err != nil {
			return nil, fmt.Errorf("pulling image: %w", err)
		}
		io.Copy(out, reader)
		reader.Close()
	}

	inspect, _, err := p.client.ImageInspectWithRaw(ctx, cfg.Name)
	if err != nil {
		return nil, fmt.Errorf("inspecting built image: %w", err)
	}

	return &provider.CreateResponse{
		ID:      inspect.ID,
		Outputs: map[string]any{"id": inspect.ID, "name": cfg.Name},
	}, nil
}

func (p *Provider) createContainer(ctx context.Context, req *provider.CreateRequest) (*provider.CreateResponse, error) {
	var cfg containerConfig
	if err := decodeAttrs(req.Attributes, &cfg); err != nil {
		return nil, err
	}
	if cfg.Name == "" {
		cfg.Name = req.Name
	}

	out := logging.NewWriter(logging.Logger(), "container", cfg.Name)
	reader, err := p.client.ImagePull(ctx, cfg.Image, image.PullOptions{})
	if err != nil {
		return nil, fmt.Errorf("pulling image %s: %w", cfg.Image, err)
	}
	io.Copy(out, reader)
	reader.Close()

	portBindings := nat.PortMap{}
	for hostPort, containerPort := range cfg.Ports {
		cp := nat.Port(fmt.Sprintf("%d/tcp", containerPort))
		portBindings[cp] = []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: hostPort}}
	}

	var binds []string
	for _, v := range cfg.Volumes {
		parts := strings.SplitN(v, ":", 2)
		if len(parts) > 0 && (strings.HasPrefix(parts[0], "./") || strings.HasPrefix(parts[0], "../")) {
			if abs, err := filepath.Abs(parts[0]); err == nil {
				parts[0] = abs
				binds = append(binds, strings.Join(parts, ":"))
				continue
			}
		}
		binds = append(binds, v)
	}

	hostConfig := &container.HostConfig{
		PortBindings: portBindings,
		Binds:        binds,
	}
	if len(cfg.Networks) > 0 {
		hostConfig.NetworkMode = container.NetworkMode(cfg.Networks[0])
	}
	if cfg.Restart != "" {
		hostConfig.RestartPolicy = container.RestartPolicy{Name: container.RestartPolicyMode(cfg.Restart)}
	}

	config := &container.Config{
		Image:      cfg.Image,
		Cmd:        cfg.Command,
		Env:        mapToEnvList(cfg.Env),
		Labels:     cfg.Labels,
		WorkingDir: cfg.WorkingDir,
		User:       cfg.User,
	}
	if cfg.Healthcheck != nil {
		test := cfg.Healthcheck.Test
		if len(test) == 0 {
			test = []string{"NONE"}
		}
		interval, _ := time.ParseDuration(cfg.Healthcheck.Interval)
		timeout, _ := time.ParseDuration(cfg.Healthcheck.Timeout)
		startPeriod, _ := time.ParseDuration(cfg.Healthcheck.StartPeriod)
		config.Healthcheck = &container.HealthConfig{
			Test:        test,
			Interval:    interval,
			Timeout:     timeout,
			StartPeriod: startPeriod,
			Retries:     cfg.Healthcheck.Retries,
		}
	}

	resp, err := p.client.ContainerCreate(ctx, config, hostConfig, &network.NetworkingConfig{}, &v1.Platform{}, cfg.Name)
	if err != nil {
		return nil, fmt.Errorf("creating container: %w", err)
	}
	if err := p.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("starting container: %w", err)
	}

	return &provider.CreateResponse{
		ID:      resp.ID,
		Outputs: map[string]any{"id": resp.ID, "name": cfg.Name, "image": cfg.Image},
	}, nil
}

func (p *Provider) createNetwork(ctx context.Context, req *provider.CreateRequest) (*provider.CreateResponse, error) {
	var cfg networkConfig
	if err := decodeAttrs(req.Attributes, &cfg); err != nil {
		return nil, err
	}
	if cfg.Name == "" {
		cfg.Name = req.Name
	}

	resp, err := p.client.NetworkCreate(ctx, cfg.Name, types.NetworkCreate{
		Driver:   cfg.Driver,
		Internal: cfg.Internal,
		Labels:   cfg.Labels,
	})
	if err != nil {
		return nil, fmt.Errorf("creating network: %w", err)
	}
	return &provider.CreateResponse{
		ID:      resp.ID,
		Outputs: map[string]any{"id": resp.ID, "name": cfg.Name, "driver": cfg.Driver},
	}, nil
}

func (p *Provider) createVolume(ctx context.Context, req *provider.CreateRequest) (*provider.CreateResponse, error) {
	var cfg volumeConfig
	if err := decodeAttrs(req.Attributes, &cfg); err != nil {
		return nil, err
	}
	if cfg.Name == "" {
		cfg.Name = req.Name
	}

	vol, err := p.client.VolumeCreate(ctx, volume.CreateOptions{Name: cfg.Name, Driver: cfg.Driver})
	if err != nil {
		return nil, fmt.Errorf("creating volume: %w", err)
	}
	return &provider.CreateResponse{
		ID:      vol.Name,
		Outputs: map[string]any{"name": vol.Name, "driver": vol.Driver},
	}, nil
}

// decodeAttrs maps the generic attribute map onto a typed config through a
// JSON round-trip.
func decodeAttrs(attrs map[string]any, dst any) error {
	data, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("encoding attributes: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decoding attributes: %w", err)
	}
	return nil
}

func mapToEnvList(m map[string]string) []string {
	var env []string
	for k, v := range m {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return env
}

type containerConfig struct {
	Image       string             `json:"image"`
	Name        string             `json:"name"`
	Command     []string           `json:"command"`
	Ports       map[string]int     `json:"ports"`
	Env         map[string]string  `json:"env"`
	Networks    []string           `json:"networks"`
	Volumes     []string           `json:"volumes"`
	Labels      map[string]string  `json:"labels"`
	WorkingDir  string             `json:"workingDir"`
	User        string             `json:"user"`
	Restart     string             `json:"restart"`
	Healthcheck *healthcheckConfig `json:"healthcheck"`
}

type healthcheckConfig struct {
	Test        []string `json:"test"`
	Interval    string   `json:"interval"`
	Timeout     string   `json:"timeout"`
	StartPeriod string   `json:"startPeriod"`
	Retries     int      `json:"retries"`
}

type networkConfig struct {
	Name     string            `json:"name"`
	Driver   string            `json:"driver"`
	Internal bool              `json:"internal"`
	Labels   map[string]string `json:"labels"`
}

type volumeConfig struct {
	Name   string `json:"name"`
	Driver string `json:"driver"`
}

type imageConfig struct {
	Name         string `json:"name"`
	BuildContext string `json:"buildContext"`
	Dockerfile   string `json:"dockerfile"`
}
