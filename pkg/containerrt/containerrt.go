// Package containerrt implements the Container Runtime Adapter (spec §4.2,
// C2): it drives the Docker daemon to create, start, stop, remove, inspect
// and exec into the containers backing container-backed service instances.
package containerrt

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"

	"github.com/afterdarksys/mockfactory/pkg/serviceinstance"
)

// Client drives a single Docker daemon over its local unix socket. MockFactory
// runs one host per deployment (spec §1 scope), so unlike the teacher's
// multi-host agent manager there is no per-host client cache or SSH tunnel.
type Client struct {
	docker *client.Client
}

// New connects to the Docker daemon configured by the standard DOCKER_HOST
// environment (or the local unix socket if unset).
func New() (*Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	return &Client{docker: cli}, nil
}

// Ping verifies the daemon is reachable. The server's readiness check does
// not call it.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.docker.Ping(ctx)
	return err
}

// Close releases the underlying Docker client connection.
func (c *Client) Close() error {
	return c.docker.Close()
}

var _ serviceinstance.ContainerRuntime = (*Client)(nil)

// Create builds and creates (but does not start) a container publishing
// internalPort to hostPort on the loopback interface (spec §4.5 step 4).
func (c *Client) Create(ctx context.Context, image string, env map[string]string, command []string, internalPort, hostPort int, labels map[string]string) (string, error) {
	port := nat.Port(fmt.Sprintf("%d/tcp", internalPort))

	envList := make([]string, 0, len(env))
	for k, v := range env {
		envList = append(envList, fmt.Sprintf("%s=%s", k, v))
	}

	containerConfig := &container.Config{
		Image:        image,
		Env:          envList,
		Labels:       labels,
		ExposedPorts: nat.PortSet{port: struct{}{}},
	}
	if len(command) > 0 {
		containerConfig.Cmd = command
	}

	hostConfig := &container.HostConfig{
		PortBindings: nat.PortMap{
			port: []nat.PortBinding{{HostIP: "127.0.0.1", HostPort: fmt.Sprintf("%d", hostPort)}},
		},
		RestartPolicy: container.RestartPolicy{Name: container.RestartPolicyUnlessStopped},
		Mounts:        []mount.Mount{},
	}

	resp, err := c.docker.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("creating container: %w", err)
	}
	return resp.ID, nil
}

// Start starts a previously created (or previously stopped) container.
func (c *Client) Start(ctx context.Context, containerID string) error {
	if err := c.docker.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return fmt.Errorf("starting container %s: %w", containerID, err)
	}
	return nil
}

// Stop stops a container, giving it grace to shut down cleanly.
func (c *Client) Stop(ctx context.Context, containerID string, grace time.Duration) error {
	var timeout *int
	if grace > 0 {
		secs := int(grace.Seconds())
		timeout = &secs
	}
	if err := c.docker.ContainerStop(ctx, containerID, container.StopOptions{Timeout: timeout}); err != nil {
		return fmt.Errorf("stopping container %s: %w", containerID, err)
	}
	return nil
}

// Remove deletes a container, optionally forcing removal of a running one.
func (c *Client) Remove(ctx context.Context, containerID string, force bool) error {
	if err := c.docker.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: force}); err != nil {
		return fmt.Errorf("removing container %s: %w", containerID, err)
	}
	return nil
}

// Inspect reports whether a container is running and since when.
func (c *Client) Inspect(ctx context.Context, containerID string) (serviceinstance.ContainerState, error) {
	info, err := c.docker.ContainerInspect(ctx, containerID)
	if err != nil {
		return serviceinstance.ContainerState{}, fmt.Errorf("inspecting container %s: %w", containerID, err)
	}
	startedAt, _ := time.Parse(time.RFC3339Nano, info.State.StartedAt)
	return serviceinstance.ContainerState{
		Running:   info.State.Running,
		StartedAt: startedAt,
		ExitCode:  info.State.ExitCode,
	}, nil
}

// Exec runs argv inside the container and returns its stdout and stderr
// separately along with the exit code, used by the readiness probes for redis-cli ping / pg_isready (spec §4.5 step 5).
func (c *Client) Exec(ctx context.Context, containerID string, argv []string) (string, string, int, error) {
	execResp, err := c.docker.ContainerExecCreate(ctx, containerID, container.ExecOptions{
		Cmd:          argv,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return "", "", -1, fmt.Errorf("creating exec: %w", err)
	}

	attach, err := c.docker.ContainerExecAttach(ctx, execResp.ID, container.ExecStartOptions{})
	if err != nil {
		return "", "", -1, fmt.Errorf("attaching exec: %w", err)
	}
	defer attach.Close()

	// A non-TTY exec attach stream is frame-multiplexed (stdcopy's 8-byte
	// stream-type+length headers interleaving stdout/stderr); a plain
	// io.Copy would leave the framing bytes in stdout and drop stderr.
	var stdout, stderr bytes.Buffer
	_, _ = stdcopy.StdCopy(&stdout, &stderr, attach.Reader)

	inspect, err := c.docker.ContainerExecInspect(ctx, execResp.ID)
	if err != nil {
		return stdout.String(), stderr.String(), -1, fmt.Errorf("inspecting exec: %w", err)
	}
	return stdout.String(), stderr.String(), inspect.ExitCode, nil
}
