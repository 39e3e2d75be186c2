// container.go implements container lifecycle operations for gangway
// bootstraps: creating and starting the single server container, waiting
// on it, and listing, stopping, and removing managed containers.
//
// Every bootstrap runs exactly one foreground process in one container.
// The restart policy is always "no": when the server process exits the
// container exits with it, and that exit code is the observable outcome.
// All managed containers are identified by the "gangway.managed-by"
// label, which separates them from unrelated containers on the host.
package docker

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"

	"github.com/mmr-tortoise/gangway/internal/model"
)

// ContainerName returns the deterministic container name for an app.
// One bootstrap, one container: a second run of the same app collides on
// this name until the first container is removed.
func ContainerName(app string) string {
	return "gangway-" + app
}

// RunOptions configures one container run.
type RunOptions struct {
	// Image is the reference to run.
	Image string

	// Name is the container name; empty derives it from the app label.
	Name string

	// Labels carry the gangway.* schema onto the container so it is
	// reconstructable without inspecting the image.
	Labels map[string]string

	// Env holds KEY=VALUE pairs injected at run time (from --env-file),
	// layered over whatever the image baked in.
	Env []string

	// BindPort is the container port the server process binds — the
	// manifest's command.port, not its documented expose value.
	BindPort int

	// HostPort is the host port to publish BindPort to. Zero publishes
	// to the same number as BindPort.
	HostPort int

	// Publish controls whether the bind port is published to the host
	// at all.
	Publish bool
}

// RunContainer creates and starts the bootstrap's server container,
// returning the container ID. The restart policy is fixed to "no" — the
// bootstrap has no supervision, and a server exit is meant to be seen,
// not papered over by a restart loop.
//
// Only the bind port is published. Publishing the documented port would
// quietly repair the port-mismatch defect at run time; gangway publishes
// what the server binds and leaves the defect visible in the image.
func RunContainer(ctx context.Context, cli *Client, opts RunOptions) (string, error) {
	name := opts.Name
	if name == "" {
		name = ContainerName(opts.Labels[LabelApp])
	}

	config := &container.Config{
		Image:  opts.Image,
		Labels: opts.Labels,
		Env:    opts.Env,
	}
	hostConfig := &container.HostConfig{
		RestartPolicy: container.RestartPolicy{Name: container.RestartPolicyDisabled},
	}

	if opts.Publish && opts.BindPort > 0 {
		port, err := nat.NewPort("tcp", strconv.Itoa(opts.BindPort))
		if err != nil {
			return "", model.WrapCLIError(model.ExitContainerFailed,
				fmt.Sprintf("invalid bind port %d", opts.BindPort), err)
		}

		hostPort := opts.HostPort
		if hostPort == 0 {
			hostPort = opts.BindPort
		}

		config.ExposedPorts = nat.PortSet{port: struct{}{}}
		hostConfig.PortBindings = nat.PortMap{
			port: []nat.PortBinding{{
				HostIP:   "0.0.0.0",
				HostPort: strconv.Itoa(hostPort),
			}},
		}
	}

	created, err := cli.Inner().ContainerCreate(ctx, config, hostConfig, nil, nil, name)
	if err != nil {
		return "", model.WrapCLIError(
			model.ExitContainerFailed,
			fmt.Sprintf("failed to create container %q from image %q", name, opts.Image),
			err,
		)
	}

	if err := cli.Inner().ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return "", model.WrapCLIError(
			model.ExitContainerFailed,
			fmt.Sprintf("failed to start container %q", name),
			err,
		)
	}

	return created.ID, nil
}

// WaitContainer blocks until the container stops running and returns the
// exit code of its process. In attached runs this code becomes gangway's
// own exit code, verbatim — the container's exit is the server's exit.
func WaitContainer(ctx context.Context, cli *Client, containerID string) (int64, error) {
	statusCh, errCh := cli.Inner().ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		return -1, model.WrapCLIError(
			model.ExitContainerFailed,
			fmt.Sprintf("failed waiting for container %q", containerID),
			err,
		)
	case status := <-statusCh:
		if status.Error != nil {
			return -1, model.NewCLIError(
				model.ExitContainerFailed,
				fmt.Sprintf("container %q wait error: %s", containerID, status.Error.Message),
			)
		}
		return status.StatusCode, nil
	}
}

// StreamLogs follows the container's output, demultiplexing the daemon's
// combined stream onto stdout and stderr. It returns when the container
// stops or the context is cancelled.
func StreamLogs(ctx context.Context, cli *Client, containerID string, stdout, stderr io.Writer) error {
	rc, err := cli.Inner().ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		return model.WrapCLIError(
			model.ExitContainerFailed,
			fmt.Sprintf("failed to attach to container %q logs", containerID),
			err,
		)
	}
	defer func() { _ = rc.Close() }()

	// The daemon multiplexes both streams over one connection; StdCopy
	// splits them back apart.
	if _, err := stdcopy.StdCopy(stdout, stderr, rc); err != nil && ctx.Err() == nil {
		return model.WrapCLIError(model.ExitContainerFailed, "log stream interrupted", err)
	}
	return nil
}

// ListManagedContainers queries the daemon for all containers carrying
// the gangway management label, including stopped and exited ones,
// optionally narrowed to a single app. Exited containers matter: the
// bootstrap contract makes a server exit observable, so `gangway list`
// must show them.
func ListManagedContainers(ctx context.Context, cli *Client, app string) ([]model.ContainerInfo, error) {
	// Server-side label filtering is cheaper than listing everything and
	// filtering in Go.
	filterArgs := filters.NewArgs(
		filters.Arg("label", LabelManagedBy+"="+ManagedByValue),
	)
	if app != "" {
		filterArgs.Add("label", AppFilterLabel(app))
	}

	containers, err := cli.Inner().ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filterArgs,
	})
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitDockerUnavailable,
			"failed to list Docker containers",
			err,
		)
	}

	// Convert the SDK structs to domain ContainerInfo so the rest of the
	// tool never touches Docker API types.
	result := make([]model.ContainerInfo, 0, len(containers))
	for _, c := range containers {
		result = append(result, containerToInfo(c))
	}

	return result, nil
}

// containerToInfo converts a Docker API container struct to the domain
// model. This is a pure mapping function with no side effects.
func containerToInfo(c types.Container) model.ContainerInfo {
	// Docker returns names as a slice and each name has a leading "/"
	// that is an API artifact, not meaningful to users.
	name := ""
	if len(c.Names) > 0 {
		name = strings.TrimPrefix(c.Names[0], "/")
	}

	ports := make([]model.PortSpec, 0, len(c.Ports))
	for _, p := range c.Ports {
		ports = append(ports, model.PortSpec{
			ContainerPort: int(p.PrivatePort),
			HostPort:      int(p.PublicPort),
			Protocol:      p.Type,
		})
	}

	return model.ContainerInfo{
		ContainerID:   c.ID,
		ContainerName: name,
		App:           c.Labels[LabelApp],
		Image:         c.Image,
		State:         c.State,
		Status:        c.Status,
		Labels:        c.Labels,
		Ports:         ports,
	}
}

// GroupContainersByApp groups containers by their app label. Containers
// without the label are skipped — they cannot be attributed to any
// bootstrap, and ListManagedContainers should never produce them.
func GroupContainersByApp(containers []model.ContainerInfo) map[string][]model.ContainerInfo {
	groups := make(map[string][]model.ContainerInfo)

	for _, c := range containers {
		app, ok := c.Labels[LabelApp]
		if !ok || app == "" {
			continue
		}
		groups[app] = append(groups[app], c)
	}

	return groups
}

// BuildBootstrap constructs a Bootstrap domain object from the containers
// of one app. Label parsing uses the first container — all containers of
// an app carry identical gangway labels.
//
// The aggregate status is derived from container states:
//  1. any container running → running
//  2. otherwise any exited  → exited (the server process has ended)
//  3. otherwise             → stopped
func BuildBootstrap(app string, containers []model.ContainerInfo) (*model.Bootstrap, error) {
	if len(containers) == 0 {
		return nil, fmt.Errorf("cannot build bootstrap %q: no containers provided", app)
	}

	b, err := ParseLabels(containers[0].Labels)
	if err != nil {
		return nil, fmt.Errorf("failed to parse labels for bootstrap %q: %w", app, err)
	}

	b.Containers = containers
	b.Status = determineStatus(containers)

	return b, nil
}

// determineStatus reduces container states to one bootstrap status.
func determineStatus(containers []model.ContainerInfo) model.BootstrapStatus {
	anyExited := false
	for _, c := range containers {
		switch c.State {
		case "running":
			return model.StatusRunning
		case "exited", "dead":
			anyExited = true
		}
	}
	if anyExited {
		return model.StatusExited
	}
	return model.StatusStopped
}

// ContainerPortBindings returns the container's actual port mappings from
// inspect, sorted by container port. Inspect is authoritative where the
// list endpoint's port column can lag for containers in transition, so
// verify reads bindings from here before asserting on them.
func ContainerPortBindings(ctx context.Context, cli *Client, containerID string) ([]model.PortSpec, error) {
	inspect, err := cli.Inner().ContainerInspect(ctx, containerID)
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitContainerFailed,
			fmt.Sprintf("failed to inspect container %q", containerID),
			err,
		)
	}
	if inspect.NetworkSettings == nil {
		return nil, nil
	}

	ports := make([]model.PortSpec, 0, len(inspect.NetworkSettings.Ports))
	for port, bindings := range inspect.NetworkSettings.Ports {
		spec := model.PortSpec{
			ContainerPort: port.Int(),
			Protocol:      port.Proto(),
		}
		for _, binding := range bindings {
			hostPort, err := strconv.Atoi(binding.HostPort)
			if err != nil || hostPort == 0 {
				continue
			}
			spec.HostPort = hostPort
			break
		}
		ports = append(ports, spec)
	}

	sort.Slice(ports, func(i, j int) bool {
		return ports[i].ContainerPort < ports[j].ContainerPort
	})
	return ports, nil
}

// StopContainer stops a running container by its ID. The daemon sends
// SIGTERM and escalates to SIGKILL after its default timeout, giving the
// server a chance to shut down gracefully.
func StopContainer(ctx context.Context, cli *Client, containerID string) error {
	err := cli.Inner().ContainerStop(ctx, containerID, container.StopOptions{})
	if err != nil {
		return model.WrapCLIError(
			model.ExitContainerFailed,
			fmt.Sprintf("failed to stop container %q", containerID),
			err,
		)
	}
	return nil
}

// RemoveContainer removes a container by its ID. The container must be
// stopped first unless force is true, in which case the daemon kills it
// before removal.
func RemoveContainer(ctx context.Context, cli *Client, containerID string, force bool) error {
	err := cli.Inner().ContainerRemove(ctx, containerID, container.RemoveOptions{
		Force: force,
	})
	if err != nil {
		return model.WrapCLIError(
			model.ExitContainerFailed,
			fmt.Sprintf("failed to remove container %q", containerID),
			err,
		)
	}
	return nil
}
