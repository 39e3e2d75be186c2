package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/gangway/internal/docker"
	"github.com/mmr-tortoise/gangway/internal/model"
)

// NewStopCommand creates the stop command.
func NewStopCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop <app>",
		Short: "Stop a bootstrap's running container",
		Long: `Stop sends the server container a SIGTERM through the Docker daemon,
escalating to SIGKILL after the daemon's grace period.

The container is kept, so list still shows the bootstrap and run can be
used again after remove. Stopping an already-stopped bootstrap is not an
error.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStop(cmd.Context(), args[0])
		},
	}

	return cmd
}

func runStop(ctx context.Context, app string) error {
	cfg, err := loadToolConfig()
	if err != nil {
		return err
	}

	cli, err := newDockerClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()

	// Step 1: find the bootstrap by its app label.
	b, err := findBootstrap(ctx, cli, app)
	if err != nil {
		return err
	}

	// Step 2: stop whatever is still running.
	stopped := 0
	for _, c := range b.Containers {
		if c.State != "running" {
			VerboseLog("Container %s is %s; nothing to stop", c.ContainerName, c.State)
			continue
		}
		VerboseLog("Stopping container %s", c.ContainerName)
		if err := docker.StopContainer(ctx, cli, c.ContainerID); err != nil {
			return err
		}
		stopped++
	}

	printStopResult(app, stopped)
	return nil
}

// findBootstrap reconstructs a bootstrap from the containers carrying
// its app label. Shared by stop and compose.
func findBootstrap(ctx context.Context, cli *docker.Client, app string) (*model.Bootstrap, error) {
	containers, err := docker.ListManagedContainers(ctx, cli, app)
	if err != nil {
		return nil, err
	}
	if len(containers) == 0 {
		return nil, model.NewCLIError(model.ExitGeneralError,
			fmt.Sprintf("bootstrap %q not found (no managed containers; see `gangway list`)", app))
	}

	b, err := docker.BuildBootstrap(app, containers)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitGeneralError,
			fmt.Sprintf("failed to reconstruct bootstrap %q", app), err)
	}
	return b, nil
}

func printStopResult(app string, stopped int) {
	if IsJSONOutput() {
		printJSON(struct {
			App     string `json:"app"`
			Stopped int    `json:"stopped"`
		}{App: app, Stopped: stopped})
		return
	}

	if stopped == 0 {
		fmt.Printf("Bootstrap %q has no running containers.\n", app)
		return
	}
	fmt.Printf("Stopped bootstrap %q (%d container(s)).\n", app, stopped)
}
