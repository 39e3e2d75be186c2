package cli

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/gangway/internal/config"
	"github.com/mmr-tortoise/gangway/internal/docker"
	"github.com/mmr-tortoise/gangway/internal/manifest"
	"github.com/mmr-tortoise/gangway/internal/model"
	"github.com/mmr-tortoise/gangway/internal/oci"
	"github.com/mmr-tortoise/gangway/internal/port"
)

type runFlags struct {
	image     string
	publish   int
	noPublish bool
	envFile   string
	attach    bool
	noCache   bool
	pull      bool
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run [dir]",
		Short: "Build (if needed) and start the server container",
		Long: `Run starts the bootstrap's server as a single foreground container.

Without --image the manifest is built first, exactly as gangway build
would. The container gets no restart policy: when the server exits, the
container exits, and that is meant to be seen, not papered over.

The server's bind port (command.port) is published to the host by
default, preferring a 1:1 mapping and falling back to the configured
scan range when the port is taken. The documented port (expose) is never
published — it is documentation, and when it differs from the bind port
the mismatch is reported as a warning here too.

With --attach, gangway streams the container's output and exits with
the server's own exit code.`,
		Args: maxArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadToolConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("no-cache") {
				flags.noCache = cfg.Build.NoCache
			}
			if !cmd.Flags().Changed("pull") {
				flags.pull = cfg.Build.Pull
			}
			return runRun(cmd.Context(), manifestDirArg(args), flags, cfg)
		},
	}

	cmd.Flags().StringVar(&flags.image, "image", "", "Run an existing gangway-built image instead of building")
	cmd.Flags().IntVar(&flags.publish, "publish", 0, "Host port to publish the server on (default: the bind port)")
	cmd.Flags().BoolVar(&flags.noPublish, "no-publish", false, "Do not publish the server port to the host")
	cmd.Flags().StringVar(&flags.envFile, "env-file", "", "Env file injected at run time (overrides baked-in values)")
	cmd.Flags().BoolVar(&flags.attach, "attach", false, "Stream server output and exit with the server's exit code")
	cmd.Flags().BoolVar(&flags.noCache, "no-cache", false, "Build without the daemon's layer cache")
	cmd.Flags().BoolVar(&flags.pull, "pull", false, "Always pull a newer version of the base image")

	return cmd
}

func runRun(ctx context.Context, dir string, flags *runFlags, cfg *config.Config) error {
	cli, err := newDockerClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()
	VerboseLog("Connected to Docker daemon")

	// Step 1: obtain the image to run — an explicit --image, or a fresh
	// build of the manifest.
	var outcome *buildOutcome
	if flags.image != "" {
		outcome, err = outcomeFromImage(ctx, cli, flags.image)
	} else {
		outcome, err = buildApp(ctx, cli, cfg, dir, buildRequest{noCache: flags.noCache, pull: flags.pull})
	}
	if err != nil {
		return err
	}

	// Step 2: one bootstrap, one container. A leftover container for the
	// app must be removed before a new one can exist.
	existing, err := docker.ListManagedContainers(ctx, cli, outcome.App)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		c := existing[0]
		return model.NewCLIError(model.ExitContainerFailed,
			fmt.Sprintf("app %q already has container %s (state %s); run `gangway remove %s` first",
				outcome.App, c.ContainerName, c.State, outcome.App))
	}

	// Step 3: resolve the host port. The bind port gets first shot at a
	// 1:1 mapping; ports claimed by other managed containers are off the
	// table even when nothing is listening on them right now.
	publish := !flags.noPublish
	hostPort := 0
	if publish {
		all, err := docker.ListManagedContainers(ctx, cli, "")
		if err != nil {
			return err
		}
		preferred := outcome.BindPort
		if flags.publish > 0 {
			preferred = flags.publish
		}

		scanner := port.NewScanner()
		hostPort, err = scanner.ResolveHostPortInRange(preferred, takenHostPorts(all), cfg.Publish.PortMin, cfg.Publish.PortMax)
		if err != nil {
			used := scanner.GetUsedPorts(preferred, preferred+8)
			return model.WrapCLIError(model.ExitGeneralError,
				fmt.Sprintf("cannot publish port %d (nearby ports in use: %v)", preferred, used), err)
		}
		VerboseLog("Publishing container port %d on host port %d", outcome.BindPort, hostPort)
	}

	// Step 4: runtime environment, layered over the image's baked env.
	env, err := runtimeEnv(flags.envFile)
	if err != nil {
		return err
	}

	// Step 5: create and start the container, carrying the image's label
	// set so list and verify can reconstruct the bootstrap from it.
	containerID, err := docker.RunContainer(ctx, cli, docker.RunOptions{
		Image:    outcome.ImageRef,
		Labels:   docker.BuildLabels(outcome.bootstrap()),
		Env:      env,
		BindPort: outcome.BindPort,
		HostPort: hostPort,
		Publish:  publish,
	})
	if err != nil {
		return err
	}
	VerboseLog("Started container %s", containerID)

	// Step 6: attach, or report and leave the server running.
	if flags.attach {
		return attachToContainer(ctx, cli, containerID)
	}

	printRunResult(outcome, containerID, hostPort, publish)
	return nil
}

// outcomeFromImage reconstructs a build outcome from the labels of an
// already-built image, so run --image goes through the same start path
// as a fresh build.
func outcomeFromImage(ctx context.Context, cli *docker.Client, ref string) (*buildOutcome, error) {
	img, err := oci.FromDaemon(ctx, cli, ref)
	if err != nil {
		return nil, err
	}
	labels, err := oci.Labels(img)
	if err != nil {
		return nil, err
	}

	b, err := docker.ParseLabels(labels)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitGeneralError,
			fmt.Sprintf("image %q was not built by gangway", ref), err)
	}

	outcome := &buildOutcome{
		App:            b.App,
		ImageRef:       ref,
		LatestRef:      docker.LatestRef(b.App),
		BaseImage:      b.BaseImage,
		ManifestDigest: b.ManifestDigest,
		DepsDigest:     b.DepsDigest,
		ContextDigest:  b.ContextDigest,
		Revision:       b.Revision,
		ExposePort:     b.ExposePort,
		BindPort:       b.BindPort,
		CreatedAt:      b.CreatedAt,
		Findings:       []model.Finding{},
	}

	// The image carries the manifest's ports verbatim, so the mismatch
	// warning survives into runs of prebuilt images too.
	if b.ExposePort != b.BindPort {
		outcome.Findings = append(outcome.Findings, model.Finding{
			Severity: model.SeverityWarning,
			Code:     manifest.CodePortMismatch,
			Field:    "expose",
			Message: fmt.Sprintf("image documents port %d but the server binds %d; EXPOSE is documentation only",
				b.ExposePort, b.BindPort),
		})
	}
	if !IsJSONOutput() {
		for _, f := range outcome.Findings {
			fmt.Fprintln(os.Stderr, f.String())
		}
	}

	return outcome, nil
}

// attachToContainer streams the container's output until the server
// exits, then propagates the server's exit code verbatim.
func attachToContainer(ctx context.Context, cli *docker.Client, containerID string) error {
	logDone := make(chan error, 1)
	go func() {
		logDone <- docker.StreamLogs(ctx, cli, containerID, os.Stdout, os.Stderr)
	}()

	exitCode, err := docker.WaitContainer(ctx, cli, containerID)
	if err != nil {
		return err
	}

	// Let the log stream drain before exiting so the tail of the
	// server's output is not cut off.
	if logErr := <-logDone; logErr != nil {
		VerboseLog("log stream ended: %v", logErr)
	}

	if exitCode != 0 {
		return model.NewCLIError(model.ExitCode(exitCode),
			fmt.Sprintf("server exited with code %d", exitCode))
	}
	return nil
}

// runtimeEnv reads an optional env file into sorted KEY=VALUE pairs.
func runtimeEnv(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	values, err := manifest.LoadEnvFile(path)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitGeneralError,
			fmt.Sprintf("failed to load env file %q", path), err)
	}

	env := make([]string, 0, len(values))
	for k, v := range values {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)
	return env, nil
}

// takenHostPorts collects the host ports already published by managed
// containers, running or not.
func takenHostPorts(containers []model.ContainerInfo) []int {
	var taken []int
	seen := make(map[int]bool)
	for _, c := range containers {
		for _, p := range c.Ports {
			if p.HostPort > 0 && !seen[p.HostPort] {
				seen[p.HostPort] = true
				taken = append(taken, p.HostPort)
			}
		}
	}
	sort.Ints(taken)
	return taken
}

func printRunResult(o *buildOutcome, containerID string, hostPort int, published bool) {
	if IsJSONOutput() {
		printRunResultJSON(o, containerID, hostPort, published)
	} else {
		printRunResultText(o, containerID, hostPort, published)
	}
}

func printRunResultJSON(o *buildOutcome, containerID string, hostPort int, published bool) {
	printJSON(struct {
		App           string          `json:"app"`
		ContainerID   string          `json:"containerId"`
		ContainerName string          `json:"containerName"`
		Image         string          `json:"image"`
		ExposePort    int             `json:"exposePort"`
		BindPort      int             `json:"bindPort"`
		HostPort      int             `json:"hostPort,omitempty"`
		Published     bool            `json:"published"`
		CreatedAt     time.Time       `json:"createdAt"`
		Findings      []model.Finding `json:"findings"`
	}{
		App:           o.App,
		ContainerID:   containerID,
		ContainerName: docker.ContainerName(o.App),
		Image:         o.ImageRef,
		ExposePort:    o.ExposePort,
		BindPort:      o.BindPort,
		HostPort:      hostPort,
		Published:     published,
		CreatedAt:     o.CreatedAt,
		Findings:      o.Findings,
	})
}

func printRunResultText(o *buildOutcome, containerID string, hostPort int, published bool) {
	fmt.Printf("Started bootstrap %q\n", o.App)
	fmt.Printf("  Container: %s (%s)\n", docker.ContainerName(o.App), shortDigest(containerID))
	fmt.Printf("  Image:     %s\n", o.ImageRef)
	fmt.Printf("  Server:    binding container port %d\n", o.BindPort)
	if published {
		fmt.Printf("  Published: http://localhost:%d\n", hostPort)
	} else {
		fmt.Printf("  Published: no (--no-publish)\n")
	}
	fmt.Printf("\nFollow output with `docker logs -f %s`, or rerun with --attach.\n", docker.ContainerName(o.App))
}
