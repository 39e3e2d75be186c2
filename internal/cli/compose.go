package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/gangway/internal/compose"
	"github.com/mmr-tortoise/gangway/internal/config"
	"github.com/mmr-tortoise/gangway/internal/docker"
	"github.com/mmr-tortoise/gangway/internal/model"
)

type composeFlags struct {
	output  string
	envFile string
}

// NewComposeCommand creates the compose command.
func NewComposeCommand() *cobra.Command {
	flags := &composeFlags{}

	cmd := &cobra.Command{
		Use:   "compose <app>",
		Short: "Generate a docker-compose file for a bootstrap",
		Long: `Compose writes a docker-compose service definition equivalent to what
gangway run starts: same image, same labels, same single published port,
and restart policy "no" — compose must not add the supervision the
bootstrap deliberately lacks.

The generated file is a handoff artifact for environments that deploy
with compose rather than gangway itself.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadToolConfig()
			if err != nil {
				return err
			}
			return runCompose(cmd.Context(), args[0], flags, cfg)
		},
	}

	cmd.Flags().StringVarP(&flags.output, "output", "o", "docker-compose.yaml", "Path to write the compose file to")
	cmd.Flags().StringVar(&flags.envFile, "env-file", "", "Env file the compose service should load at run time")

	return cmd
}

func runCompose(ctx context.Context, app string, flags *composeFlags, cfg *config.Config) error {
	cli, err := newDockerClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()

	// Step 1: reconstruct the bootstrap from its containers.
	b, err := findBootstrap(ctx, cli, app)
	if err != nil {
		return err
	}

	// Step 2: pick the image reference the service runs.
	image := composeImageRef(b)
	VerboseLog("Compose service image: %s", image)

	// Step 3: render and write.
	spec := compose.FromBootstrap(b, image, flags.envFile)
	data, err := compose.Generate(spec)
	if err != nil {
		return err
	}
	if err := compose.WriteFile(flags.output, data); err != nil {
		return err
	}

	printComposeResult(app, flags.output, image)
	return nil
}

// composeImageRef picks the image the compose service should reference:
// the image the bootstrap's container actually runs, falling back to
// the app's latest tag.
func composeImageRef(b *model.Bootstrap) string {
	for _, c := range b.Containers {
		if c.Image != "" {
			return c.Image
		}
	}
	return docker.LatestRef(b.App)
}

func printComposeResult(app, path, image string) {
	if IsJSONOutput() {
		printJSON(struct {
			App   string `json:"app"`
			Path  string `json:"path"`
			Image string `json:"image"`
		}{App: app, Path: path, Image: image})
		return
	}

	fmt.Printf("Wrote compose file for %q to %s\n", app, path)
	fmt.Printf("  Image: %s\n", image)
	fmt.Printf("\nStart it with `docker compose -f %s up`.\n", path)
}
