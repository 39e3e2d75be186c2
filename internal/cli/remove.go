package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/gangway/internal/docker"
	"github.com/mmr-tortoise/gangway/internal/model"
)

type removeFlags struct {
	force  bool
	images bool
}

// NewRemoveCommand creates the remove command.
func NewRemoveCommand() *cobra.Command {
	flags := &removeFlags{}

	cmd := &cobra.Command{
		Use:     "remove <app>",
		Aliases: []string{"rm"},
		Short:   "Remove a bootstrap's containers (and optionally its images)",
		Long: `Remove deletes the bootstrap's containers, running or not. The daemon
kills running ones first.

Images are kept by default so the bootstrap can be run again without a
rebuild; --images deletes them too, which removes the bootstrap from
gangway entirely.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemove(cmd.Context(), args[0], flags)
		},
	}

	cmd.Flags().BoolVarP(&flags.force, "force", "f", false, "Skip the confirmation prompt")
	cmd.Flags().BoolVar(&flags.images, "images", false, "Also remove the bootstrap's images")

	return cmd
}

func runRemove(ctx context.Context, app string, flags *removeFlags) error {
	cfg, err := loadToolConfig()
	if err != nil {
		return err
	}

	cli, err := newDockerClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()

	// Step 1: collect the bootstrap's containers and, with --images, its
	// images. A built-but-never-run bootstrap has images and no
	// containers, so either set may legitimately be empty.
	containers, err := docker.ListManagedContainers(ctx, cli, app)
	if err != nil {
		return err
	}

	var images []string
	if flags.images {
		summaries, err := docker.ListManagedImages(ctx, cli, app)
		if err != nil {
			return err
		}
		for _, s := range summaries {
			images = append(images, s.ID)
		}
	}

	if len(containers) == 0 && len(images) == 0 {
		return model.NewCLIError(model.ExitGeneralError,
			fmt.Sprintf("bootstrap %q not found (no containers or images; see `gangway list`)", app))
	}

	// Step 2: confirm before destroying anything.
	if !flags.force {
		if !promptConfirmation(app, len(containers), len(images)) {
			fmt.Println("Removal cancelled.")
			return model.NewCLIError(model.ExitGeneralError, "removal cancelled by user")
		}
	}

	// Step 3: containers first; an image still referenced by a container
	// will not remove cleanly.
	for _, c := range containers {
		VerboseLog("Removing container %s", c.ContainerName)
		if err := docker.RemoveContainer(ctx, cli, c.ContainerID, true); err != nil {
			return err
		}
	}

	// Step 4: then the images, when asked.
	imagesRemoved := 0
	for _, id := range images {
		VerboseLog("Removing image %s", shortDigest(id))
		if err := docker.RemoveImage(ctx, cli, id, true); err != nil {
			return err
		}
		imagesRemoved++
	}

	printRemoveResult(app, len(containers), imagesRemoved)
	return nil
}

// promptConfirmation asks the user to confirm removal. Returns true
// only on an explicit "y" or "yes".
func promptConfirmation(app string, containers, images int) bool {
	what := fmt.Sprintf("%d container(s)", containers)
	if images > 0 {
		what = fmt.Sprintf("%s and %d image(s)", what, images)
	}
	fmt.Printf("Remove %s of bootstrap %q? [y/N]: ", what, app)

	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
	return answer == "y" || answer == "yes"
}

func printRemoveResult(app string, containers, images int) {
	if IsJSONOutput() {
		printJSON(struct {
			App               string `json:"app"`
			ContainersRemoved int    `json:"containersRemoved"`
			ImagesRemoved     int    `json:"imagesRemoved"`
		}{App: app, ContainersRemoved: containers, ImagesRemoved: images})
		return
	}

	fmt.Printf("Removed bootstrap %q: %d container(s)", app, containers)
	if images > 0 {
		fmt.Printf(", %d image(s)", images)
	}
	fmt.Println(".")
}
