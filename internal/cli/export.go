package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/docker/docker/api/types/image"
	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/gangway/internal/config"
	"github.com/mmr-tortoise/gangway/internal/docker"
	"github.com/mmr-tortoise/gangway/internal/model"
	"github.com/mmr-tortoise/gangway/internal/oci"
)

type exportFlags struct {
	output    string
	canonical bool
	push      string
}

// NewExportCommand creates the export command.
func NewExportCommand() *cobra.Command {
	flags := &exportFlags{}

	cmd := &cobra.Command{
		Use:   "export <app>",
		Short: "Export the bootstrap's image as a tarball or push it",
		Long: `Export writes the app's latest built image to a tarball loadable with
"docker load", or pushes it to a registry with --push.

With --canonical the tarball's timestamps and build metadata are
normalized, so exporting the same image twice yields byte-identical
archives. Pushes ignore --canonical: registries address content by
digest already.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadToolConfig()
			if err != nil {
				return err
			}
			return runExport(cmd.Context(), args[0], flags, cfg)
		},
	}

	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "Tarball path (default: <app>.tar)")
	cmd.Flags().BoolVar(&flags.canonical, "canonical", false, "Normalize the tarball for byte-identical re-exports")
	cmd.Flags().StringVar(&flags.push, "push", "", "Push to this registry reference instead of writing a tarball")

	return cmd
}

func runExport(ctx context.Context, app string, flags *exportFlags, cfg *config.Config) error {
	cli, err := newDockerClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()

	// Step 1: the app must have a built image.
	images, err := docker.ListManagedImages(ctx, cli, app)
	if err != nil {
		return err
	}
	if len(images) == 0 {
		return model.NewCLIError(model.ExitGeneralError,
			fmt.Sprintf("no built image for %q; run `gangway build` first", app))
	}

	// Step 2: read the newest image out of the daemon.
	ref := docker.LatestRef(app)
	img, err := oci.FromDaemon(ctx, cli, ref)
	if err != nil {
		return err
	}

	// Step 3: push or save.
	if flags.push != "" {
		if err := oci.Push(ctx, img, flags.push); err != nil {
			return err
		}
		printExportResult(app, flags.push, true)
		return nil
	}

	output := flags.output
	if output == "" {
		output = defaultExportPath(app)
	}
	if err := oci.Save(img, exportRefs(images[0], app), output, flags.canonical); err != nil {
		return err
	}
	printExportResult(app, output, false)
	return nil
}

// defaultExportPath names the tarball after the app.
func defaultExportPath(app string) string {
	return app + ".tar"
}

// exportRefs picks the references the tarball is tagged with: the
// image's own gangway tags, falling back to the latest ref when the
// summary carries none.
func exportRefs(summary image.Summary, app string) []string {
	prefix := docker.ImageRepoPrefix + app + ":"
	var refs []string
	for _, tag := range summary.RepoTags {
		if strings.HasPrefix(tag, prefix) {
			refs = append(refs, tag)
		}
	}
	if len(refs) == 0 {
		refs = []string{docker.LatestRef(app)}
	}
	return refs
}

func printExportResult(app, dest string, pushed bool) {
	if IsJSONOutput() {
		printJSON(struct {
			App    string `json:"app"`
			Dest   string `json:"dest"`
			Pushed bool   `json:"pushed"`
		}{App: app, Dest: dest, Pushed: pushed})
		return
	}

	if pushed {
		fmt.Printf("Pushed image of bootstrap %q to %s\n", app, dest)
		return
	}
	fmt.Printf("Exported bootstrap %q to %s\n", app, dest)
	fmt.Printf("\nLoad it elsewhere with `docker load -i %s`.\n", dest)
}
