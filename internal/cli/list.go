package cli

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/gangway/internal/docker"
	"github.com/mmr-tortoise/gangway/internal/model"
)

type listFlags struct {
	status string
}

// NewListCommand creates the list command.
func NewListCommand() *cobra.Command {
	flags := &listFlags{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List gangway-managed bootstraps",
		Long: `List shows every bootstrap gangway knows about, reconstructed entirely
from Docker labels — there is no state file.

Bootstraps with a container show its lifecycle state (running, exited,
stopped); bootstraps that were built but never run show as "built".
Exited entries are deliberate: a server that stopped is something to
see, not something to hide.`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd.Context(), flags)
		},
	}

	cmd.Flags().StringVar(&flags.status, "status", "all", "Filter by status (built, running, stopped, exited, all)")

	return cmd
}

func runList(ctx context.Context, flags *listFlags) error {
	// Step 1: validate the status filter before touching the daemon.
	var filter model.BootstrapStatus
	if flags.status != "all" {
		parsed, err := model.ParseBootstrapStatus(flags.status)
		if err != nil {
			return model.WrapCLIError(model.ExitUsageError, "invalid --status value", err)
		}
		filter = parsed
	}

	cfg, err := loadToolConfig()
	if err != nil {
		return err
	}

	cli, err := newDockerClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()

	// Step 2: reconstruct bootstraps from container labels.
	containers, err := docker.ListManagedContainers(ctx, cli, "")
	if err != nil {
		return err
	}
	VerboseLog("Found %d managed container(s)", len(containers))

	grouped := docker.GroupContainersByApp(containers)
	bootstraps := make([]*model.Bootstrap, 0, len(grouped))
	for app, group := range grouped {
		b, err := docker.BuildBootstrap(app, group)
		if err != nil {
			VerboseLog("Skipping %q: %v", app, err)
			continue
		}
		bootstraps = append(bootstraps, b)
	}

	// Step 3: images without a container are bootstraps too — built but
	// never run. Images come back newest first, so the first label set
	// seen per app wins.
	images, err := docker.ListManagedImages(ctx, cli, "")
	if err != nil {
		return err
	}
	seen := make(map[string]bool, len(grouped))
	for app := range grouped {
		seen[app] = true
	}
	for _, img := range images {
		b, err := docker.ParseLabels(img.Labels)
		if err != nil {
			VerboseLog("Skipping image %s: %v", shortDigest(img.ID), err)
			continue
		}
		if seen[b.App] {
			continue
		}
		seen[b.App] = true
		b.Status = model.StatusBuilt
		bootstraps = append(bootstraps, b)
	}

	// Step 4: deterministic order, then the filter.
	sort.Slice(bootstraps, func(i, j int) bool {
		return bootstraps[i].App < bootstraps[j].App
	})
	if flags.status != "all" {
		filtered := bootstraps[:0]
		for _, b := range bootstraps {
			if b.Status == filter {
				filtered = append(filtered, b)
			}
		}
		bootstraps = filtered
	}

	// Step 5: report.
	printListResult(bootstraps)
	return nil
}

func printListResult(bootstraps []*model.Bootstrap) {
	if IsJSONOutput() {
		printListResultJSON(bootstraps)
	} else {
		printListResultText(bootstraps)
	}
}

func printListResultJSON(bootstraps []*model.Bootstrap) {
	if bootstraps == nil {
		bootstraps = []*model.Bootstrap{}
	}
	printJSON(struct {
		Bootstraps []*model.Bootstrap `json:"bootstraps"`
	}{Bootstraps: bootstraps})
}

func printListResultText(bootstraps []*model.Bootstrap) {
	if len(bootstraps) == 0 {
		fmt.Println("No bootstraps found.")
		fmt.Println("\nBuild one with `gangway build` in a directory with a bootstrap.json.")
		return
	}

	fmt.Printf("%-24s %-8s %-7s %-6s %-14s %s\n",
		"NAME", "STATUS", "EXPOSE", "BIND", "PORTS", "AGE")
	for _, b := range bootstraps {
		fmt.Printf("%-24s %-8s %-7d %-6d %-14s %s\n",
			b.App,
			b.Status,
			b.ExposePort,
			b.BindPort,
			FormatPorts(b.Containers),
			formatAge(b.CreatedAt),
		)
	}
}

// FormatPorts renders the published host ports of a bootstrap's
// containers as a comma-separated list, "-" when nothing is published.
func FormatPorts(containers []model.ContainerInfo) string {
	ports := takenHostPorts(containers)
	if len(ports) == 0 {
		return "-"
	}
	parts := make([]string, len(ports))
	for i, p := range ports {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, ",")
}

// formatAge renders how long ago t was as a compact single unit:
// "45s", "12m", "3h", "2d". Zero or future timestamps render as "-".
func formatAge(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := time.Since(t)
	switch {
	case d < 0:
		return "-"
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
