package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/gangway/internal/config"
	"github.com/mmr-tortoise/gangway/internal/manifest"
	"github.com/mmr-tortoise/gangway/internal/model"
	"github.com/mmr-tortoise/gangway/internal/verify"
)

type verifyFlags struct {
	dir         string
	httpPath    string
	timeout     time.Duration
	allowExited bool
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand() *cobra.Command {
	flags := &verifyFlags{}

	cmd := &cobra.Command{
		Use:   "verify <app>",
		Short: "Verify a running bootstrap against its manifest",
		Long: `Verify checks that a bootstrap's container actually delivers what its
manifest promised: the process is running, the bound port accepts
connections, and the dependency files on disk still match what the
image was built from.

The expose check restates the documented-vs-bound port relationship: a
mismatch is a warning, exactly as it was at build time, because gangway
builds the manifest verbatim and never reconciles the two ports. Only
failed checks make verification fail; warnings and skips do not.

With --http-path an HTTP GET against the published port must return a
2xx status.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadToolConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("timeout") {
				flags.timeout = cfg.Verify.Timeout
			}
			return runVerify(cmd.Context(), args[0], flags, cfg, cmd.Flags().Changed("dir"))
		},
	}

	cmd.Flags().StringVar(&flags.dir, "dir", ".", "Manifest directory for the dependency drift check")
	cmd.Flags().StringVar(&flags.httpPath, "http-path", "", "HTTP path that must answer 2xx on the published port")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", verify.DefaultTimeout, "Overall verification timeout")
	cmd.Flags().BoolVar(&flags.allowExited, "allow-exited", false, "Treat a cleanly exited container as acceptable")

	return cmd
}

func runVerify(ctx context.Context, app string, flags *verifyFlags, cfg *config.Config, dirExplicit bool) error {
	cli, err := newDockerClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()

	// An explicit --dir must hold a manifest; the implicit default just
	// means "use the manifest here if there is one", so without one the
	// drift check is skipped rather than failed.
	dir := flags.dir
	if !dirExplicit {
		if _, err := manifest.FindManifest(dir, cfg.ManifestFile); err != nil {
			VerboseLog("No manifest under %s; skipping the deps-drift check", dir)
			dir = ""
		}
	}

	report, err := verify.Run(ctx, cli, app, verify.Options{
		Dir:         dir,
		HTTPPath:    flags.httpPath,
		Timeout:     flags.timeout,
		AllowExited: flags.allowExited,
	})
	if err != nil {
		return err
	}

	printVerifyReport(report)

	if !report.Passed {
		return model.NewCLIError(model.ExitVerifyFailed,
			fmt.Sprintf("verification failed for %q", app))
	}
	return nil
}

func printVerifyReport(report *verify.Report) {
	if IsJSONOutput() {
		printJSON(report)
		return
	}

	fmt.Printf("Verification report for %q\n\n", report.App)
	fmt.Printf("  %-11s %-6s %s\n", "CHECK", "STATUS", "DETAIL")
	warnings := 0
	for _, c := range report.Checks {
		if c.Status == verify.StatusWarn {
			warnings++
		}
		fmt.Printf("  %-11s %-6s %s\n", c.Name, c.Status, c.Detail)
	}

	fmt.Println()
	if report.Passed {
		if warnings > 0 {
			fmt.Printf("Result: PASSED (%d warning(s))\n", warnings)
		} else {
			fmt.Println("Result: PASSED")
		}
	} else {
		fmt.Println("Result: FAILED")
	}
}
