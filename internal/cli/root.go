// Package cli implements the gangway command line interface.
//
// Every subcommand follows the same pattern: a New<Name>Command
// constructor wires flags into a private flags struct, and a run<Name>
// function does the work and returns a *model.CLIError carrying the
// process exit code. Output goes through print<Name>Result, which
// honors the global --json flag.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/gangway/internal/config"
	"github.com/mmr-tortoise/gangway/internal/docker"
	"github.com/mmr-tortoise/gangway/internal/model"
)

// Version information, injected at build time via ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Global flags shared by all subcommands.
var (
	jsonOutput bool
	verbose    bool
	configPath string
)

// NewRootCommand creates the root gangway command with all subcommands
// registered.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "gangway",
		Short: "Build and run containerized web services from a bootstrap manifest",
		Long: `gangway compiles a declarative bootstrap manifest (bootstrap.json) into
a containerized web service.

The manifest names a base image, a dependency manager, environment
variables, a documented port, and the launch command. gangway compiles
it into a fixed sequence of build steps, builds the image through the
Docker daemon, and runs the service as a single foreground container
whose lifetime is the server's lifetime.

The documented port (expose) and the port the server binds (command.port)
are independent manifest fields. When they disagree, gangway reports the
mismatch as a warning and builds the manifest exactly as written; it
never reconciles the two.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output results in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the gangway config file (default: XDG config dir)")

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return model.WrapCLIError(model.ExitUsageError, "invalid command line", err)
	})

	rootCmd.AddCommand(
		NewValidateCommand(),
		NewPlanCommand(),
		NewBuildCommand(),
		NewRunCommand(),
		NewListCommand(),
		NewStopCommand(),
		NewRemoveCommand(),
		NewVerifyCommand(),
		NewExportCommand(),
		NewComposeCommand(),
		NewVersionCommand(),
	)

	return rootCmd
}

// Execute runs the root command and exits the process with the
// appropriate code on failure.
func Execute(rootCmd *cobra.Command) {
	if err := rootCmd.Execute(); err != nil {
		var cliErr *model.CLIError
		if errors.As(err, &cliErr) {
			printError(cliErr.Message, cliErr.Err)
			os.Exit(int(cliErr.Code))
		}

		printError(err.Error(), nil)
		if strings.HasPrefix(err.Error(), "unknown command") {
			os.Exit(int(model.ExitUsageError))
		}
		os.Exit(int(model.ExitGeneralError))
	}
}

// printError writes an error message to stderr, as JSON when --json is
// set.
func printError(message string, detail error) {
	if jsonOutput {
		payload := map[string]any{
			"error": map[string]any{
				"message": message,
			},
		}
		if detail != nil {
			payload["error"].(map[string]any)["detail"] = detail.Error()
		}
		data, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, `{"error": {"message": %q}}`+"\n", message)
			return
		}
		fmt.Fprintln(os.Stderr, string(data))
		return
	}

	if detail != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", message, detail)
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %s\n", message)
}

// VerboseLog prints a message to stderr when verbose mode is enabled.
func VerboseLog(format string, args ...any) {
	if verbose {
		fmt.Fprintf(os.Stderr, "[verbose] "+format+"\n", args...)
	}
}

// IsJSONOutput reports whether JSON output mode is enabled.
func IsJSONOutput() bool {
	return jsonOutput
}

// printJSON marshals v with indentation and writes it to stdout.
func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to marshal output: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

// loadToolConfig loads the gangway config file, honoring the global
// --config flag.
func loadToolConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitGeneralError, "failed to load configuration", err)
	}
	return cfg, nil
}

// newDockerClient connects to the Docker daemon and verifies it is
// reachable.
func newDockerClient(ctx context.Context, cfg *config.Config) (*docker.Client, error) {
	cli, err := docker.NewClient(cfg.Docker.Host)
	if err != nil {
		return nil, err
	}
	if err := cli.Ping(ctx); err != nil {
		_ = cli.Close()
		return nil, err
	}
	return cli, nil
}

// manifestDirArg returns the optional positional manifest directory,
// defaulting to the current directory.
func manifestDirArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return "."
}

// exactArgs is cobra.ExactArgs with the usage exit code attached.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return model.WrapCLIError(model.ExitUsageError, "invalid arguments", err)
		}
		return nil
	}
}

// maxArgs is cobra.MaximumNArgs with the usage exit code attached.
func maxArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.MaximumNArgs(n)(cmd, args); err != nil {
			return model.WrapCLIError(model.ExitUsageError, "invalid arguments", err)
		}
		return nil
	}
}

// shortDigest trims a sha256-prefixed digest down to 12 hex characters
// for display.
func shortDigest(digest string) string {
	d := strings.TrimPrefix(digest, "sha256:")
	if len(d) > 12 {
		d = d[:12]
	}
	return d
}
