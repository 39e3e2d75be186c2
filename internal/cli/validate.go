package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/gangway/internal/config"
	"github.com/mmr-tortoise/gangway/internal/manifest"
	"github.com/mmr-tortoise/gangway/internal/model"
)

type validateFlags struct {
	strict bool
}

// NewValidateCommand creates the validate command.
func NewValidateCommand() *cobra.Command {
	flags := &validateFlags{}

	cmd := &cobra.Command{
		Use:   "validate [dir]",
		Short: "Check the bootstrap manifest without building anything",
		Long: `Validate loads the bootstrap manifest, runs every static and file-backed
check, and reports the findings.

Error findings make the manifest unbuildable and the command exits with
code 3. Warnings are advisory and never block a build; the most common
one is port-mismatch, raised when the documented port (expose) differs
from the port the server binds (command.port). gangway preserves that
mismatch exactly as written, so the warning reappears on every validate,
build, and run until the manifest itself changes.`,
		Args: maxArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(manifestDirArg(args), flags)
		},
	}

	cmd.Flags().BoolVar(&flags.strict, "strict", false, "Treat warnings as errors")

	return cmd
}

func runValidate(dir string, flags *validateFlags) error {
	cfg, err := loadToolConfig()
	if err != nil {
		return err
	}

	// Step 1: locate and parse the manifest.
	path, m, _, err := locateAndLoad(dir, cfg)
	if err != nil {
		return err
	}
	VerboseLog("Manifest: %s", path)

	// Step 2: static checks first, then the checks that touch the
	// filesystem (source path, env file, dependency files).
	findings := collectFindings(path, m)

	// Step 3: strict mode turns advisories into blockers.
	if flags.strict {
		findings = manifest.Escalate(findings)
	}

	// Step 4: report.
	printValidateResult(path, m.Name, findings)

	if model.HasErrors(findings) {
		errorCount := len(findings) - model.CountWarnings(findings)
		return model.NewCLIError(model.ExitManifestError,
			fmt.Sprintf("manifest failed validation with %d error(s)", errorCount))
	}
	return nil
}

// locateAndLoad resolves the manifest path under dir, parses the file,
// and returns the manifest together with the digest of its raw bytes.
// Shared by validate, plan, build, and run.
func locateAndLoad(dir string, cfg *config.Config) (string, *manifest.Manifest, string, error) {
	path, err := manifest.FindManifest(dir, cfg.ManifestFile)
	if err != nil {
		return "", nil, "", err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, "", model.WrapCLIError(model.ExitManifestError,
			fmt.Sprintf("failed to read bootstrap manifest %q", path), err)
	}

	m, err := manifest.Parse(data)
	if err != nil {
		return "", nil, "", model.WrapCLIError(model.ExitManifestError,
			fmt.Sprintf("failed to parse bootstrap manifest %q", path), err)
	}

	return path, m, manifest.Digest(data), nil
}

// collectFindings runs the full validation suite against a parsed
// manifest rooted at the directory containing it.
func collectFindings(path string, m *manifest.Manifest) []model.Finding {
	findings := manifest.Validate(m)
	return append(findings, manifest.ValidateFiles(filepath.Dir(path), m)...)
}

func printValidateResult(path, app string, findings []model.Finding) {
	if IsJSONOutput() {
		printValidateResultJSON(path, app, findings)
	} else {
		printValidateResultText(path, app, findings)
	}
}

func printValidateResultJSON(path, app string, findings []model.Finding) {
	if findings == nil {
		findings = []model.Finding{}
	}
	printJSON(struct {
		Manifest string          `json:"manifest"`
		App      string          `json:"app"`
		Valid    bool            `json:"valid"`
		Errors   int             `json:"errors"`
		Warnings int             `json:"warnings"`
		Findings []model.Finding `json:"findings"`
	}{
		Manifest: path,
		App:      app,
		Valid:    !model.HasErrors(findings),
		Errors:   len(findings) - model.CountWarnings(findings),
		Warnings: model.CountWarnings(findings),
		Findings: findings,
	})
}

func printValidateResultText(path, app string, findings []model.Finding) {
	fmt.Printf("Validated bootstrap manifest %s\n", path)
	if app != "" {
		fmt.Printf("  App: %s\n", app)
	}

	if len(findings) == 0 {
		fmt.Println("\nManifest is valid.")
		return
	}

	fmt.Println()
	for _, f := range findings {
		fmt.Printf("  %s\n", f.String())
	}

	warnings := model.CountWarnings(findings)
	fmt.Printf("\n%d finding(s): %d error(s), %d warning(s)\n",
		len(findings), len(findings)-warnings, warnings)
}
