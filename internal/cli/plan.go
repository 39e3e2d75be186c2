package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/gangway/internal/model"
	"github.com/mmr-tortoise/gangway/internal/plan"
)

type planFlags struct {
	dockerfile bool
	write      bool
}

// NewPlanCommand creates the plan command.
func NewPlanCommand() *cobra.Command {
	flags := &planFlags{}

	cmd := &cobra.Command{
		Use:   "plan [dir]",
		Short: "Compile the manifest into a build plan without building",
		Long: `Plan compiles the bootstrap manifest into the fixed sequence of build
steps and shows what a build would do, without touching the Docker
daemon.

The step sequence is always the same shape: base image, working
directory, OS packages, dependency manifests, manager install and
configuration, baked environment, dependency resolution, source copy,
documented port, launch command. Steps with nothing to do (no OS
packages, a manager the base image already ships) are elided, and the
remaining steps renumber from 1.

With --dockerfile the rendered Dockerfile is printed instead of the
step tree; --write saves it next to the manifest.`,
		Args: maxArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(manifestDirArg(args), flags)
		},
	}

	cmd.Flags().BoolVar(&flags.dockerfile, "dockerfile", false, "Print the rendered Dockerfile instead of the step tree")
	cmd.Flags().BoolVar(&flags.write, "write", false, "Write the rendered Dockerfile next to the manifest")

	return cmd
}

func runPlan(dir string, flags *planFlags) error {
	cfg, err := loadToolConfig()
	if err != nil {
		return err
	}

	// Step 1: locate, parse, and digest the manifest.
	path, m, digest, err := locateAndLoad(dir, cfg)
	if err != nil {
		return err
	}
	VerboseLog("Manifest: %s (digest sha256:%s)", path, shortDigest(digest))

	// Step 2: refuse to plan a manifest that would not build.
	findings := collectFindings(path, m)
	if model.HasErrors(findings) {
		errorCount := len(findings) - model.CountWarnings(findings)
		return model.NewCLIError(model.ExitManifestError,
			fmt.Sprintf("manifest has %d error(s); run `gangway validate %s` for details", errorCount, dir))
	}

	// Step 3: compile and render.
	p, err := plan.Compile(m, digest)
	if err != nil {
		return err
	}

	rendered, err := plan.Render(p)
	if err != nil {
		return err
	}

	// Step 4: optionally persist the Dockerfile next to the manifest.
	written := ""
	if flags.write {
		written = filepath.Join(filepath.Dir(path), "Dockerfile")
		if err := os.WriteFile(written, []byte(rendered), 0o644); err != nil {
			return model.WrapCLIError(model.ExitGeneralError,
				fmt.Sprintf("failed to write %s", written), err)
		}
		VerboseLog("Wrote %s", written)
	}

	// Step 5: report.
	printPlanResult(p, rendered, written, findings, flags)
	return nil
}

func printPlanResult(p *plan.Plan, rendered, written string, findings []model.Finding, flags *planFlags) {
	if IsJSONOutput() {
		printPlanResultJSON(p, rendered, written, findings, flags)
	} else {
		printPlanResultText(p, rendered, written, findings, flags)
	}
}

func printPlanResultJSON(p *plan.Plan, rendered, written string, findings []model.Finding, flags *planFlags) {
	if findings == nil {
		findings = []model.Finding{}
	}
	out := struct {
		App            string          `json:"app"`
		BaseImage      string          `json:"baseImage"`
		ManifestDigest string          `json:"manifestDigest"`
		Steps          []plan.Step     `json:"steps"`
		Dockerfile     string          `json:"dockerfile,omitempty"`
		Written        string          `json:"written,omitempty"`
		Findings       []model.Finding `json:"findings"`
	}{
		App:            p.App,
		BaseImage:      p.BaseImage,
		ManifestDigest: p.ManifestDigest,
		Steps:          p.Steps,
		Written:        written,
		Findings:       findings,
	}
	if flags.dockerfile {
		out.Dockerfile = rendered
	}
	printJSON(out)
}

func printPlanResultText(p *plan.Plan, rendered, written string, findings []model.Finding, flags *planFlags) {
	// Warnings go to stderr so --dockerfile output stays pipeable.
	for _, f := range findings {
		fmt.Fprintf(os.Stderr, "%s\n", f.String())
	}

	if flags.dockerfile {
		fmt.Print(rendered)
	} else {
		fmt.Print(plan.Tree(p))
	}

	if written != "" {
		fmt.Fprintf(os.Stderr, "Wrote %s\n", written)
	}
}
