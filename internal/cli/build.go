package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/gangway/internal/buildctx"
	"github.com/mmr-tortoise/gangway/internal/config"
	"github.com/mmr-tortoise/gangway/internal/deps"
	"github.com/mmr-tortoise/gangway/internal/docker"
	"github.com/mmr-tortoise/gangway/internal/manifest"
	"github.com/mmr-tortoise/gangway/internal/model"
	"github.com/mmr-tortoise/gangway/internal/plan"
)

type buildFlags struct {
	noCache bool
	pull    bool
	tags    []string
}

// NewBuildCommand creates the build command.
func NewBuildCommand() *cobra.Command {
	flags := &buildFlags{}

	cmd := &cobra.Command{
		Use:   "build [dir]",
		Short: "Build the bootstrap image through the Docker daemon",
		Long: `Build compiles the bootstrap manifest into a Dockerfile, streams the
source directory to the Docker daemon as the build context, and tags
the resulting image.

Images are tagged gangway/<app>:<context-digest> plus gangway/<app>:latest,
and labeled with the manifest, dependency, and context digests so later
commands can tell exactly what an image was built from. The build is
atomic: a failing step leaves no new tag behind.

A manifest whose documented port differs from its bound port builds
exactly as written; the mismatch is reported as a warning, never fixed.`,
		Args: maxArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadToolConfig()
			if err != nil {
				return err
			}
			// Flags beat config, config beats built-in defaults.
			if !cmd.Flags().Changed("no-cache") {
				flags.noCache = cfg.Build.NoCache
			}
			if !cmd.Flags().Changed("pull") {
				flags.pull = cfg.Build.Pull
			}
			return runBuild(cmd.Context(), manifestDirArg(args), flags, cfg)
		},
	}

	cmd.Flags().BoolVar(&flags.noCache, "no-cache", false, "Build without the daemon's layer cache")
	cmd.Flags().BoolVar(&flags.pull, "pull", false, "Always pull a newer version of the base image")
	cmd.Flags().StringArrayVar(&flags.tags, "tag", nil, "Additional image tag (repeatable)")

	return cmd
}

func runBuild(ctx context.Context, dir string, flags *buildFlags, cfg *config.Config) error {
	cli, err := newDockerClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()
	VerboseLog("Connected to Docker daemon")

	outcome, err := buildApp(ctx, cli, cfg, dir, buildRequest{
		noCache:   flags.noCache,
		pull:      flags.pull,
		extraTags: flags.tags,
	})
	if err != nil {
		return err
	}

	printBuildResult(outcome)
	return nil
}

// buildRequest carries the caller-controlled knobs of a build.
type buildRequest struct {
	noCache   bool
	pull      bool
	extraTags []string
}

// buildOutcome is everything a completed build produced. The run
// command starts containers from it, and the output printers render it.
type buildOutcome struct {
	App            string          `json:"app"`
	ImageID        string          `json:"imageId"`
	ImageRef       string          `json:"imageRef"`
	LatestRef      string          `json:"latestRef"`
	BaseImage      string          `json:"baseImage"`
	Steps          int             `json:"steps"`
	ManifestDigest string          `json:"manifestDigest"`
	DepsDigest     string          `json:"depsDigest"`
	ContextDigest  string          `json:"contextDigest"`
	Revision       string          `json:"revision,omitempty"`
	ExposePort     int             `json:"exposePort"`
	BindPort       int             `json:"bindPort"`
	CreatedAt      time.Time       `json:"createdAt"`
	Findings       []model.Finding `json:"findings"`
}

// bootstrap reconstructs the label payload the outcome's image carries.
func (o *buildOutcome) bootstrap() *model.Bootstrap {
	return &model.Bootstrap{
		App:            o.App,
		BaseImage:      o.BaseImage,
		ManifestDigest: o.ManifestDigest,
		DepsDigest:     o.DepsDigest,
		ContextDigest:  o.ContextDigest,
		ExposePort:     o.ExposePort,
		BindPort:       o.BindPort,
		Revision:       o.Revision,
		CreatedAt:      o.CreatedAt,
	}
}

// buildApp runs the full manifest-to-image pipeline. Shared by build
// and run.
func buildApp(ctx context.Context, cli *docker.Client, cfg *config.Config, dir string, req buildRequest) (*buildOutcome, error) {
	// Step 1: locate, parse, and digest the manifest.
	path, m, manifestDigest, err := locateAndLoad(dir, cfg)
	if err != nil {
		return nil, err
	}
	VerboseLog("Manifest: %s (digest sha256:%s)", path, shortDigest(manifestDigest))

	// Step 2: validate. Errors abort before anything is built; warnings
	// ride along into the result so every build restates them.
	findings := collectFindings(path, m)
	if findings == nil {
		findings = []model.Finding{}
	}
	if model.HasErrors(findings) {
		if !IsJSONOutput() {
			for _, f := range findings {
				fmt.Fprintln(os.Stderr, f.String())
			}
		}
		errorCount := len(findings) - model.CountWarnings(findings)
		return nil, model.NewCLIError(model.ExitManifestError,
			fmt.Sprintf("manifest failed validation with %d error(s); run `gangway validate` for details", errorCount))
	}
	if !IsJSONOutput() {
		for _, f := range findings {
			fmt.Fprintln(os.Stderr, f.String())
		}
	}

	// Step 3: fold the env file into the baked environment. Explicit
	// manifest env wins over file keys.
	manifestDir := filepath.Dir(path)
	if m.EnvFile != "" {
		fileEnv, err := manifest.LoadEnvFile(filepath.Join(manifestDir, m.EnvFile))
		if err != nil {
			return nil, err
		}
		m.Env = mergeEnv(fileEnv, m.Env)
	}

	// Step 4: compile the plan and render the Dockerfile.
	p, err := plan.Compile(m, manifestDigest)
	if err != nil {
		return nil, err
	}
	rendered, err := plan.Render(p)
	if err != nil {
		return nil, err
	}
	VerboseLog("Compiled %d build steps", len(p.Steps))

	// Step 5: fingerprint the dependency set.
	contextRoot := filepath.Join(manifestDir, m.Source.Path)
	depsDigest, err := deps.Fingerprint(contextRoot, m.Dependencies.Manager, m.Dependencies.Files)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitBuildFailed, "failed to fingerprint dependencies", err)
	}

	// Step 6: collect the build context and digest it with the rendered
	// Dockerfile folded in, so the tag names exactly what was built.
	bctx, err := buildctx.Collect(contextRoot, m.Source.Ignore)
	if err != nil {
		return nil, err
	}
	extra := map[string][]byte{"Dockerfile": []byte(rendered)}
	contextDigest, err := bctx.Digest(extra)
	if err != nil {
		return nil, err
	}
	VerboseLog("Build context: %d files, digest %s", len(bctx.Files), shortDigest(contextDigest))

	// Step 7: assemble the label set.
	outcome := &buildOutcome{
		App:            m.Name,
		ImageRef:       docker.ImageRef(m.Name, contextDigest),
		LatestRef:      docker.LatestRef(m.Name),
		BaseImage:      m.BaseImage,
		Steps:          len(p.Steps),
		ManifestDigest: manifestDigest,
		DepsDigest:     depsDigest,
		ContextDigest:  contextDigest,
		Revision:       buildctx.GitRevision(contextRoot),
		ExposePort:     m.Expose,
		BindPort:       m.Command.Port,
		CreatedAt:      time.Now().UTC(),
		Findings:       findings,
	}
	labels := docker.BuildLabels(outcome.bootstrap())
	tags := append([]string{outcome.ImageRef, outcome.LatestRef}, req.extraTags...)

	// Step 8: stream the context tar to the daemon and follow the build.
	// Tags are applied by the daemon only after every step succeeds, so
	// a failed build leaves no new gangway/<app> tag behind.
	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(bctx.WriteTar(pw, extra))
	}()

	result, err := docker.BuildImage(ctx, cli, pr, docker.BuildOptions{
		Tags:     tags,
		Labels:   labels,
		NoCache:  req.noCache,
		Pull:     req.pull,
		Progress: buildProgress(),
	})
	if err != nil {
		return nil, err
	}
	outcome.ImageID = result.ImageID

	return outcome, nil
}

// buildProgress returns the writer daemon build output streams to:
// stderr in verbose mode, discarded otherwise.
func buildProgress() io.Writer {
	if verbose {
		return os.Stderr
	}
	return io.Discard
}

// mergeEnv overlays explicit entries onto base, with explicit winning
// on key collisions.
func mergeEnv(base, explicit map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(explicit))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range explicit {
		merged[k] = v
	}
	return merged
}

func printBuildResult(o *buildOutcome) {
	if IsJSONOutput() {
		printJSON(o)
	} else {
		printBuildResultText(o)
	}
}

func printBuildResultText(o *buildOutcome) {
	fmt.Printf("Built bootstrap image for %q\n", o.App)
	fmt.Printf("  Image:    %s (%s)\n", o.ImageRef, shortDigest(o.ImageID))
	fmt.Printf("  Base:     %s\n", o.BaseImage)
	fmt.Printf("  Steps:    %d\n", o.Steps)
	fmt.Printf("  Manifest: sha256:%s\n", shortDigest(o.ManifestDigest))
	fmt.Printf("  Deps:     sha256:%s\n", shortDigest(o.DepsDigest))
	fmt.Printf("  Context:  sha256:%s\n", shortDigest(o.ContextDigest))
	if o.Revision != "" {
		fmt.Printf("  Revision: %s\n", o.Revision)
	}
	if o.ExposePort != o.BindPort {
		fmt.Printf("  Ports:    documents %d, binds %d\n", o.ExposePort, o.BindPort)
	} else {
		fmt.Printf("  Ports:    %d\n", o.BindPort)
	}
}
