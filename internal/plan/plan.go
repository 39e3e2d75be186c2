package plan

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/mmr-tortoise/gangway/internal/manifest"
	"github.com/mmr-tortoise/gangway/internal/model"
)

// StepKind identifies what a build step does. The nine canonical kinds
// mirror the bootstrap contract and always compile in this order; the
// auxiliary kinds (workdir, env) slot between them where the Dockerfile
// needs them.
type StepKind string

const (
	// StepBase selects the fixed base runtime image (FROM).
	StepBase StepKind = "base"

	// StepWorkdir sets the working directory every later step runs in.
	StepWorkdir StepKind = "workdir"

	// StepOSPackages installs OS-level build tools for native extension
	// compilation. Omitted when the manifest declares no packages.
	StepOSPackages StepKind = "os-packages"

	// StepCopyManifests copies the dependency manifest files into the
	// image, ahead of the source tree, so dependency layers cache
	// independently of code edits.
	StepCopyManifests StepKind = "copy-manifests"

	// StepInstallManager installs the dependency manager tool itself.
	// Skipped for managers the base image already provides.
	StepInstallManager StepKind = "install-manager"

	// StepConfigureManager switches the manager to shared-environment
	// installs. Skipped when not applicable.
	StepConfigureManager StepKind = "configure-manager"

	// StepEnv bakes the manifest's env map into the image. Rendered
	// before dependency resolution so the install observes it.
	StepEnv StepKind = "env"

	// StepResolveDeps resolves and installs all declared dependencies
	// non-interactively. A single unresolvable dependency fails the
	// whole build here.
	StepResolveDeps StepKind = "resolve-deps"

	// StepCopySource copies the remainder of the application source.
	StepCopySource StepKind = "copy-source"

	// StepExpose declares the documented port. Documentation only: the
	// instruction never binds anything, and it is rendered exactly as
	// the manifest wrote it even when it disagrees with the command.
	StepExpose StepKind = "expose"

	// StepCommand sets the container start command in exec form. The
	// container's exit code is this process's exit code.
	StepCommand StepKind = "command"
)

// Step is one compiled build step: a stable identifier, its kind, and
// the exact Dockerfile instruction it renders to.
type Step struct {
	// Seq is the 1-based position of the step in the plan.
	Seq int `json:"seq"`

	// Kind identifies the step.
	Kind StepKind `json:"kind"`

	// Instruction is the rendered Dockerfile instruction, possibly
	// spanning continuation lines.
	Instruction string `json:"instruction"`

	// Description is a one-line human summary for plan output.
	Description string `json:"description"`
}

// Plan is the compiled, strictly sequential build plan for one manifest.
// Steps execute in slice order, each depending on the previous; any step
// failing aborts the whole build with nothing retained.
type Plan struct {
	// App is the manifest's name, used for tags and labels.
	App string `json:"app"`

	// BaseImage is the selected base runtime image.
	BaseImage string `json:"baseImage"`

	// ManifestDigest is the hex SHA-256 of the raw manifest bytes the
	// plan was compiled from.
	ManifestDigest string `json:"manifestDigest"`

	// Steps is the ordered step list.
	Steps []Step `json:"steps"`
}

// Compile turns a validated manifest into the ordered build plan. The
// manifest must have passed validation: Compile assumes the manager is
// supported and the command is non-empty, and only returns an error for
// conditions validation cannot see.
//
// The canonical ordering is fixed: base, workdir, OS packages, manifest
// copy, manager install, manager configuration, env baking, dependency
// resolution, source copy, port declaration, start command. Manifests
// are always copied before resolution and resolution always precedes the
// source copy, so dependency layers survive source-only rebuilds.
func Compile(m *manifest.Manifest, manifestDigest string) (*Plan, error) {
	if !m.Dependencies.Manager.IsValid() {
		return nil, model.NewCLIError(model.ExitManifestError,
			fmt.Sprintf("cannot compile plan for unsupported manager %q", m.Dependencies.Manager))
	}
	if len(m.Command.Argv) == 0 {
		return nil, model.NewCLIError(model.ExitManifestError, "cannot compile plan without a command")
	}

	p := &Plan{
		App:            m.Name,
		BaseImage:      m.BaseImage,
		ManifestDigest: manifestDigest,
	}

	// Step 1: base image.
	p.add(StepBase,
		fmt.Sprintf("FROM %s", m.BaseImage),
		fmt.Sprintf("select base image %s", m.BaseImage))

	p.add(StepWorkdir,
		fmt.Sprintf("WORKDIR %s", m.Workdir),
		fmt.Sprintf("set working directory %s", m.Workdir))

	// Step 2: OS build tools. One RUN with the apt lists cleaned in the
	// same layer, so the packages-layer size stays honest.
	if len(m.OSPackages) > 0 {
		p.add(StepOSPackages,
			fmt.Sprintf("RUN apt-get update && apt-get install -y --no-install-recommends %s && rm -rf /var/lib/apt/lists/*",
				strings.Join(m.OSPackages, " ")),
			fmt.Sprintf("install OS packages: %s", strings.Join(m.OSPackages, ", ")))
	}

	// Step 3: dependency manifests, wildcards preserved so optional lock
	// files copy when present and are ignored when absent.
	p.add(StepCopyManifests,
		fmt.Sprintf("COPY %s ./", strings.Join(m.Dependencies.Files, " ")),
		fmt.Sprintf("copy dependency manifests: %s", strings.Join(m.Dependencies.Files, ", ")))

	// Step 4: the manager tool itself.
	if inst := installManagerInstruction(m); inst != "" {
		p.add(StepInstallManager, inst,
			fmt.Sprintf("install %s", m.Dependencies.Manager))
	}

	// Step 5: shared-environment configuration.
	if inst := configureManagerInstruction(m); inst != "" {
		p.add(StepConfigureManager, inst,
			"configure shared-environment installs")
	}

	// Env baking sits between manager configuration and resolution so
	// the resolver runs with the image's final environment.
	if len(m.Env) > 0 {
		p.add(StepEnv, envInstruction(m.Env),
			fmt.Sprintf("bake %d environment variables", len(m.Env)))
	}

	// Step 6: dependency resolution. This is the step an unresolvable
	// dependency fails on, and with it the whole build.
	p.add(StepResolveDeps,
		resolveDepsInstruction(m),
		fmt.Sprintf("resolve dependencies with %s", m.Dependencies.Manager))

	// Step 7: application source.
	p.add(StepCopySource, "COPY . .", "copy application source")

	// Step 8: the documented port, rendered exactly as written. When it
	// disagrees with the bound port that discrepancy has already been
	// reported by validation; the plan preserves it.
	p.add(StepExpose,
		fmt.Sprintf("EXPOSE %d", m.Expose),
		fmt.Sprintf("document port %d", m.Expose))

	// Step 9: start command, exec form. No shell wrapper: the server is
	// PID 1 and its exit code is the container's exit code.
	argv, err := json.Marshal(m.Command.Argv)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitManifestError, "failed to encode command", err)
	}
	p.add(StepCommand,
		fmt.Sprintf("CMD %s", string(argv)),
		fmt.Sprintf("start server on %s:%d", m.Command.Host, m.Command.Port))

	return p, nil
}

// add appends a step with the next sequence number.
func (p *Plan) add(kind StepKind, instruction, description string) {
	p.Steps = append(p.Steps, Step{
		Seq:         len(p.Steps) + 1,
		Kind:        kind,
		Instruction: instruction,
		Description: description,
	})
}

// Step returns the step of the given kind, or nil when the plan omits it.
func (p *Plan) Step(kind StepKind) *Step {
	for i := range p.Steps {
		if p.Steps[i].Kind == kind {
			return &p.Steps[i]
		}
	}
	return nil
}

// installManagerInstruction renders step 4 for the manifest's manager.
// pip and npm ship with their base images, so only poetry needs an
// install; a pinned managerVersion keeps the build reproducible.
func installManagerInstruction(m *manifest.Manifest) string {
	if m.Dependencies.Manager != model.ManagerPoetry {
		return ""
	}
	if v := m.Dependencies.ManagerVersion; v != "" {
		return fmt.Sprintf("RUN pip install poetry==%s", v)
	}
	return "RUN pip install poetry"
}

// configureManagerInstruction renders step 5. Only poetry distinguishes
// isolated from shared environments; the instruction is emitted exactly
// when the manifest asks for shared installs.
func configureManagerInstruction(m *manifest.Manifest) string {
	if m.Dependencies.Manager == model.ManagerPoetry && m.Dependencies.SharedEnvironment {
		return "RUN poetry config virtualenvs.create false"
	}
	return ""
}

// resolveDepsInstruction renders step 6 for the manifest's manager.
func resolveDepsInstruction(m *manifest.Manifest) string {
	switch m.Dependencies.Manager {
	case model.ManagerPoetry:
		return "RUN poetry install --no-interaction --no-ansi"
	case model.ManagerPip:
		var flags []string
		for _, file := range m.Dependencies.Files {
			if strings.HasSuffix(file, "*") {
				continue
			}
			flags = append(flags, "-r "+file)
		}
		if len(flags) == 0 {
			flags = []string{"-r requirements.txt"}
		}
		return fmt.Sprintf("RUN pip install --no-cache-dir %s", strings.Join(flags, " "))
	case model.ManagerNpm:
		return "RUN npm ci"
	}
	return ""
}

// envInstruction renders the manifest env map as a single ENV instruction
// with sorted keys, one per continuation line, values quoted.
func envInstruction(env map[string]string) string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = fmt.Sprintf("%s=%q", k, env[k])
	}
	return "ENV " + strings.Join(pairs, " \\\n    ")
}
