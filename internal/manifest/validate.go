// validate.go performs semantic validation of a parsed bootstrap manifest.
//
// Validation produces model.Finding values rather than errors: error-severity
// findings make the manifest unbuildable, warning-severity findings flag
// suspicious but buildable conditions. The most important warning is
// port-mismatch — the documented port (expose) disagreeing with the port the
// launch command binds (command.port). The original artifact this tool
// reproduces carries exactly that defect (EXPOSE 8000, bind 8001), so the
// mismatch is surfaced on every validate/build/verify and never repaired.
//
// Validate covers static checks on the parsed manifest; ValidateFiles covers
// checks that need the manifest's directory on disk (env file readability,
// dependency file presence).
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gobwas/glob"
	"github.com/subosito/gotenv"

	"github.com/mmr-tortoise/gangway/internal/deps"
	"github.com/mmr-tortoise/gangway/internal/model"
)

// Finding codes emitted by Validate and ValidateFiles. Codes are part of
// the CLI contract: scripts match on them, so they are stable identifiers.
const (
	// CodeInvalidName — the app name fails identifier validation.
	CodeInvalidName = "invalid-name"

	// CodeEmptyBaseImage — baseImage is missing; build step 1 has nothing
	// to select.
	CodeEmptyBaseImage = "empty-base-image"

	// CodeUnknownManager — dependencies.manager is missing or unsupported.
	CodeUnknownManager = "unknown-manager"

	// CodeEmptyCommand — command.argv is empty; build step 9 has nothing
	// to launch.
	CodeEmptyCommand = "empty-command"

	// CodeInvalidPort — expose or command.port is outside 1-65535.
	CodeInvalidPort = "invalid-port"

	// CodeBadIgnorePattern — a source.ignore glob does not compile.
	CodeBadIgnorePattern = "bad-ignore-pattern"

	// CodeBadSourcePath — source.path does not exist or is not a directory.
	CodeBadSourcePath = "bad-source-path"

	// CodeEnvFileUnreadable — envFile is named but missing or unparsable.
	CodeEnvFileUnreadable = "env-file-unreadable"

	// CodeMissingDependencyFile — a non-wildcard dependencies.files entry
	// does not exist in the build context.
	CodeMissingDependencyFile = "missing-dependency-file"

	// CodePortMismatch — the documented port (expose) differs from the
	// bound port (command.port). This is the known-defect finding: the
	// manifest is buildable and both values are preserved exactly as
	// written, but the discrepancy is reported every time.
	CodePortMismatch = "port-mismatch"

	// CodeArgvPortDisagrees — command.argv carries an explicit --port
	// value that differs from command.port.
	CodeArgvPortDisagrees = "argv-port-disagrees"

	// CodeIsolatedEnv — poetry without sharedEnvironment: packages land
	// in an isolated virtualenv the launch command may not see.
	CodeIsolatedEnv = "isolated-env"

	// CodeUnknownField — a manifest key not defined by the schema.
	CodeUnknownField = "unknown-field"

	// CodeNonAptBase — osPackages is set but the base image does not look
	// apt-based, so the package install step will likely fail.
	CodeNonAptBase = "non-apt-base"

	// CodeManagerMismatch — dependencies.files look like they belong to a
	// different manager than dependencies.manager.
	CodeManagerMismatch = "manager-mismatch"
)

// Validate performs static checks on a parsed manifest and returns the
// findings (empty slice = clean manifest). It never touches the filesystem;
// see ValidateFiles for checks against the manifest's directory.
func Validate(m *Manifest) []model.Finding {
	var findings []model.Finding

	// Check 1: the app name must be a valid identifier — it becomes the
	// image repository component, container name, and label value.
	if err := model.ValidateName(m.Name); err != nil {
		findings = append(findings, model.Finding{
			Severity: model.SeverityError,
			Code:     CodeInvalidName,
			Field:    "name",
			Message:  err.Error(),
		})
	}

	// Check 2: a base image is required — build step 1 selects it and
	// every later step runs on top of it.
	if m.BaseImage == "" {
		findings = append(findings, model.Finding{
			Severity: model.SeverityError,
			Code:     CodeEmptyBaseImage,
			Field:    "baseImage",
			Message:  "baseImage is required",
		})
	}

	// Check 3: the dependency manager must be one of the supported tools.
	if m.Dependencies.Manager == "" {
		findings = append(findings, model.Finding{
			Severity: model.SeverityError,
			Code:     CodeUnknownManager,
			Field:    "dependencies.manager",
			Message:  "dependencies.manager is required (poetry, pip, or npm)",
		})
	} else if !m.Dependencies.Manager.IsValid() {
		findings = append(findings, model.Finding{
			Severity: model.SeverityError,
			Code:     CodeUnknownManager,
			Field:    "dependencies.manager",
			Message:  fmt.Sprintf("unsupported dependency manager %q (valid: poetry, pip, npm)", m.Dependencies.Manager),
		})
	}

	// Check 4: the launch command must exist — the container runs exactly
	// one foreground process and this is it.
	if len(m.Command.Argv) == 0 {
		findings = append(findings, model.Finding{
			Severity: model.SeverityError,
			Code:     CodeEmptyCommand,
			Field:    "command.argv",
			Message:  "command.argv must not be empty",
		})
	}

	// Check 5: port ranges. Both ports are required: expose documents,
	// command.port binds.
	if m.Expose < 1 || m.Expose > 65535 {
		findings = append(findings, model.Finding{
			Severity: model.SeverityError,
			Code:     CodeInvalidPort,
			Field:    "expose",
			Message:  fmt.Sprintf("expose port %d out of range (1-65535)", m.Expose),
		})
	}
	if m.Command.Port < 1 || m.Command.Port > 65535 {
		findings = append(findings, model.Finding{
			Severity: model.SeverityError,
			Code:     CodeInvalidPort,
			Field:    "command.port",
			Message:  fmt.Sprintf("command port %d out of range (1-65535)", m.Command.Port),
		})
	}

	// Check 6: every ignore pattern must compile. A broken pattern would
	// otherwise surface much later, mid-walk of the build context.
	for _, pattern := range m.Source.Ignore {
		if _, err := glob.Compile(pattern, '/'); err != nil {
			findings = append(findings, model.Finding{
				Severity: model.SeverityError,
				Code:     CodeBadIgnorePattern,
				Field:    "source.ignore",
				Message:  fmt.Sprintf("ignore pattern %q does not compile: %v", pattern, err),
			})
		}
	}

	// Check 7: the defect finding. The documented port and the bound port
	// are independent declarations; when they disagree the manifest still
	// builds, but every reader of the EXPOSE instruction will be misled.
	// Both values are preserved exactly as written — which side is the
	// intended one is not decidable from the manifest.
	if m.Expose > 0 && m.Command.Port > 0 && m.Expose != m.Command.Port {
		findings = append(findings, model.Finding{
			Severity: model.SeverityWarning,
			Code:     CodePortMismatch,
			Field:    "expose",
			Message: fmt.Sprintf(
				"documented port %d differs from bound port %d: EXPOSE is documentation only, the server will bind %d",
				m.Expose, m.Command.Port, m.Command.Port),
		})
	}

	// Check 8: an explicit --port in the argv that disagrees with
	// command.port means the declared bind port is wrong about what the
	// server will actually do.
	if argvP := argvPort(m.Command.Argv); argvP > 0 && m.Command.Port > 0 && argvP != m.Command.Port {
		findings = append(findings, model.Finding{
			Severity: model.SeverityWarning,
			Code:     CodeArgvPortDisagrees,
			Field:    "command.argv",
			Message:  fmt.Sprintf("command argv binds port %d but command.port declares %d", argvP, m.Command.Port),
		})
	}

	// Check 9: poetry without a shared environment installs packages into
	// a virtualenv the launch command may not activate.
	if m.Dependencies.Manager == model.ManagerPoetry && !m.Dependencies.SharedEnvironment {
		findings = append(findings, model.Finding{
			Severity: model.SeverityWarning,
			Code:     CodeIsolatedEnv,
			Field:    "dependencies.sharedEnvironment",
			Message:  "poetry installs into an isolated virtualenv unless sharedEnvironment is true; the launch command may not see the installed packages",
		})
	}

	// Check 10: the OS package step renders apt-get commands; bases
	// without apt will fail it at build time.
	if len(m.OSPackages) > 0 && !looksAptBased(m.BaseImage) {
		findings = append(findings, model.Finding{
			Severity: model.SeverityWarning,
			Code:     CodeNonAptBase,
			Field:    "baseImage",
			Message:  fmt.Sprintf("osPackages are installed with apt-get, but base image %q does not look Debian-based", m.BaseImage),
		})
	}

	// Check 11: dependency files that plainly belong to a different
	// manager (e.g. manager "pip" with pyproject.toml files).
	if m.Dependencies.Manager.IsValid() {
		if detected := deps.DetectKind(m.Dependencies.Files); detected != "" && detected != m.Dependencies.Manager {
			findings = append(findings, model.Finding{
				Severity: model.SeverityWarning,
				Code:     CodeManagerMismatch,
				Field:    "dependencies.files",
				Message:  fmt.Sprintf("dependency files look like %s but dependencies.manager is %s", detected, m.Dependencies.Manager),
			})
		}
	}

	// Check 12: keys the schema does not define. Reported, not rejected —
	// a manifest written against a newer schema should still build.
	for _, field := range m.UnknownFields() {
		findings = append(findings, model.Finding{
			Severity: model.SeverityWarning,
			Code:     CodeUnknownField,
			Field:    field,
			Message:  fmt.Sprintf("unknown manifest field %q", field),
		})
	}

	return findings
}

// ValidateFiles performs checks that need the manifest's directory on disk:
// the build context root, the env file, and the dependency manifest files.
// dir is the directory containing the bootstrap manifest.
func ValidateFiles(dir string, m *Manifest) []model.Finding {
	var findings []model.Finding

	// The context root must exist — everything else is resolved under it.
	contextRoot := filepath.Join(dir, m.Source.Path)
	if info, err := os.Stat(contextRoot); err != nil || !info.IsDir() {
		findings = append(findings, model.Finding{
			Severity: model.SeverityError,
			Code:     CodeBadSourcePath,
			Field:    "source.path",
			Message:  fmt.Sprintf("source path %q is not a directory", m.Source.Path),
		})
		return findings
	}

	// The env file, when named, must exist and parse as dotenv.
	if m.EnvFile != "" {
		if _, err := LoadEnvFile(filepath.Join(dir, m.EnvFile)); err != nil {
			findings = append(findings, model.Finding{
				Severity: model.SeverityError,
				Code:     CodeEnvFileUnreadable,
				Field:    "envFile",
				Message:  fmt.Sprintf("env file %q: %v", m.EnvFile, err),
			})
		}
	}

	// Non-wildcard dependency files must exist in the context — the copy
	// step would fail the whole build otherwise. Wildcard entries (trailing
	// "*") are exactly the mechanism for optional files, so their absence
	// is fine and not even a warning.
	for _, file := range m.Dependencies.Files {
		if strings.HasSuffix(file, "*") {
			continue
		}
		if _, err := os.Stat(filepath.Join(contextRoot, file)); err != nil {
			findings = append(findings, model.Finding{
				Severity: model.SeverityError,
				Code:     CodeMissingDependencyFile,
				Field:    "dependencies.files",
				Message:  fmt.Sprintf("dependency file %q not found in build context", file),
			})
		}
	}

	return findings
}

// Escalate raises every warning-severity finding to error severity.
// Used by strict mode, where a port mismatch or unknown field should
// fail validation instead of merely being reported.
func Escalate(findings []model.Finding) []model.Finding {
	escalated := make([]model.Finding, len(findings))
	for i, f := range findings {
		if f.Severity == model.SeverityWarning {
			f.Severity = model.SeverityError
		}
		escalated[i] = f
	}
	return escalated
}

// LoadEnvFile reads a dotenv-style file and returns its key/value pairs.
// Parsing is strict: a malformed line is an error, not a skip, because
// the values are baked into the image and a silently dropped key would
// only surface as a runtime failure.
func LoadEnvFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open env file: %w", err)
	}
	defer func() { _ = f.Close() }()

	env, err := gotenv.StrictParse(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse env file: %w", err)
	}
	return env, nil
}

// argvPort extracts an explicit port from a command argv, recognizing the
// "--port N" and "--port=N" forms. Returns 0 when the argv carries no
// parsable explicit port.
func argvPort(argv []string) int {
	for i, arg := range argv {
		if arg == "--port" && i+1 < len(argv) {
			if p, err := strconv.Atoi(argv[i+1]); err == nil {
				return p
			}
		}
		if value, ok := strings.CutPrefix(arg, "--port="); ok {
			if p, err := strconv.Atoi(value); err == nil {
				return p
			}
		}
	}
	return 0
}

// looksAptBased reports whether a base image reference plausibly carries
// apt-get. The check is a denylist of the common non-Debian bases rather
// than an allowlist, because most images that do not say otherwise are
// Debian derivatives.
func looksAptBased(baseImage string) bool {
	ref := strings.ToLower(baseImage)
	for _, marker := range []string{"alpine", "busybox", "scratch", "distroless"} {
		if strings.Contains(ref, marker) {
			return false
		}
	}
	return true
}
