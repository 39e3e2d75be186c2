// Package model defines the domain types for the gangway CLI.
//
// All entities in this package are transient representations reconstructed
// from Docker image and container labels at runtime. There are no state
// files on disk: the labels attached at build time are the single source
// of truth for everything the CLI reports.
package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// BootstrapStatus represents the lifecycle state of a bootstrapped
// application environment. The state is derived at query time from the
// Docker image and container state, never stored:
//
//	built → running → exited
//	         ⇅
//	       stopped
type BootstrapStatus string

const (
	// StatusBuilt indicates an image exists for the app but no container
	// has been created from it.
	StatusBuilt BootstrapStatus = "built"

	// StatusRunning indicates the app's container is currently running.
	StatusRunning BootstrapStatus = "running"

	// StatusStopped indicates the app's container exists but was stopped
	// (or created and never started).
	StatusStopped BootstrapStatus = "stopped"

	// StatusExited indicates the app's container ran to completion.
	// The container exit code equals the server process exit code —
	// there is no supervision or restart, so an exited container stays exited.
	StatusExited BootstrapStatus = "exited"

	// StatusUnknown indicates the state could not be determined from
	// the Docker API response.
	StatusUnknown BootstrapStatus = "unknown"
)

// String returns the string representation of BootstrapStatus.
// This method satisfies the fmt.Stringer interface, enabling
// human-readable output in CLI commands and logging.
func (s BootstrapStatus) String() string {
	return string(s)
}

// IsValid checks whether the BootstrapStatus value is one of the
// predefined valid states.
func (s BootstrapStatus) IsValid() bool {
	switch s {
	case StatusBuilt, StatusRunning, StatusStopped, StatusExited, StatusUnknown:
		return true
	default:
		return false
	}
}

// ParseBootstrapStatus converts a string to a BootstrapStatus.
// Returns an error if the string does not match any valid status.
func ParseBootstrapStatus(s string) (BootstrapStatus, error) {
	status := BootstrapStatus(strings.ToLower(s))
	if !status.IsValid() {
		return "", fmt.Errorf("invalid status: %q (valid: built, running, stopped, exited, unknown)", s)
	}
	return status, nil
}

// DependencyManager identifies the tool that resolves and installs the
// application's declared dependencies. Resolution happens exactly once,
// at build time, non-interactively — nothing mutates the dependency set
// at runtime.
type DependencyManager string

const (
	// ManagerPoetry resolves Python dependencies declared in pyproject.toml,
	// pinned by poetry.lock when present.
	ManagerPoetry DependencyManager = "poetry"

	// ManagerPip resolves Python dependencies declared in requirements files.
	ManagerPip DependencyManager = "pip"

	// ManagerNpm resolves Node.js dependencies declared in package.json,
	// pinned by package-lock.json when present.
	ManagerNpm DependencyManager = "npm"
)

// String returns the string representation of DependencyManager.
func (m DependencyManager) String() string {
	return string(m)
}

// IsValid checks whether the DependencyManager value is one of the
// supported managers.
func (m DependencyManager) IsValid() bool {
	switch m {
	case ManagerPoetry, ManagerPip, ManagerNpm:
		return true
	default:
		return false
	}
}

// ParseDependencyManager converts a string to a DependencyManager.
// Returns an error if the string does not match any supported manager.
func ParseDependencyManager(s string) (DependencyManager, error) {
	m := DependencyManager(strings.ToLower(s))
	if !m.IsValid() {
		return "", fmt.Errorf("unsupported dependency manager: %q (valid: poetry, pip, npm)", s)
	}
	return m, nil
}

// Severity classifies a validation finding as blocking or advisory.
type Severity string

const (
	// SeverityError marks a finding that makes the manifest unbuildable.
	// Any error finding fails validation.
	SeverityError Severity = "error"

	// SeverityWarning marks a suspicious but buildable condition, such as
	// the documented port disagreeing with the port the command binds.
	// Warnings are reported on every run and fail validation only in
	// strict mode.
	SeverityWarning Severity = "warning"
)

// Finding represents a single result from manifest validation.
//
// Findings are reported, never acted upon: a port-mismatch warning is
// surfaced by validate, build, and verify alike, and the manifest values
// are left exactly as written. The tool flags discrepancies; it does not
// decide which side of a discrepancy is the intended one.
type Finding struct {
	// Severity is either SeverityError or SeverityWarning.
	Severity Severity `json:"severity"`

	// Code is a stable machine-readable identifier for the finding kind
	// (e.g., "port-mismatch", "unknown-field"). Codes are part of the
	// CLI contract and safe to match on in scripts.
	Code string `json:"code"`

	// Field is the manifest field path the finding refers to, using
	// dotted paths for nested fields (e.g., "command.port").
	// Empty when the finding applies to the manifest as a whole.
	Field string `json:"field,omitempty"`

	// Message describes the finding in human-readable form.
	Message string `json:"message"`
}

// String returns a human-readable representation of the finding.
// Format: "severity code field: message" (the field is omitted when empty).
func (f Finding) String() string {
	if f.Field == "" {
		return fmt.Sprintf("%s %s: %s", f.Severity, f.Code, f.Message)
	}
	return fmt.Sprintf("%s %s %s: %s", f.Severity, f.Code, f.Field, f.Message)
}

// IsError returns true if the finding has error severity.
func (f Finding) IsError() bool {
	return f.Severity == SeverityError
}

// HasErrors checks a slice of findings for any error-severity entry.
// Commands use this to decide whether validation passed.
func HasErrors(findings []Finding) bool {
	for _, f := range findings {
		if f.IsError() {
			return true
		}
	}
	return false
}

// CountWarnings returns the number of warning-severity findings.
func CountWarnings(findings []Finding) int {
	count := 0
	for _, f := range findings {
		if f.Severity == SeverityWarning {
			count++
		}
	}
	return count
}

// Bootstrap represents a bootstrapped application environment — a built
// image paired with the containers created from it. This is the primary
// aggregate entity in the domain.
//
// All fields are reconstructed at runtime from Docker labels
// (see the label schema in internal/docker/label.go). There is no
// persistent state file on disk.
type Bootstrap struct {
	// App is the application name from the bootstrap manifest.
	// Must contain only alphanumeric characters and hyphens.
	App string `json:"app"`

	// BaseImage is the fixed base runtime image the build started from.
	BaseImage string `json:"baseImage"`

	// ManifestDigest is the SHA-256 digest of the bootstrap manifest bytes,
	// identifying exactly which manifest produced the image.
	ManifestDigest string `json:"manifestDigest,omitempty"`

	// DepsDigest is the dependency fingerprint: a deterministic SHA-256
	// over the declared dependency set plus lock file contents. Identical
	// inputs always produce the identical digest, so rebuilding an
	// unchanged context yields the same value.
	DepsDigest string `json:"depsDigest,omitempty"`

	// ContextDigest is the SHA-256 digest of the build context tar stream.
	ContextDigest string `json:"contextDigest,omitempty"`

	// ExposePort is the documented port (the EXPOSE instruction).
	// Documentation only — it publishes and binds nothing.
	ExposePort int `json:"exposePort"`

	// BindPort is the port the server process actually binds inside the
	// container. ExposePort and BindPort are independent facts: they may
	// disagree, and a disagreement is reported as a defect, never
	// reconciled in either direction.
	BindPort int `json:"bindPort"`

	// Revision is the Git commit the build context was taken from, with
	// a "-dirty" suffix when the working tree had uncommitted changes.
	// Empty when the context was not a Git checkout.
	Revision string `json:"revision,omitempty"`

	// Status is the current lifecycle state of the environment.
	Status BootstrapStatus `json:"status"`

	// CreatedAt is the timestamp when the image was built.
	CreatedAt time.Time `json:"createdAt"`

	// Containers holds information about the Docker containers created
	// from this app's image. Usually zero or one — the tool starts exactly
	// one foreground process per container.
	Containers []ContainerInfo `json:"containers,omitempty"`
}

// nameRegex validates app names: alphanumeric + hyphens only,
// must start and end with alphanumeric.
var nameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9-]*[a-zA-Z0-9]$|^[a-zA-Z0-9]$`)

// maxNameLength caps app names so they stay usable as container names,
// image repository components, and label values.
const maxNameLength = 63

// ValidateName checks if the given name is a valid app name.
// Valid names contain only alphanumeric characters and hyphens,
// must start/end with an alphanumeric character, and are at most
// 63 characters long.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("app name must not be empty")
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("app name %q too long: %d characters (max %d)", name, len(name), maxNameLength)
	}
	if !nameRegex.MatchString(name) {
		return fmt.Errorf("invalid app name %q: must contain only alphanumeric characters and hyphens, and start/end with alphanumeric", name)
	}
	return nil
}

// ContainerInfo holds runtime information about a Docker container.
// This data is fetched dynamically from the Docker API, not persisted.
type ContainerInfo struct {
	// ContainerID is the unique Docker container identifier.
	ContainerID string `json:"containerId"`

	// ContainerName is the human-readable Docker container name,
	// without the leading "/" the Docker API prepends.
	ContainerName string `json:"containerName"`

	// App is the application name recovered from the container's labels.
	App string `json:"app"`

	// Image is the image reference the container was created from.
	Image string `json:"image"`

	// State is the raw Docker state string ("running", "exited", "created").
	State string `json:"state"`

	// Status is the human-readable status line from the Docker API
	// (e.g., "Up 2 minutes", "Exited (1) 5 seconds ago").
	Status string `json:"status"`

	// Labels is the full set of Docker labels on the container.
	// Includes gangway management labels (gangway.* prefix).
	Labels map[string]string `json:"labels,omitempty"`

	// Ports holds the container's port mappings as reported by the API.
	Ports []PortSpec `json:"ports,omitempty"`
}

// PortSpec represents a single port mapping between a container port
// and a host port.
type PortSpec struct {
	// ContainerPort is the port number inside the container (1-65535).
	ContainerPort int `json:"containerPort"`

	// HostPort is the published port on the host machine.
	// Zero means the port is exposed but not published.
	HostPort int `json:"hostPort"`

	// Protocol is the network protocol for the port mapping.
	// Defaults to "tcp". Also supports "udp".
	Protocol string `json:"protocol"`
}

// Validate checks whether the PortSpec has valid field values.
// It verifies port number ranges and protocol values.
func (p *PortSpec) Validate() error {
	if p.ContainerPort < 1 || p.ContainerPort > 65535 {
		return fmt.Errorf("port spec: container port %d out of range (1-65535)", p.ContainerPort)
	}
	if p.HostPort != 0 && (p.HostPort < 1 || p.HostPort > 65535) {
		return fmt.Errorf("port spec: host port %d out of range (1-65535)", p.HostPort)
	}
	if p.Protocol == "" {
		p.Protocol = "tcp"
	}
	if p.Protocol != "tcp" && p.Protocol != "udp" {
		return fmt.Errorf("port spec: invalid protocol %q (valid: tcp, udp)", p.Protocol)
	}
	return nil
}

// String returns a human-readable representation of the port spec.
// Format: "hostPort:containerPort/protocol", or "containerPort/protocol"
// when the port is not published.
func (p *PortSpec) String() string {
	proto := p.Protocol
	if proto == "" {
		proto = "tcp"
	}
	if p.HostPort == 0 {
		return fmt.Sprintf("%d/%s", p.ContainerPort, proto)
	}
	return fmt.Sprintf("%d:%d/%s", p.HostPort, p.ContainerPort, proto)
}

// ExitCode defines the CLI's process exit codes. These codes allow
// scripts and CI systems to programmatically determine the outcome of
// a command.
//
// Exception: `run --attach` propagates the container's own exit code
// verbatim, because the container exit code equals the server process
// exit code.
type ExitCode int

const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitUsageError indicates invalid flags or arguments.
	ExitUsageError ExitCode = 2

	// ExitManifestError indicates the bootstrap manifest is missing,
	// unparsable, or failed validation.
	ExitManifestError ExitCode = 3

	// ExitBuildFailed indicates an image build step failed. Builds are
	// atomic: any failing step aborts the whole build and no image is
	// tagged, so this code always means no runnable image was produced.
	ExitBuildFailed ExitCode = 4

	// ExitDockerUnavailable indicates the Docker daemon is not accessible.
	ExitDockerUnavailable ExitCode = 5

	// ExitContainerFailed indicates a container lifecycle operation
	// (create, start, stop, remove, wait) failed.
	ExitContainerFailed ExitCode = 6

	// ExitVerifyFailed indicates one or more verification checks failed
	// (process state, bound port, dependency drift, HTTP probe).
	ExitVerifyFailed ExitCode = 7
)

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
// This follows Go's error wrapping convention introduced in Go 1.13.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}
