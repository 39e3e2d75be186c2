// manifest.go handles locating, loading, and parsing the bootstrap manifest.
//
// The bootstrap manifest (bootstrap.json) is the tool's primary input: a
// declarative description of the base image, dependency manager, files to
// copy, environment, documented port, and launch command. JSONC (JSON with
// comments and trailing commas) is tolerated via github.com/tidwall/jsonc,
// matching how editor-maintained config files are written in practice.
//
// Loading is split in two:
//  1. Parse decodes the manifest into the typed Manifest struct and applies
//     defaults (workdir, bind host, source path, dependency file lists).
//  2. Unknown keys are collected from a map-based re-parse and recorded on
//     the Manifest, so Validate can report them as warnings without
//     rejecting manifests written against a newer schema.
package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/tidwall/jsonc"

	"github.com/mmr-tortoise/gangway/internal/model"
)

// Default values applied by Parse when the manifest omits a field.
const (
	// DefaultWorkdir is the in-image working directory.
	DefaultWorkdir = "/app"

	// DefaultHost is the address the server binds when command.host is
	// omitted. Binding all interfaces is what makes the published port
	// reachable from outside the container.
	DefaultHost = "0.0.0.0"

	// DefaultSourcePath is the build context root relative to the manifest.
	DefaultSourcePath = "."
)

// Manifest is the parsed bootstrap manifest.
//
// Field values are kept exactly as written — in particular Expose and
// Command.Port are independent declarations. When they disagree (the
// original artifact documents 8000 but binds 8001), validation reports
// the discrepancy and the build preserves both values as-is.
type Manifest struct {
	// Name is the app name, used for image tags, container names, and labels.
	Name string `json:"name"`

	// BaseImage is the fixed base runtime image (build step 1).
	BaseImage string `json:"baseImage"`

	// Workdir is the in-image working directory. Defaults to /app.
	Workdir string `json:"workdir"`

	// OSPackages lists OS-level build tool packages installed before
	// dependency resolution (build step 2), e.g. build-essential for
	// native extension compilation.
	OSPackages []string `json:"osPackages"`

	// Dependencies describes the dependency manager and its input files.
	Dependencies Dependencies `json:"dependencies"`

	// Env is baked into the image as ENV instructions, rendered before
	// dependency resolution so resolution observes it.
	Env map[string]string `json:"env"`

	// EnvFile optionally names a dotenv-style file whose keys are baked
	// into the image alongside Env. Relative to the manifest directory.
	EnvFile string `json:"envFile"`

	// Source describes the build context root and ignore patterns.
	Source Source `json:"source"`

	// Expose is the documented port (build step 8, the EXPOSE instruction).
	// Documentation only: it publishes and binds nothing.
	Expose int `json:"expose"`

	// Command is the container start command (build step 9).
	Command Command `json:"command"`

	// unknownFields holds dotted paths of manifest keys that are not part
	// of the schema, recorded at parse time and reported by Validate as
	// warnings rather than errors.
	unknownFields []string
}

// Dependencies describes how the application's dependencies are declared
// and resolved.
type Dependencies struct {
	// Manager selects the dependency manager: poetry, pip, or npm.
	Manager model.DependencyManager `json:"manager"`

	// ManagerVersion optionally pins the manager install (build step 4),
	// e.g. "1.8.3" renders as `pip install poetry==1.8.3`.
	ManagerVersion string `json:"managerVersion"`

	// Files lists the dependency manifest files copied into the image
	// before the rest of the source (build step 3). Entries may carry a
	// trailing "*" wildcard so an optional lock file does not fail the
	// copy (e.g. "poetry.lock*").
	Files []string `json:"files"`

	// SharedEnvironment installs packages into the shared interpreter
	// environment instead of an isolated one (build step 5). For Poetry
	// this renders `poetry config virtualenvs.create false`, so the
	// launch command sees the installed packages without environment
	// activation.
	SharedEnvironment bool `json:"sharedEnvironment"`
}

// Source describes the build context.
type Source struct {
	// Path is the context root relative to the manifest directory.
	// Defaults to ".".
	Path string `json:"path"`

	// Ignore lists glob patterns (gobwas/glob syntax, ** supported)
	// excluded from the build context. ".git" is always excluded.
	Ignore []string `json:"ignore"`
}

// Command is the container start command (build step 9).
type Command struct {
	// Argv is the command in exec form, run under the dependency manager
	// (e.g. ["poetry", "run", "uvicorn", "app.main:app", ...]).
	Argv []string `json:"argv"`

	// Host is the bind address. Defaults to 0.0.0.0.
	Host string `json:"host"`

	// Port is the port the server actually binds. Independent from
	// Expose — the two are never reconciled against each other.
	Port int `json:"port"`
}

// UnknownFields returns the dotted paths of manifest keys that are not
// part of the schema, in sorted order. Populated by Parse.
func (m *Manifest) UnknownFields() []string {
	return m.unknownFields
}

// manifestCandidates lists the file names FindManifest probes, in
// precedence order.
var manifestCandidates = []string{
	"bootstrap.json",
	"bootstrap.jsonc",
	filepath.Join(".gangway", "bootstrap.json"),
}

// FindManifest locates the bootstrap manifest under dir.
//
// When preferred is non-empty (from configuration), it is probed first;
// then the standard candidates: bootstrap.json, bootstrap.jsonc,
// .gangway/bootstrap.json. Returns the path of the first file that exists.
//
// Returns a CLIError with ExitManifestError when no manifest is found.
func FindManifest(dir, preferred string) (string, error) {
	candidates := manifestCandidates
	if preferred != "" {
		candidates = append([]string{preferred}, manifestCandidates...)
	}

	for _, candidate := range candidates {
		path := filepath.Join(dir, candidate)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}

	return "", model.NewCLIError(
		model.ExitManifestError,
		fmt.Sprintf("no bootstrap manifest found in %s (tried: bootstrap.json, bootstrap.jsonc, .gangway/bootstrap.json)", dir),
	)
}

// Load reads and parses the bootstrap manifest at the given path.
// Returns a CLIError with ExitManifestError on read or parse failure.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitManifestError, "failed to read bootstrap manifest", err)
	}

	m, err := Parse(data)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitManifestError, "failed to parse bootstrap manifest", err)
	}
	return m, nil
}

// Parse decodes manifest bytes (JSONC tolerated) into a Manifest and
// applies defaults. Unknown keys are recorded on the returned Manifest
// for Validate to report.
func Parse(data []byte) (*Manifest, error) {
	// Strip JSONC comments and trailing commas before decoding.
	// jsonc.ToJSON replaces comments with whitespace, so byte offsets
	// in decode errors still point at the original file.
	cleanJSON := jsonc.ToJSON(data)

	var m Manifest
	if err := json.Unmarshal(cleanJSON, &m); err != nil {
		return nil, fmt.Errorf("invalid manifest JSON: %w", err)
	}

	applyDefaults(&m)

	// Collect unknown keys from a map-based re-parse. A failed re-parse
	// cannot happen here (the bytes already decoded above), but the map
	// decode is kept separate so the typed decode stays strict about types.
	var configMap map[string]interface{}
	if err := json.Unmarshal(cleanJSON, &configMap); err == nil {
		m.unknownFields = collectUnknownFields(configMap)
	}

	return &m, nil
}

// applyDefaults fills in the documented default values for omitted fields.
func applyDefaults(m *Manifest) {
	if m.Workdir == "" {
		m.Workdir = DefaultWorkdir
	}
	if m.Source.Path == "" {
		m.Source.Path = DefaultSourcePath
	}
	if m.Command.Host == "" {
		m.Command.Host = DefaultHost
	}

	// Default dependency file lists per manager, mirroring the usual
	// manifest-plus-optional-lock layout. The lock entry carries a
	// trailing wildcard so its absence does not fail the copy step.
	if len(m.Dependencies.Files) == 0 {
		switch m.Dependencies.Manager {
		case model.ManagerPoetry:
			m.Dependencies.Files = []string{"pyproject.toml", "poetry.lock*"}
		case model.ManagerPip:
			m.Dependencies.Files = []string{"requirements.txt"}
		case model.ManagerNpm:
			m.Dependencies.Files = []string{"package.json", "package-lock.json*"}
		}
	}
}

// knownKeys maps a manifest object path ("" for the top level) to the
// set of keys the schema defines there. Used by collectUnknownFields.
var knownKeys = map[string]map[string]bool{
	"": {
		"name": true, "baseImage": true, "workdir": true, "osPackages": true,
		"dependencies": true, "env": true, "envFile": true, "source": true,
		"expose": true, "command": true,
	},
	"dependencies": {
		"manager": true, "managerVersion": true, "files": true, "sharedEnvironment": true,
	},
	"source": {
		"path": true, "ignore": true,
	},
	"command": {
		"argv": true, "host": true, "port": true,
	},
}

// collectUnknownFields walks the manifest's generic map form and returns
// dotted paths for keys the schema does not define, sorted for stable
// output. Only the nested objects the schema defines (dependencies,
// source, command) are descended into — env is a free-form map.
func collectUnknownFields(configMap map[string]interface{}) []string {
	var unknown []string

	for key, value := range configMap {
		if !knownKeys[""][key] {
			unknown = append(unknown, key)
			continue
		}

		// Descend into schema-defined nested objects.
		nested, hasNested := knownKeys[key]
		if !hasNested {
			continue
		}
		obj, ok := value.(map[string]interface{})
		if !ok {
			continue
		}
		for nestedKey := range obj {
			if !nested[nestedKey] {
				unknown = append(unknown, key+"."+nestedKey)
			}
		}
	}

	sort.Strings(unknown)
	return unknown
}

// Digest returns the SHA-256 digest of the raw manifest bytes as a hex
// string. Stamped on built images (gangway.manifest-digest) so a running
// container can be traced back to the exact manifest that produced it.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
