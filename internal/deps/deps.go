// deps.go parses the application's dependency manifests: pyproject.toml
// for poetry, requirements files for pip, and package.json for npm.
//
// The package answers two questions about an application directory:
// what does it declare (Declared), and what exact versions does its lock
// file pin (LockedVersions). Both feed the dependency fingerprint in
// fingerprint.go.
package deps

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/mmr-tortoise/gangway/internal/model"
)

// Requirement is a single declared dependency, kept verbatim as written
// in the source manifest. Constraint carries the raw version specifier
// including any environment markers; an unparsable line is carried
// verbatim in Name with an empty Constraint rather than rejected.
type Requirement struct {
	// Name is the package name as declared.
	Name string `json:"name"`

	// Constraint is the raw version specifier (e.g. "^0.104.1",
	// ">=2.0,<3.0", "~5.3.0"). Empty when the declaration carries none.
	Constraint string `json:"constraint,omitempty"`

	// Group is the dependency group: "" for main dependencies, the poetry
	// group name (e.g. "dev") or "dev" for npm devDependencies otherwise.
	Group string `json:"group,omitempty"`
}

// DetectKind classifies a dependency file list by the manager its entries
// belong to. Wildcards are ignored for classification (a "poetry.lock*"
// entry names a lock file, which does not classify on its own — the
// pyproject.toml next to it does).
//
// Returns the zero value when no entry is recognizable.
func DetectKind(files []string) model.DependencyManager {
	hasRequirements := false
	hasPackageJSON := false

	for _, file := range files {
		base := strings.TrimSuffix(filepath.Base(file), "*")
		switch {
		case base == "pyproject.toml":
			// pyproject.toml wins immediately: requirements files next to
			// it are usually exports, not the source of truth.
			return model.ManagerPoetry
		case strings.HasPrefix(base, "requirements") && strings.HasSuffix(base, ".txt"):
			hasRequirements = true
		case base == "package.json":
			hasPackageJSON = true
		}
	}

	if hasRequirements {
		return model.ManagerPip
	}
	if hasPackageJSON {
		return model.ManagerNpm
	}
	return ""
}

// Declared enumerates the requirements declared by the dependency files
// under dir. The files list comes from the manifest (dependencies.files);
// wildcard entries are expanded against the directory, and entries that
// do not belong to the given manager are skipped.
func Declared(dir string, manager model.DependencyManager, files []string) ([]Requirement, error) {
	paths, err := expandFiles(dir, files)
	if err != nil {
		return nil, err
	}

	switch manager {
	case model.ManagerPoetry:
		path, ok := findFile(paths, "pyproject.toml")
		if !ok {
			return nil, fmt.Errorf("pyproject.toml not found among dependency files")
		}
		return parsePyproject(path)

	case model.ManagerPip:
		var reqs []Requirement
		found := false
		for _, path := range paths {
			base := filepath.Base(path)
			if !strings.HasPrefix(base, "requirements") || !strings.HasSuffix(base, ".txt") {
				continue
			}
			found = true
			fileReqs, err := parseRequirements(path)
			if err != nil {
				return nil, err
			}
			reqs = append(reqs, fileReqs...)
		}
		if !found {
			return nil, fmt.Errorf("no requirements file found among dependency files")
		}
		return reqs, nil

	case model.ManagerNpm:
		path, ok := findFile(paths, "package.json")
		if !ok {
			return nil, fmt.Errorf("package.json not found among dependency files")
		}
		return parsePackageJSON(path)

	default:
		return nil, fmt.Errorf("unsupported dependency manager %q", manager)
	}
}

// LockedVersions extracts the exact pinned name → version set from the
// manager's lock file under dir (poetry.lock or package-lock.json).
//
// A missing lock file returns (nil, nil): locks are optional inputs — the
// manifest names them with a trailing wildcard for exactly this reason.
// pip has no lock file format of its own and always returns (nil, nil).
func LockedVersions(dir string, manager model.DependencyManager) (map[string]string, error) {
	lockName := LockFileName(manager)
	if lockName == "" {
		return nil, nil
	}

	path := filepath.Join(dir, lockName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", lockName, err)
	}

	switch manager {
	case model.ManagerPoetry:
		return parsePoetryLock(data)
	case model.ManagerNpm:
		return parsePackageLock(data)
	default:
		return nil, nil
	}
}

// LockFileName returns the lock file name for a manager, or "" when the
// manager has none (pip).
func LockFileName(manager model.DependencyManager) string {
	switch manager {
	case model.ManagerPoetry:
		return "poetry.lock"
	case model.ManagerNpm:
		return "package-lock.json"
	default:
		return ""
	}
}

// expandFiles resolves the manifest's dependency file entries against dir.
// Wildcard entries (trailing "*") expand to whatever matches; a wildcard
// with no match contributes nothing, which is the whole point of marking
// a file optional. Non-wildcard entries are returned as-is whether or not
// they exist — presence checks belong to manifest validation.
func expandFiles(dir string, files []string) ([]string, error) {
	var paths []string
	for _, file := range files {
		if !strings.HasSuffix(file, "*") {
			paths = append(paths, filepath.Join(dir, file))
			continue
		}
		matches, err := filepath.Glob(filepath.Join(dir, file))
		if err != nil {
			return nil, fmt.Errorf("bad dependency file pattern %q: %w", file, err)
		}
		paths = append(paths, matches...)
	}
	return paths, nil
}

// findFile returns the first path whose base name matches name.
func findFile(paths []string, name string) (string, bool) {
	for _, path := range paths {
		if filepath.Base(path) == name {
			return path, true
		}
	}
	return "", false
}

// pyprojectTOML models the subset of pyproject.toml that declares
// dependencies: [tool.poetry.dependencies] and the per-group
// [tool.poetry.group.<name>.dependencies] tables.
type pyprojectTOML struct {
	Tool struct {
		Poetry struct {
			Dependencies map[string]interface{} `toml:"dependencies"`
			Group        map[string]struct {
				Dependencies map[string]interface{} `toml:"dependencies"`
			} `toml:"group"`
		} `toml:"poetry"`
	} `toml:"tool"`
}

// parsePyproject reads poetry dependency declarations from pyproject.toml.
// Main dependencies get Group "", grouped dependencies carry their group
// name. Output is sorted by (group, name) so callers see stable order
// regardless of TOML table iteration.
func parsePyproject(path string) ([]Requirement, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pyproject.toml: %w", err)
	}

	var doc pyprojectTOML
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse pyproject.toml: %w", err)
	}

	var reqs []Requirement
	for name, value := range doc.Tool.Poetry.Dependencies {
		reqs = append(reqs, Requirement{Name: name, Constraint: constraintString(value)})
	}
	for group, table := range doc.Tool.Poetry.Group {
		for name, value := range table.Dependencies {
			reqs = append(reqs, Requirement{Name: name, Constraint: constraintString(value), Group: group})
		}
	}

	sortRequirements(reqs)
	return reqs, nil
}

// constraintString renders a poetry dependency value as a version
// constraint. Declarations are either plain strings ("^2.5.0") or inline
// tables ({version = "^2.0", extras = [...]}); a table without a version
// key (e.g. git or path dependencies) renders as "*".
func constraintString(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case map[string]interface{}:
		if version, ok := v["version"].(string); ok {
			return version
		}
		return "*"
	default:
		return "*"
	}
}

// requirementSeparators are the pip version comparison operators, longest
// first so "==" is not split as "=" + "=".
var requirementSeparators = []string{"===", "==", ">=", "<=", "~=", "!=", ">", "<"}

// parseRequirements reads pip requirement lines. Comments and blank lines
// are skipped, option lines (-r, --index-url, ...) are skipped, and
// environment markers are kept verbatim in the constraint. A line with no
// recognizable specifier is carried as a bare name rather than rejected.
func parseRequirements(path string) ([]Requirement, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}

	var reqs []Requirement
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") {
			continue
		}

		// Strip a trailing comment. Requirement lines cannot contain "#"
		// outside comments, so splitting on the first occurrence is safe.
		if idx := strings.Index(line, "#"); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
			if line == "" {
				continue
			}
		}

		reqs = append(reqs, parseRequirementLine(line))
	}

	sortRequirements(reqs)
	return reqs, nil
}

// parseRequirementLine splits a single requirement line into name and
// constraint at the first version comparator. Extras ("uvicorn[standard]")
// stay with the name; markers and the specifier stay verbatim in the
// constraint.
func parseRequirementLine(line string) Requirement {
	splitAt := len(line)
	for _, sep := range requirementSeparators {
		if idx := strings.Index(line, sep); idx >= 0 && idx < splitAt {
			splitAt = idx
		}
	}

	name := strings.TrimSpace(line[:splitAt])
	constraint := strings.TrimSpace(line[splitAt:])
	if name == "" {
		// No name before the comparator: unparsable, carry the whole
		// line verbatim.
		return Requirement{Name: line}
	}
	return Requirement{Name: name, Constraint: constraint}
}

// packageJSON models the dependency-declaring subset of package.json.
type packageJSON struct {
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

// parsePackageJSON reads npm dependency declarations from package.json.
// devDependencies carry Group "dev".
func parsePackageJSON(path string) ([]Requirement, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read package.json: %w", err)
	}

	var doc packageJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse package.json: %w", err)
	}

	var reqs []Requirement
	for name, constraint := range doc.Dependencies {
		reqs = append(reqs, Requirement{Name: name, Constraint: constraint})
	}
	for name, constraint := range doc.DevDependencies {
		reqs = append(reqs, Requirement{Name: name, Constraint: constraint, Group: "dev"})
	}

	sortRequirements(reqs)
	return reqs, nil
}

// poetryLockTOML models the [[package]] entries of poetry.lock.
type poetryLockTOML struct {
	Package []struct {
		Name    string `toml:"name"`
		Version string `toml:"version"`
	} `toml:"package"`
}

// parsePoetryLock extracts the pinned name → version set from poetry.lock.
func parsePoetryLock(data []byte) (map[string]string, error) {
	var lock poetryLockTOML
	if err := toml.Unmarshal(data, &lock); err != nil {
		return nil, fmt.Errorf("failed to parse poetry.lock: %w", err)
	}

	pinned := make(map[string]string, len(lock.Package))
	for _, pkg := range lock.Package {
		pinned[pkg.Name] = pkg.Version
	}
	return pinned, nil
}

// packageLockJSON models both package-lock.json formats: v2/v3 with the
// "packages" map keyed by node_modules paths, and v1 with the flat
// "dependencies" map.
type packageLockJSON struct {
	Packages map[string]struct {
		Version string `json:"version"`
	} `json:"packages"`
	Dependencies map[string]struct {
		Version string `json:"version"`
	} `json:"dependencies"`
}

// parsePackageLock extracts the pinned name → version set from
// package-lock.json. The v2/v3 "packages" map takes precedence; its ""
// key (the root package itself) is skipped and "node_modules/" prefixes
// are stripped from the rest.
func parsePackageLock(data []byte) (map[string]string, error) {
	var lock packageLockJSON
	if err := json.Unmarshal(data, &lock); err != nil {
		return nil, fmt.Errorf("failed to parse package-lock.json: %w", err)
	}

	pinned := make(map[string]string)
	if len(lock.Packages) > 0 {
		for path, pkg := range lock.Packages {
			if path == "" {
				continue
			}
			name := strings.TrimPrefix(path, "node_modules/")
			// Nested installs ("node_modules/a/node_modules/b") pin the
			// innermost package.
			if idx := strings.LastIndex(name, "node_modules/"); idx >= 0 {
				name = name[idx+len("node_modules/"):]
			}
			pinned[name] = pkg.Version
		}
		return pinned, nil
	}

	for name, pkg := range lock.Dependencies {
		pinned[name] = pkg.Version
	}
	return pinned, nil
}

// sortRequirements orders requirements by (group, name, constraint) for
// stable output across map iteration.
func sortRequirements(reqs []Requirement) {
	sort.Slice(reqs, func(i, j int) bool {
		if reqs[i].Group != reqs[j].Group {
			return reqs[i].Group < reqs[j].Group
		}
		if reqs[i].Name != reqs[j].Name {
			return reqs[i].Name < reqs[j].Name
		}
		return reqs[i].Constraint < reqs[j].Constraint
	})
}
