// fingerprint.go computes the dependency fingerprint: a deterministic
// SHA-256 over the canonicalized declared dependency set plus the raw lock
// file bytes. Identical inputs always produce the identical digest, which
// is what makes "re-building an unchanged context yields the same
// dependency set" checkable: the fingerprint is stamped on built images
// (gangway.deps-digest) and recomputed by `verify` for drift detection.
package deps

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mmr-tortoise/gangway/internal/model"
)

// Fingerprint computes the dependency fingerprint for the application
// under dir. The digest covers:
//
//  1. The canonicalized declared set: one "group|name|constraint" line per
//     requirement, sorted, names normalized (lowercase, "_" → "-" for the
//     Python managers where those spellings are equivalent), constraints
//     verbatim.
//  2. The raw lock file bytes, when a lock file exists. A wildcard lock
//     entry with no lock file present fingerprints the declared set only.
//
// The same declared set with a changed lock therefore changes the
// fingerprint, and vice versa.
func Fingerprint(dir string, manager model.DependencyManager, files []string) (string, error) {
	declared, err := Declared(dir, manager, files)
	if err != nil {
		return "", fmt.Errorf("failed to enumerate declared dependencies: %w", err)
	}

	h := sha256.New()
	for _, line := range CanonicalLines(manager, declared) {
		// Hash writes never fail.
		_, _ = fmt.Fprintln(h, line)
	}

	if lockName := LockFileName(manager); lockName != "" {
		lockData, err := os.ReadFile(filepath.Join(dir, lockName))
		if err == nil {
			_, _ = h.Write(lockData)
		} else if !os.IsNotExist(err) {
			return "", fmt.Errorf("failed to read %s: %w", lockName, err)
		}
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// CanonicalLines renders a declared set in its canonical text form:
// sorted "group|name|constraint" lines with manager-appropriate name
// normalization. Exposed for tests and for human-readable drift reports.
func CanonicalLines(manager model.DependencyManager, declared []Requirement) []string {
	normalized := make([]Requirement, len(declared))
	for i, req := range declared {
		req.Name = canonicalName(manager, req.Name)
		normalized[i] = req
	}
	sortRequirements(normalized)

	lines := make([]string, len(normalized))
	for i, req := range normalized {
		lines[i] = req.Group + "|" + req.Name + "|" + req.Constraint
	}
	return lines
}

// canonicalName normalizes a package name for fingerprinting. Python
// package names are case-insensitive and treat "-" and "_" as equivalent
// (PEP 503); npm names are case-sensitive and kept as-is.
func canonicalName(manager model.DependencyManager, name string) string {
	switch manager {
	case model.ManagerPoetry, model.ManagerPip:
		out := make([]byte, len(name))
		for i := 0; i < len(name); i++ {
			c := name[i]
			if c >= 'A' && c <= 'Z' {
				c += 'a' - 'A'
			}
			if c == '_' {
				c = '-'
			}
			out[i] = c
		}
		return string(out)
	default:
		return name
	}
}
