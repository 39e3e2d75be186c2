// Package deps inspects the application's dependency manifests for the
// gangway CLI.
//
// It parses the three supported declaration formats — pyproject.toml
// (poetry, via TOML), requirements files (pip), and package.json (npm) —
// plus their lock files, and computes a deterministic dependency
// fingerprint from them.
//
// The fingerprint is the tool's reproducibility anchor: it is stamped on
// every built image as the gangway.deps-digest label, and `verify`
// recomputes it from the current working tree to detect drift between
// what an image was built from and what the tree declares now. Identical
// inputs always hash to the identical fingerprint.
package deps
