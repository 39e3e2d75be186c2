// Package manifest handles discovery, parsing, and validation of
// bootstrap.json manifests for the gangway CLI.
//
// A manifest declares everything a build needs:
//
//   - The base image and optional OS package list
//   - The dependency manager (poetry, pip, or npm) and its files
//   - Environment variables baked into the image, or an env file
//     injected at run time
//   - The source path, ignore patterns, and the server command
//
// The manifest is the single source of truth: gangway keeps no state
// files of its own, so every downstream artifact (build plan,
// Dockerfile, image labels) derives from the parsed manifest plus the
// digest of its raw bytes.
//
// Validation separates errors from warnings. Errors block the plan;
// warnings — port documentation mismatches, isolated-environment
// installs, unknown fields — are reported and preserved, never silently
// fixed. The documented-vs-bound port discrepancy in particular is flagged
// on every validate, build, and verify, but the manifest is built exactly
// as written.
//
// JSONC (JSON with Comments) is supported via github.com/tidwall/jsonc,
// since bootstrap.json files are commonly annotated in place.
package manifest
