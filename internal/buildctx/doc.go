// Package buildctx assembles the deterministic build context a gangway
// build sends to the Docker daemon.
//
// The context is the manifest's source tree filtered by its ignore
// patterns, plus injected in-memory entries such as the rendered
// Dockerfile. Files are ordered by path and tar headers are normalized
// (zeroed timestamps and ownership, modes reduced to 0644/0755), so the
// same tree always produces byte-identical tar streams. The SHA-256 of
// that stream is the context digest recorded on the image: rebuilding an
// unchanged tree reproduces the digest, and any source edit changes it.
//
// The package also resolves the git revision of the source tree for the
// image's revision label, shelling out to the git CLI the same way the
// rest of the tool does.
package buildctx
