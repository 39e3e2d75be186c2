// Package plan compiles a validated bootstrap manifest into the ordered
// build step list and renders it as a Dockerfile.
//
// A plan is strictly sequential: each step depends on the previous one,
// there is no branching and no retry, and any failing step aborts the
// whole build. The canonical step order keeps dependency layers cacheable
// (manifests copy before resolution, resolution precedes the source copy)
// and keeps EXPOSE ahead of CMD. The EXPOSE instruction is rendered
// exactly as the manifest documents it, even when validation has flagged
// it as disagreeing with the port the command binds.
//
// Rendering is deterministic: one plan, one byte sequence. The generated
// Dockerfile never touches the working tree during builds — it is
// injected into the build-context tar instead.
package plan
