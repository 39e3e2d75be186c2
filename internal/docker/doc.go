// Package docker provides Docker Engine API wrappers for building and
// running gangway bootstraps.
//
// This package handles:
//   - Docker client initialization with automatic socket detection
//     (Linux, macOS, Windows)
//   - Image builds from a streamed build-context tar, with the daemon's
//     progress relayed through the jsonmessage decoder and any error
//     frame failing the build outright
//   - Label management for persisting bootstrap metadata on images and
//     containers (Docker labels are the sole state storage mechanism)
//   - Container lifecycle: run, wait, attach, list, stop, remove — one
//     container per bootstrap, restart policy fixed to "no" so the
//     server's exit code is the container's exit code
//
// The package uses github.com/docker/docker/client as the underlying
// Docker SDK, with version negotiation enabled for broad compatibility.
package docker
