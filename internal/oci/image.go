// image.go implements registry-grade image plumbing for built bootstrap
// images: reading them out of the local daemon, saving them as standalone
// tarballs for air-gapped transfer, and pushing them to registries.
//
// Everything below the daemon read works on go-containerregistry's
// v1.Image, so the save and push paths never talk to the Docker API
// themselves and can be tested without a daemon.
package oci

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/go-containerregistry/pkg/crane"
	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/daemon"
	"github.com/google/go-containerregistry/pkg/v1/mutate"

	"github.com/mmr-tortoise/gangway/internal/docker"
	"github.com/mmr-tortoise/gangway/internal/model"
)

// FromDaemon reads a built image out of the local Docker daemon by
// reference. The returned image is lazy: layers are pulled from the
// daemon as they are consumed by Save or Push.
func FromDaemon(ctx context.Context, cli *docker.Client, ref string) (v1.Image, error) {
	parsed, err := name.ParseReference(ref)
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitUsageError,
			fmt.Sprintf("invalid image reference %q", ref),
			err,
		)
	}

	img, err := daemon.Image(parsed, daemon.WithContext(ctx), daemon.WithClient(cli.Inner()))
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitGeneralError,
			fmt.Sprintf("failed to read image %q from the Docker daemon", ref),
			err,
		)
	}

	return img, nil
}

// Save writes the image to path as a tarball loadable with "docker load",
// tagged with every reference in refs. With canonical set, timestamps and
// build metadata are normalized first so that saving the same image twice
// yields byte-identical archives.
func Save(img v1.Image, refs []string, path string, canonical bool) error {
	if len(refs) == 0 {
		return model.NewCLIError(model.ExitUsageError, "cannot save an image without a reference")
	}

	if canonical {
		normalized, err := mutate.Canonical(img)
		if err != nil {
			return model.WrapCLIError(
				model.ExitGeneralError,
				"failed to canonicalize image",
				err,
			)
		}
		img = normalized
	}

	// All references point at the same image; the tarball records each
	// as a separate tag on one manifest entry.
	tagged := make(map[string]v1.Image, len(refs))
	for _, ref := range refs {
		tagged[ref] = img
	}

	if err := crane.MultiSave(tagged, path); err != nil {
		return model.WrapCLIError(
			model.ExitGeneralError,
			fmt.Sprintf("failed to save image to %q", path),
			err,
		)
	}

	return nil
}

// Push uploads the image to dest, authenticating with the ambient Docker
// credential config (~/.docker/config.json and credential helpers).
// Extra crane options are appended after the context option; tests use
// this to point pushes at an in-memory registry.
func Push(ctx context.Context, img v1.Image, dest string, opts ...crane.Option) error {
	if _, err := name.ParseReference(dest); err != nil {
		return model.WrapCLIError(
			model.ExitUsageError,
			fmt.Sprintf("invalid push destination %q", dest),
			err,
		)
	}

	craneOpts := append([]crane.Option{crane.WithContext(ctx)}, opts...)
	if err := crane.Push(img, dest, craneOpts...); err != nil {
		return model.WrapCLIError(
			model.ExitGeneralError,
			fmt.Sprintf("failed to push image to %q", dest),
			err,
		)
	}

	return nil
}

// PortConfig returns the TCP ports documented in the image config's
// ExposedPorts, sorted ascending. These are the EXPOSE instructions the
// build baked in — documentation, not bindings — which is exactly why
// verify reads them: to compare what the image documents against what
// the server actually binds.
func PortConfig(img v1.Image) ([]int, error) {
	cfg, err := img.ConfigFile()
	if err != nil {
		return nil, fmt.Errorf("failed to read image config: %w", err)
	}

	ports := make([]int, 0, len(cfg.Config.ExposedPorts))
	for spec := range cfg.Config.ExposedPorts {
		// Keys look like "8000/tcp"; a bare "8000" means tcp as well.
		portPart, proto, found := strings.Cut(spec, "/")
		if found && proto != "tcp" {
			continue
		}
		port, err := strconv.Atoi(portPart)
		if err != nil {
			return nil, fmt.Errorf("malformed exposed port %q in image config: %w", spec, err)
		}
		ports = append(ports, port)
	}

	sort.Ints(ports)
	return ports, nil
}

// Labels returns the labels baked into the image config at build time.
// For gangway-built images this includes the full gangway.* schema, so
// digests can be checked against an image without any container existing.
func Labels(img v1.Image) (map[string]string, error) {
	cfg, err := img.ConfigFile()
	if err != nil {
		return nil, fmt.Errorf("failed to read image config: %w", err)
	}
	return cfg.Config.Labels, nil
}
