// build.go implements the image build path: streaming the deterministic
// build-context tar to the Docker daemon and consuming the build progress
// stream. A build is atomic pass/fail — any error frame in the stream
// fails the whole build, and no gangway image is tagged for it.
package docker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/pkg/jsonmessage"

	"github.com/mmr-tortoise/gangway/internal/model"
)

// ImageRepoPrefix namespaces every image gangway builds.
const ImageRepoPrefix = "gangway/"

// shortDigestLen is how many hex digits of the context digest go into the
// image tag. 12 matches the abbreviation Docker itself uses for IDs.
const shortDigestLen = 12

// ImageRef returns the digest-pinned image reference for an app:
// "gangway/<app>:<context-digest-prefix>". The tag encodes the build
// context identity, so an unchanged tree rebuilds to the same reference.
func ImageRef(app, contextDigest string) string {
	tag := contextDigest
	if len(tag) > shortDigestLen {
		tag = tag[:shortDigestLen]
	}
	return fmt.Sprintf("%s%s:%s", ImageRepoPrefix, app, tag)
}

// LatestRef returns the moving "latest" reference for an app, tagged
// alongside the digest-pinned reference on every successful build.
func LatestRef(app string) string {
	return ImageRepoPrefix + app + ":latest"
}

// BuildOptions configures one image build.
type BuildOptions struct {
	// Tags are the references to apply on success.
	Tags []string

	// Labels are stamped into the image config (the gangway.* schema).
	Labels map[string]string

	// Dockerfile is the name of the Dockerfile within the context tar.
	// Empty means "Dockerfile".
	Dockerfile string

	// NoCache disables layer cache reuse.
	NoCache bool

	// Pull forces a pull of the base image even when present locally.
	Pull bool

	// Progress receives the daemon's build output. Nil discards it.
	Progress io.Writer
}

// BuildResult reports a completed build.
type BuildResult struct {
	// ImageID is the daemon's ID for the built image (sha256:…).
	ImageID string `json:"imageId"`

	// Tags are the references applied to the image.
	Tags []string `json:"tags"`
}

// BuildImage sends the build-context tar stream to the daemon and follows
// the build to completion. The stream is consumed with the jsonmessage
// decoder; an error frame anywhere in it aborts the build with
// ExitBuildFailed, matching the all-or-nothing build contract: a failing
// step leaves no tagged image behind.
func BuildImage(ctx context.Context, cli *Client, buildContext io.Reader, opts BuildOptions) (*BuildResult, error) {
	dockerfile := opts.Dockerfile
	if dockerfile == "" {
		dockerfile = "Dockerfile"
	}

	resp, err := cli.Inner().ImageBuild(ctx, buildContext, types.ImageBuildOptions{
		Tags:       opts.Tags,
		Labels:     opts.Labels,
		Dockerfile: dockerfile,
		NoCache:    opts.NoCache,
		PullParent: opts.Pull,
		// Remove intermediate containers for completed steps; force-remove
		// the one a failing step leaves behind.
		Remove:      true,
		ForceRemove: true,
	})
	if err != nil {
		return nil, model.WrapCLIError(model.ExitBuildFailed, "failed to start image build", err)
	}
	defer func() { _ = resp.Body.Close() }()

	out := opts.Progress
	if out == nil {
		out = io.Discard
	}

	// The daemon reports the final image through an aux frame. Decode just
	// the ID field rather than depending on the SDK's aux payload type.
	result := &BuildResult{Tags: opts.Tags}
	aux := func(msg jsonmessage.JSONMessage) {
		if msg.Aux == nil {
			return
		}
		var payload struct {
			ID string `json:"ID"`
		}
		if err := json.Unmarshal(*msg.Aux, &payload); err == nil && payload.ID != "" {
			result.ImageID = payload.ID
		}
	}

	// DisplayJSONMessagesStream relays progress to out and returns the
	// daemon's error frame as *jsonmessage.JSONError when a step fails.
	if err := jsonmessage.DisplayJSONMessagesStream(resp.Body, out, 0, false, aux); err != nil {
		if jerr, ok := err.(*jsonmessage.JSONError); ok {
			return nil, model.WrapCLIError(model.ExitBuildFailed,
				fmt.Sprintf("build failed: %s", jerr.Message), jerr)
		}
		return nil, model.WrapCLIError(model.ExitBuildFailed, "build failed", err)
	}

	return result, nil
}

// ListManagedImages returns the gangway-built images known to the daemon,
// newest first, optionally filtered to one app.
func ListManagedImages(ctx context.Context, cli *Client, app string) ([]image.Summary, error) {
	filterArgs := filters.NewArgs(
		filters.Arg("label", LabelManagedBy+"="+ManagedByValue),
	)
	if app != "" {
		filterArgs.Add("label", AppFilterLabel(app))
	}

	images, err := cli.Inner().ImageList(ctx, image.ListOptions{Filters: filterArgs})
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitDockerUnavailable,
			"failed to list Docker images",
			err,
		)
	}
	return images, nil
}

// RemoveImage deletes an image reference. With force, the daemon removes
// it even when containers still reference it.
func RemoveImage(ctx context.Context, cli *Client, ref string, force bool) error {
	_, err := cli.Inner().ImageRemove(ctx, ref, image.RemoveOptions{
		Force:         force,
		PruneChildren: true,
	})
	if err != nil {
		return model.WrapCLIError(
			model.ExitContainerFailed,
			fmt.Sprintf("failed to remove image %q", ref),
			err,
		)
	}
	return nil
}
