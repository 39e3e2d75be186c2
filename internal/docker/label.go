package docker

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mmr-tortoise/gangway/internal/model"
)

// Label key constants define the Docker label keys that persist bootstrap
// metadata on images and containers. These labels are the sole persistence
// mechanism — there is no external state file. Everything `gangway list`
// and `gangway verify` know about a bootstrap is reconstructed from them.
//
// All keys share the "gangway." prefix to namespace them away from labels
// set by other tools.
const (
	// LabelPrefix is the common prefix for all gangway labels.
	LabelPrefix = "gangway."

	// LabelManagedBy identifies images and containers managed by gangway.
	// This is the primary label used for filtering and discovery.
	// Key: "gangway.managed-by", Value: always "gangway".
	LabelManagedBy = LabelPrefix + "managed-by"

	// LabelApp stores the bootstrap's app name from the manifest.
	// Key: "gangway.app", Value: manifest name (e.g., "order-api").
	LabelApp = LabelPrefix + "app"

	// LabelManifestDigest stores the hex SHA-256 of the raw manifest bytes
	// the image was built from.
	LabelManifestDigest = LabelPrefix + "manifest-digest"

	// LabelDepsDigest stores the dependency fingerprint at build time.
	// Verify recomputes the fingerprint from the working tree and compares
	// it against this label to detect dependency drift.
	LabelDepsDigest = LabelPrefix + "deps-digest"

	// LabelContextDigest stores the build-context digest. An unchanged
	// source tree rebuilds to the same value.
	LabelContextDigest = LabelPrefix + "context-digest"

	// LabelExposePort stores the documented port (the manifest's expose
	// value, what EXPOSE declares).
	LabelExposePort = LabelPrefix + "expose-port"

	// LabelBindPort stores the port the start command actually binds.
	// When it differs from LabelExposePort the image carries the
	// documented-port defect, preserved as built.
	LabelBindPort = LabelPrefix + "bind-port"

	// LabelBaseImage stores the base image the bootstrap was built on.
	LabelBaseImage = LabelPrefix + "base-image"

	// LabelRevision stores the git revision of the source tree at build
	// time, "-dirty"-suffixed for modified trees. Optional: empty when
	// the source was not a git checkout.
	LabelRevision = LabelPrefix + "revision"

	// LabelCreatedAt stores the build timestamp.
	// Key: "gangway.created-at", Value: RFC3339 formatted timestamp.
	LabelCreatedAt = LabelPrefix + "created-at"
)

// ManagedByValue is the constant value for the LabelManagedBy label.
const ManagedByValue = "gangway"

// BuildLabels constructs the Docker label map for a bootstrap. The same
// map is stamped on the image at build time and on every container created
// from it, so either artifact alone is enough to reconstruct the
// Bootstrap.
func BuildLabels(b *model.Bootstrap) map[string]string {
	labels := map[string]string{
		LabelManagedBy:      ManagedByValue,
		LabelApp:            b.App,
		LabelManifestDigest: b.ManifestDigest,
		LabelDepsDigest:     b.DepsDigest,
		LabelContextDigest:  b.ContextDigest,
		LabelExposePort:     strconv.Itoa(b.ExposePort),
		LabelBindPort:       strconv.Itoa(b.BindPort),
		LabelBaseImage:      b.BaseImage,
		// time.RFC3339 in UTC keeps timestamps comparable regardless of
		// the build host's timezone.
		LabelCreatedAt: b.CreatedAt.UTC().Format(time.RFC3339),
	}

	// The revision label is only present when the source tree was a git
	// checkout. An absent label is distinguishable from an empty value.
	if b.Revision != "" {
		labels[LabelRevision] = b.Revision
	}

	return labels
}

// ParseLabels reconstructs a Bootstrap from a gangway label map. This is
// the inverse of BuildLabels and is used when listing images or
// containers to rebuild the domain model.
//
// Required labels: managed-by, app, manifest-digest, deps-digest,
// context-digest, expose-port, bind-port, base-image, created-at.
// Revision is optional. Status and Containers are not reconstructed here
// because they come from runtime container state, not labels.
func ParseLabels(labels map[string]string) (*model.Bootstrap, error) {
	// Collect all missing labels before failing, so one error names
	// everything that is wrong.
	requiredKeys := []string{
		LabelManagedBy,
		LabelApp,
		LabelManifestDigest,
		LabelDepsDigest,
		LabelContextDigest,
		LabelExposePort,
		LabelBindPort,
		LabelBaseImage,
		LabelCreatedAt,
	}

	var missing []string
	for _, key := range requiredKeys {
		if _, ok := labels[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required Docker labels: %s", strings.Join(missing, ", "))
	}

	if labels[LabelManagedBy] != ManagedByValue {
		return nil, fmt.Errorf(
			"label %s has unexpected value %q (expected %q)",
			LabelManagedBy, labels[LabelManagedBy], ManagedByValue,
		)
	}

	exposePort, err := strconv.Atoi(labels[LabelExposePort])
	if err != nil {
		return nil, fmt.Errorf("invalid label %s: %w", LabelExposePort, err)
	}
	bindPort, err := strconv.Atoi(labels[LabelBindPort])
	if err != nil {
		return nil, fmt.Errorf("invalid label %s: %w", LabelBindPort, err)
	}

	createdAt, err := time.Parse(time.RFC3339, labels[LabelCreatedAt])
	if err != nil {
		return nil, fmt.Errorf("invalid label %s: %w", LabelCreatedAt, err)
	}

	return &model.Bootstrap{
		App:            labels[LabelApp],
		BaseImage:      labels[LabelBaseImage],
		ManifestDigest: labels[LabelManifestDigest],
		DepsDigest:     labels[LabelDepsDigest],
		ContextDigest:  labels[LabelContextDigest],
		ExposePort:     exposePort,
		BindPort:       bindPort,
		Revision:       labels[LabelRevision],
		CreatedAt:      createdAt,
	}, nil
}

// FilterLabels returns the label selector that matches everything gangway
// manages, for server-side filtering in list endpoints.
func FilterLabels() map[string]string {
	return map[string]string{
		LabelManagedBy: ManagedByValue,
	}
}

// AppFilterLabel returns the label selector value for a specific app.
func AppFilterLabel(app string) string {
	return LabelApp + "=" + app
}
