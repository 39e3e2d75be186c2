package docker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/gangway/internal/model"
)

// validLabels returns a complete gangway label map carrying the
// documented-port defect (expose 8000, bind 8001).
func validLabels() map[string]string {
	return map[string]string{
		LabelManagedBy:      ManagedByValue,
		LabelApp:            "order-api",
		LabelManifestDigest: "aaaa1111",
		LabelDepsDigest:     "bbbb2222",
		LabelContextDigest:  "cccc3333",
		LabelExposePort:     "8000",
		LabelBindPort:       "8001",
		LabelBaseImage:      "python:3.11-slim",
		LabelRevision:       "deadbeef",
		LabelCreatedAt:      "2026-02-28T10:00:00Z",
	}
}

// TestBuildLabels verifies that BuildLabels converts a Bootstrap into a
// Docker label map with all required keys and values.
func TestBuildLabels(t *testing.T) {
	createdAt := time.Date(2026, 2, 28, 10, 0, 0, 0, time.UTC)
	b := &model.Bootstrap{
		App:            "order-api",
		BaseImage:      "python:3.11-slim",
		ManifestDigest: "aaaa1111",
		DepsDigest:     "bbbb2222",
		ContextDigest:  "cccc3333",
		ExposePort:     8000,
		BindPort:       8001,
		Revision:       "deadbeef-dirty",
		CreatedAt:      createdAt,
	}

	labels := BuildLabels(b)

	assert.Equal(t, ManagedByValue, labels[LabelManagedBy],
		"managed-by label should always be set to the constant value")
	assert.Equal(t, "order-api", labels[LabelApp])
	assert.Equal(t, "python:3.11-slim", labels[LabelBaseImage])
	assert.Equal(t, "aaaa1111", labels[LabelManifestDigest])
	assert.Equal(t, "bbbb2222", labels[LabelDepsDigest])
	assert.Equal(t, "cccc3333", labels[LabelContextDigest])
	assert.Equal(t, "deadbeef-dirty", labels[LabelRevision])
	assert.Equal(t, "2026-02-28T10:00:00Z", labels[LabelCreatedAt])

	// The two port labels record the defect independently: the documented
	// port and the bound port are both preserved exactly as built.
	assert.Equal(t, "8000", labels[LabelExposePort])
	assert.Equal(t, "8001", labels[LabelBindPort])

	assert.Len(t, labels, 10, "expected 9 required labels + revision")
}

// TestBuildLabels_NoRevision verifies a bootstrap built outside a git
// checkout omits the revision label entirely.
func TestBuildLabels_NoRevision(t *testing.T) {
	b := &model.Bootstrap{
		App:            "order-api",
		BaseImage:      "python:3.11-slim",
		ManifestDigest: "a",
		DepsDigest:     "b",
		ContextDigest:  "c",
		ExposePort:     8000,
		BindPort:       8000,
		CreatedAt:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	labels := BuildLabels(b)

	assert.Len(t, labels, 9)
	_, present := labels[LabelRevision]
	assert.False(t, present, "revision label should be absent, not empty")
}

// TestParseLabels verifies that ParseLabels reconstructs a Bootstrap from
// a Docker label map. This is the inverse of BuildLabels.
func TestParseLabels(t *testing.T) {
	b, err := ParseLabels(validLabels())
	require.NoError(t, err, "ParseLabels should succeed with valid labels")

	assert.Equal(t, "order-api", b.App)
	assert.Equal(t, "python:3.11-slim", b.BaseImage)
	assert.Equal(t, "aaaa1111", b.ManifestDigest)
	assert.Equal(t, "bbbb2222", b.DepsDigest)
	assert.Equal(t, "cccc3333", b.ContextDigest)
	assert.Equal(t, 8000, b.ExposePort)
	assert.Equal(t, 8001, b.BindPort)
	assert.Equal(t, "deadbeef", b.Revision)
	assert.Equal(t, time.Date(2026, 2, 28, 10, 0, 0, 0, time.UTC), b.CreatedAt)
}

// TestParseLabels_MissingRequired verifies that ParseLabels returns an
// error when required labels are missing from the label map.
func TestParseLabels_MissingRequired(t *testing.T) {
	testCases := []struct {
		name       string
		missingKey string
	}{
		{"missing managed-by", LabelManagedBy},
		{"missing app", LabelApp},
		{"missing manifest-digest", LabelManifestDigest},
		{"missing deps-digest", LabelDepsDigest},
		{"missing context-digest", LabelContextDigest},
		{"missing expose-port", LabelExposePort},
		{"missing bind-port", LabelBindPort},
		{"missing base-image", LabelBaseImage},
		{"missing created-at", LabelCreatedAt},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			labels := validLabels()
			delete(labels, tc.missingKey)

			_, err := ParseLabels(labels)
			require.Error(t, err, "should fail when %s is missing", tc.missingKey)
			assert.Contains(t, err.Error(), tc.missingKey,
				"error message should mention the missing label key")
		})
	}
}

// TestParseLabels_RevisionOptional verifies the revision label may be
// absent.
func TestParseLabels_RevisionOptional(t *testing.T) {
	labels := validLabels()
	delete(labels, LabelRevision)

	b, err := ParseLabels(labels)
	require.NoError(t, err)
	assert.Empty(t, b.Revision)
}

// TestParseLabels_InvalidManagedBy verifies that ParseLabels rejects
// label maps from other tools.
func TestParseLabels_InvalidManagedBy(t *testing.T) {
	labels := validLabels()
	labels[LabelManagedBy] = "some-other-tool"

	_, err := ParseLabels(labels)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected value")
}

// TestParseLabels_InvalidPorts verifies non-numeric port labels are
// rejected.
func TestParseLabels_InvalidPorts(t *testing.T) {
	t.Run("expose-port", func(t *testing.T) {
		labels := validLabels()
		labels[LabelExposePort] = "not-a-port"

		_, err := ParseLabels(labels)
		require.Error(t, err)
		assert.Contains(t, err.Error(), LabelExposePort)
	})

	t.Run("bind-port", func(t *testing.T) {
		labels := validLabels()
		labels[LabelBindPort] = "not-a-port"

		_, err := ParseLabels(labels)
		require.Error(t, err)
		assert.Contains(t, err.Error(), LabelBindPort)
	})
}

// TestParseLabels_InvalidCreatedAt verifies that ParseLabels returns an
// error when the created-at label has an unparseable timestamp.
func TestParseLabels_InvalidCreatedAt(t *testing.T) {
	labels := validLabels()
	labels[LabelCreatedAt] = "not-a-timestamp"

	_, err := ParseLabels(labels)
	require.Error(t, err)
	assert.Contains(t, err.Error(), LabelCreatedAt)
}

// TestFilterLabels verifies that FilterLabels returns the correct filter
// map for listing managed images and containers.
func TestFilterLabels(t *testing.T) {
	filterMap := FilterLabels()

	require.Len(t, filterMap, 1, "filter should contain exactly one label")
	assert.Equal(t, ManagedByValue, filterMap[LabelManagedBy])
}

// TestAppFilterLabel verifies the per-app label selector format.
func TestAppFilterLabel(t *testing.T) {
	assert.Equal(t, "gangway.app=order-api", AppFilterLabel("order-api"))
}

// TestBuildAndParseLabelRoundTrip verifies that building labels from a
// Bootstrap and parsing them back produces an equivalent Bootstrap,
// including the preserved port discrepancy.
func TestBuildAndParseLabelRoundTrip(t *testing.T) {
	createdAt := time.Date(2026, 3, 15, 14, 30, 0, 0, time.UTC)
	original := &model.Bootstrap{
		App:            "order-api",
		BaseImage:      "python:3.11-slim",
		ManifestDigest: "0011aabb",
		DepsDigest:     "2233ccdd",
		ContextDigest:  "4455eeff",
		ExposePort:     8000,
		BindPort:       8001,
		Revision:       "cafebabe",
		CreatedAt:      createdAt,
	}

	labels := BuildLabels(original)
	parsed, err := ParseLabels(labels)
	require.NoError(t, err)

	// Status and Containers are not persisted in labels, so they are
	// excluded from comparison.
	assert.Equal(t, original.App, parsed.App)
	assert.Equal(t, original.BaseImage, parsed.BaseImage)
	assert.Equal(t, original.ManifestDigest, parsed.ManifestDigest)
	assert.Equal(t, original.DepsDigest, parsed.DepsDigest)
	assert.Equal(t, original.ContextDigest, parsed.ContextDigest)
	assert.Equal(t, original.ExposePort, parsed.ExposePort)
	assert.Equal(t, original.BindPort, parsed.BindPort)
	assert.Equal(t, original.Revision, parsed.Revision)
	assert.Equal(t, original.CreatedAt.UTC(), parsed.CreatedAt.UTC())
}
