package docker

import (
	"testing"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/gangway/internal/model"
)

// makeTestContainer is a helper that creates a model.ContainerInfo carrying
// a complete set of gangway management labels. This avoids repetitive label
// construction across multiple test cases.
//
// Parameters:
//   - id: Docker container ID (shortened hash)
//   - name: Docker container name
//   - state: raw Docker state string (e.g., "running", "exited")
//   - app: the application name (gangway.app label)
//
// Returns a ContainerInfo populated with all required gangway labels.
// The labels deliberately record the 8000/8001 port discrepancy so that
// tests exercising label parsing see the defect preserved end to end.
func makeTestContainer(id, name, state, app string) model.ContainerInfo {
	return model.ContainerInfo{
		ContainerID:   id,
		ContainerName: name,
		App:           app,
		State:         state,
		Labels: map[string]string{
			LabelManagedBy:      ManagedByValue,
			LabelApp:            app,
			LabelManifestDigest: "aaaa1111",
			LabelDepsDigest:     "bbbb2222",
			LabelContextDigest:  "cccc3333",
			LabelExposePort:     "8000",
			LabelBindPort:       "8001",
			LabelBaseImage:      "python:3.11-slim",
			LabelCreatedAt:      "2026-02-28T10:00:00Z",
		},
	}
}

// TestContainerName verifies the deterministic container naming scheme.
// The name must be predictable from the app name alone so that a second
// run of the same app collides instead of silently spawning a duplicate.
func TestContainerName(t *testing.T) {
	assert.Equal(t, "gangway-order-api", ContainerName("order-api"))
	assert.Equal(t, "gangway-x", ContainerName("x"))
}

// TestContainerToInfo verifies the mapping from the Docker API container
// struct to the domain ContainerInfo: the leading "/" on names is stripped,
// the app name is recovered from labels, and port mappings are converted.
func TestContainerToInfo(t *testing.T) {
	// Arrange: a container as the Docker API would report it, with the
	// API-artifact leading slash on the name and one published port.
	c := types.Container{
		ID:     "abc123def456",
		Names:  []string{"/gangway-order-api"},
		Image:  "gangway/order-api:cccc3333aaaa",
		State:  "running",
		Status: "Up 2 minutes",
		Labels: map[string]string{
			LabelManagedBy: ManagedByValue,
			LabelApp:       "order-api",
		},
		Ports: []types.Port{
			{PrivatePort: 8001, PublicPort: 8001, Type: "tcp"},
		},
	}

	// Act
	info := containerToInfo(c)

	// Assert: identity fields are mapped and the slash is gone.
	assert.Equal(t, "abc123def456", info.ContainerID)
	assert.Equal(t, "gangway-order-api", info.ContainerName,
		"leading '/' from the Docker API should be stripped")
	assert.Equal(t, "order-api", info.App, "app should come from the gangway.app label")
	assert.Equal(t, "gangway/order-api:cccc3333aaaa", info.Image)
	assert.Equal(t, "running", info.State)
	assert.Equal(t, "Up 2 minutes", info.Status)

	// Assert: the published port survives the conversion.
	require.Len(t, info.Ports, 1)
	assert.Equal(t, 8001, info.Ports[0].ContainerPort)
	assert.Equal(t, 8001, info.Ports[0].HostPort)
	assert.Equal(t, "tcp", info.Ports[0].Protocol)
}

// TestContainerToInfo_UnpublishedPort verifies that an exposed-but-not-
// published port maps to a zero host port instead of being dropped.
// A container run with --no-publish still reports its bind port this way.
func TestContainerToInfo_UnpublishedPort(t *testing.T) {
	c := types.Container{
		ID:    "abc123",
		Names: []string{"/gangway-metrics-worker"},
		Ports: []types.Port{
			{PrivatePort: 9100, Type: "tcp"},
		},
	}

	info := containerToInfo(c)

	require.Len(t, info.Ports, 1)
	assert.Equal(t, 9100, info.Ports[0].ContainerPort)
	assert.Equal(t, 0, info.Ports[0].HostPort, "unpublished port should map to host port 0")
}

// TestContainerToInfo_NoNames verifies that a container with an empty
// Names slice maps to an empty container name rather than panicking.
// The API should never produce this, but the mapping must not assume it.
func TestContainerToInfo_NoNames(t *testing.T) {
	info := containerToInfo(types.Container{ID: "abc123"})

	assert.Equal(t, "", info.ContainerName)
	assert.Empty(t, info.Ports)
}

// TestGroupContainersByApp verifies that GroupContainersByApp correctly
// groups 3 containers into 2 separate bootstraps based on their
// "gangway.app" label values.
func TestGroupContainersByApp(t *testing.T) {
	// Arrange: create 3 containers across 2 apps. order-api has 2
	// containers (one running, one from an earlier exited run),
	// metrics-worker has 1.
	containers := []model.ContainerInfo{
		makeTestContainer("aaa111", "gangway-order-api", "running", "order-api"),
		makeTestContainer("bbb222", "gangway-order-api-old", "exited", "order-api"),
		makeTestContainer("ccc333", "gangway-metrics-worker", "running", "metrics-worker"),
	}

	// Act: group containers by app name.
	groups := GroupContainersByApp(containers)

	// Assert: there should be 2 groups.
	require.Len(t, groups, 2, "should have 2 app groups")

	// Assert: order-api should have 2 containers.
	apiGroup, ok := groups["order-api"]
	require.True(t, ok, "order-api group should exist")
	assert.Len(t, apiGroup, 2, "order-api should have 2 containers")

	// Assert: metrics-worker should have 1 container.
	workerGroup, ok := groups["metrics-worker"]
	require.True(t, ok, "metrics-worker group should exist")
	assert.Len(t, workerGroup, 1, "metrics-worker should have 1 container")

	// Verify the correct containers are in each group by checking IDs.
	apiIDs := make(map[string]bool)
	for _, c := range apiGroup {
		apiIDs[c.ContainerID] = true
	}
	assert.True(t, apiIDs["aaa111"], "order-api should contain container aaa111")
	assert.True(t, apiIDs["bbb222"], "order-api should contain container bbb222")

	assert.Equal(t, "ccc333", workerGroup[0].ContainerID,
		"metrics-worker should contain container ccc333")
}

// TestGroupContainersByApp_Empty verifies that GroupContainersByApp
// returns an empty map when given an empty input slice.
// This is a boundary condition that must be handled gracefully.
func TestGroupContainersByApp_Empty(t *testing.T) {
	// Act: group an empty slice.
	groups := GroupContainersByApp([]model.ContainerInfo{})

	// Assert: the result should be an empty (but non-nil) map.
	require.NotNil(t, groups, "result should be a non-nil map")
	assert.Empty(t, groups, "result should have no groups")
}

// TestGroupContainersByApp_SkipsUnlabeled verifies that containers
// without the "gangway.app" label are silently excluded from grouping.
// In practice all managed containers carry this label, because
// ListManagedContainers filters on the managed-by label that is only
// ever written alongside it.
func TestGroupContainersByApp_SkipsUnlabeled(t *testing.T) {
	// Arrange: one container with a valid label, one without.
	containers := []model.ContainerInfo{
		makeTestContainer("aaa111", "gangway-order-api", "running", "order-api"),
		{
			// Container with no gangway.app label.
			ContainerID:   "bbb222",
			ContainerName: "unrelated-container",
			State:         "running",
			Labels:        map[string]string{},
		},
	}

	// Act
	groups := GroupContainersByApp(containers)

	// Assert: only the container with a valid label should be grouped.
	require.Len(t, groups, 1, "should have 1 group, skipping the unlabeled container")
	assert.Len(t, groups["order-api"], 1, "order-api should have 1 container")
}

// TestBuildBootstrap_Running verifies that BuildBootstrap reconstructs the
// bootstrap from container labels and sets the status to "running" when at
// least one container is in the "running" state.
func TestBuildBootstrap_Running(t *testing.T) {
	// Arrange: one running container plus the exited remains of an
	// earlier run. The bootstrap counts as running because at least one
	// container is active.
	containers := []model.ContainerInfo{
		makeTestContainer("abc123", "gangway-order-api", "running", "order-api"),
		makeTestContainer("def456", "gangway-order-api-old", "exited", "order-api"),
	}

	// Act: build the Bootstrap from the containers.
	b, err := BuildBootstrap("order-api", containers)

	// Assert: no error and status is running.
	require.NoError(t, err, "BuildBootstrap should succeed with valid containers")
	assert.Equal(t, model.StatusRunning, b.Status,
		"status should be 'running' when at least one container is running")

	// Assert: identity fields are recovered from labels.
	assert.Equal(t, "order-api", b.App)
	assert.Equal(t, "python:3.11-slim", b.BaseImage)
	assert.Equal(t, "bbbb2222", b.DepsDigest)
	assert.Equal(t, time.Date(2026, 2, 28, 10, 0, 0, 0, time.UTC), b.CreatedAt)

	// Assert: the port discrepancy is preserved, not reconciled.
	assert.Equal(t, 8000, b.ExposePort)
	assert.Equal(t, 8001, b.BindPort)

	// Assert: all containers are attached to the bootstrap.
	assert.Len(t, b.Containers, 2, "should have 2 containers attached")
}

// TestBuildBootstrap_Exited verifies that BuildBootstrap sets the status
// to "exited" when no container is running but at least one has run and
// terminated. An exited server is a distinct, visible state — the exit
// code is the whole point of attaching to it.
func TestBuildBootstrap_Exited(t *testing.T) {
	containers := []model.ContainerInfo{
		makeTestContainer("abc123", "gangway-order-api", "exited", "order-api"),
	}

	// Act
	b, err := BuildBootstrap("order-api", containers)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, model.StatusExited, b.Status,
		"status should be 'exited' when the server process has terminated")
}

// TestBuildBootstrap_Stopped verifies that BuildBootstrap sets the status
// to "stopped" when containers exist but none has ever run ("created").
func TestBuildBootstrap_Stopped(t *testing.T) {
	containers := []model.ContainerInfo{
		makeTestContainer("abc123", "gangway-order-api", "created", "order-api"),
	}

	// Act
	b, err := BuildBootstrap("order-api", containers)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, model.StatusStopped, b.Status,
		"status should be 'stopped' when no container has run")
}

// TestBuildBootstrap_NoContainers verifies that BuildBootstrap returns
// an error when called with an empty container slice. This is a programming
// error guard — every bootstrap passed in must have at least one container.
func TestBuildBootstrap_NoContainers(t *testing.T) {
	// Act: try to build a bootstrap from an empty slice.
	b, err := BuildBootstrap("empty-app", []model.ContainerInfo{})

	// Assert: should return an error and a nil bootstrap.
	require.Error(t, err, "should fail when no containers are provided")
	assert.Nil(t, b, "returned bootstrap should be nil on error")
	assert.Contains(t, err.Error(), "no containers provided",
		"error message should explain the problem")
}

// TestBuildBootstrap_BadLabels verifies that a label parsing failure on
// the first container surfaces as an error instead of producing a
// half-populated bootstrap.
func TestBuildBootstrap_BadLabels(t *testing.T) {
	// Arrange: strip the base image label so ParseLabels fails.
	c := makeTestContainer("abc123", "gangway-order-api", "running", "order-api")
	delete(c.Labels, LabelBaseImage)

	// Act
	b, err := BuildBootstrap("order-api", []model.ContainerInfo{c})

	// Assert
	require.Error(t, err)
	assert.Nil(t, b)
	assert.Contains(t, err.Error(), "order-api",
		"error should name the bootstrap that failed to parse")
}

// TestDetermineStatus_Running verifies the internal determineStatus
// function returns "running" when at least one container is in the
// "running" state, regardless of the others.
func TestDetermineStatus_Running(t *testing.T) {
	containers := []model.ContainerInfo{
		{State: "exited"},
		{State: "running"},
	}

	status := determineStatus(containers)
	assert.Equal(t, model.StatusRunning, status,
		"should be running when at least one container is running")
}

// TestDetermineStatus_Exited verifies the internal determineStatus
// function returns "exited" when no container is running but at least
// one has terminated. "dead" counts as terminated too.
func TestDetermineStatus_Exited(t *testing.T) {
	containers := []model.ContainerInfo{
		{State: "exited"},
		{State: "created"},
	}

	status := determineStatus(containers)
	assert.Equal(t, model.StatusExited, status,
		"should be exited when a container has terminated and none is running")

	status = determineStatus([]model.ContainerInfo{{State: "dead"}})
	assert.Equal(t, model.StatusExited, status,
		"a dead container should also count as exited")
}

// TestDetermineStatus_Stopped verifies the internal determineStatus
// function returns "stopped" when no container is running and none has
// terminated either (e.g., all still in "created").
func TestDetermineStatus_Stopped(t *testing.T) {
	containers := []model.ContainerInfo{
		{State: "created"},
		{State: "paused"},
	}

	status := determineStatus(containers)
	assert.Equal(t, model.StatusStopped, status,
		"should be stopped when no container is running or exited")
}
