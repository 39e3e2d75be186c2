package oci

import (
	"bytes"
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-containerregistry/pkg/crane"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/registry"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/empty"
	"github.com/google/go-containerregistry/pkg/v1/mutate"
	"github.com/google/go-containerregistry/pkg/v1/tarball"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/gangway/internal/model"
)

// testImage builds a minimal in-memory image with the given config, so
// config-reading helpers can be exercised without a daemon.
func testImage(t *testing.T, cfg v1.Config) v1.Image {
	t.Helper()

	img, err := mutate.Config(empty.Image, cfg)
	require.NoError(t, err, "building the test image should succeed")
	return img
}

// TestSave verifies that Save writes a tarball that can be read back as
// an image, with the given reference recorded as its tag.
func TestSave(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "order-api.tar")

	err := Save(empty.Image, []string{"gangway/order-api:0a1b2c3d4e5f"}, path, false)
	require.NoError(t, err)

	// Read the tarball back and check it parses as an image.
	img, err := tarball.ImageFromPath(path, nil)
	require.NoError(t, err, "saved tarball should be readable as an image")
	_, err = img.Manifest()
	assert.NoError(t, err)
}

// TestSave_MultipleRefs verifies that saving under two references (the
// digest-pinned tag and the moving latest tag) produces one tarball from
// which either reference resolves.
func TestSave_MultipleRefs(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "order-api.tar")
	refs := []string{"gangway/order-api:0a1b2c3d4e5f", "gangway/order-api:latest"}

	err := Save(empty.Image, refs, path, false)
	require.NoError(t, err)

	tag, err := name.NewTag("gangway/order-api:latest")
	require.NoError(t, err)

	img, err := tarball.ImageFromPath(path, &tag)
	require.NoError(t, err, "the latest tag should resolve inside the tarball")
	_, err = img.Manifest()
	assert.NoError(t, err)
}

// TestSave_Canonical verifies that two canonical saves of the same image
// are byte-identical. This is the property the flag exists for: archives
// of an unchanged image can be compared with a plain checksum.
func TestSave_Canonical(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	first := filepath.Join(dir, "first.tar")
	second := filepath.Join(dir, "second.tar")

	img := testImage(t, v1.Config{
		Labels: map[string]string{"gangway.app": "order-api"},
	})

	require.NoError(t, Save(img, []string{"gangway/order-api:latest"}, first, true))
	require.NoError(t, Save(img, []string{"gangway/order-api:latest"}, second, true))

	firstBytes, err := os.ReadFile(first)
	require.NoError(t, err)
	secondBytes, err := os.ReadFile(second)
	require.NoError(t, err)

	assert.Equal(t, firstBytes, secondBytes,
		"canonical saves of the same image should be byte-identical")
}

// TestSave_NoRefs verifies that saving without any reference is rejected
// as a usage error instead of writing an unloadable tarball.
func TestSave_NoRefs(t *testing.T) {
	t.Parallel()

	err := Save(empty.Image, nil, filepath.Join(t.TempDir(), "out.tar"), false)
	require.Error(t, err)

	var cliErr *model.CLIError
	require.ErrorAs(t, err, &cliErr)
	assert.Equal(t, model.ExitUsageError, cliErr.Code)
}

// writer adapts the in-memory registry handler to the http.ResponseWriter
// interface so it can serve round trips without a network listener.
type writer struct {
	resp *http.Response
}

func (w *writer) Header() http.Header { return w.resp.Header }

func (w *writer) Write(data []byte) (int, error) {
	buf := bytes.NewBuffer(data)
	w.resp.Body = io.NopCloser(buf)

	return len(data), nil
}

func (w *writer) WriteHeader(statusCode int) { w.resp.StatusCode = statusCode }

// tripper routes crane's HTTP requests straight into the in-memory
// registry handler.
type tripper struct {
	handler http.Handler
}

func (t tripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Body == nil {
		req.Body = io.NopCloser(&bytes.Buffer{})
	}
	resp := &http.Response{Status: "ok", StatusCode: http.StatusOK, Header: http.Header{}, Request: req}
	w := &writer{resp}
	t.handler.ServeHTTP(w, req)

	return resp, nil
}

// TestPush verifies that Push uploads an image that can then be pulled
// back from the same registry.
func TestPush(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reg := registry.New(registry.Logger(log.Default()))
	transportOpt := crane.WithTransport(tripper{reg})

	dest := "gangway/order-api:0a1b2c3d4e5f"
	err := Push(ctx, empty.Image, dest, transportOpt)
	require.NoError(t, err)

	_, err = crane.Pull(dest, transportOpt)
	assert.NoError(t, err, "pushed image should be pullable from the registry")
}

// TestPush_InvalidDest verifies that an unparseable destination reference
// is rejected as a usage error before any network activity.
func TestPush_InvalidDest(t *testing.T) {
	t.Parallel()

	err := Push(context.Background(), empty.Image, "not a valid ref!")
	require.Error(t, err)

	var cliErr *model.CLIError
	require.ErrorAs(t, err, &cliErr)
	assert.Equal(t, model.ExitUsageError, cliErr.Code)
}

// TestPortConfig verifies that the documented ports are read from the
// image config's ExposedPorts, sorted, with non-TCP entries skipped.
func TestPortConfig(t *testing.T) {
	t.Parallel()

	img := testImage(t, v1.Config{
		ExposedPorts: map[string]struct{}{
			"8000/tcp": {},
			"9000/udp": {},
			"443":      {},
		},
	})

	ports, err := PortConfig(img)
	require.NoError(t, err)

	// 443 has no protocol suffix and counts as tcp; 9000/udp is skipped.
	assert.Equal(t, []int{443, 8000}, ports)
}

// TestPortConfig_Empty verifies an image without EXPOSE instructions
// yields an empty port list, not an error.
func TestPortConfig_Empty(t *testing.T) {
	t.Parallel()

	ports, err := PortConfig(empty.Image)
	require.NoError(t, err)
	assert.Empty(t, ports)
}

// TestPortConfig_Malformed verifies a non-numeric exposed port surfaces
// as an error naming the offending entry.
func TestPortConfig_Malformed(t *testing.T) {
	t.Parallel()

	img := testImage(t, v1.Config{
		ExposedPorts: map[string]struct{}{"web/tcp": {}},
	})

	_, err := PortConfig(img)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "web/tcp")
}

// TestLabels verifies that labels are read from the image config.
func TestLabels(t *testing.T) {
	t.Parallel()

	img := testImage(t, v1.Config{
		Labels: map[string]string{
			"gangway.app":         "order-api",
			"gangway.deps-digest": "bbbb2222",
		},
	})

	labels, err := Labels(img)
	require.NoError(t, err)

	assert.Equal(t, "order-api", labels["gangway.app"])
	assert.Equal(t, "bbbb2222", labels["gangway.deps-digest"])
}

// TestFromDaemon_InvalidRef verifies reference parsing failures are
// reported as usage errors without touching the daemon.
func TestFromDaemon_InvalidRef(t *testing.T) {
	t.Parallel()

	_, err := FromDaemon(context.Background(), nil, "UPPERCASE IS INVALID")
	require.Error(t, err)

	var cliErr *model.CLIError
	require.ErrorAs(t, err, &cliErr)
	assert.Equal(t, model.ExitUsageError, cliErr.Code)
	assert.NotNil(t, cliErr.Err, "the parse failure should be wrapped, not dropped")
}
