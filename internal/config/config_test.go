package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Note: t.Parallel() is intentionally omitted in this package.
// These tests share process-global environment variables; t.Setenv would
// race with any concurrent reader.

// TestLoad_Defaults verifies the built-in defaults with no file and no env.
func TestLoad_Defaults(t *testing.T) {
	// Point XDG at an empty directory so a developer's real config file
	// cannot leak into the test.
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Empty(t, cfg.Docker.Host)
	assert.False(t, cfg.Build.Pull)
	assert.False(t, cfg.Build.NoCache)
	assert.Equal(t, 1024, cfg.Publish.PortMin)
	assert.Equal(t, 65535, cfg.Publish.PortMax)
	assert.Equal(t, 10*time.Second, cfg.Verify.Timeout)
	assert.Empty(t, cfg.ManifestFile)
}

// TestLoad_EnvOverride verifies GANGWAY_ environment variables beat the
// defaults, including nested keys.
func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("GANGWAY_DOCKER_HOST", "tcp://10.0.0.5:2375")
	t.Setenv("GANGWAY_BUILD_PULL", "true")
	t.Setenv("GANGWAY_VERIFY_TIMEOUT", "30s")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "tcp://10.0.0.5:2375", cfg.Docker.Host)
	assert.True(t, cfg.Build.Pull)
	assert.Equal(t, 30*time.Second, cfg.Verify.Timeout)
}

// TestLoad_FileThenEnv verifies the precedence chain: env beats the file,
// the file beats built-ins.
func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"docker:\n  host: unix:///custom/docker.sock\nbuild:\n  no_cache: true\npublish:\n  port_min: 9000\n"), 0o644))

	t.Setenv("GANGWAY_PUBLISH_PORT_MIN", "9500")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "unix:///custom/docker.sock", cfg.Docker.Host)
	assert.True(t, cfg.Build.NoCache)
	assert.Equal(t, 9500, cfg.Publish.PortMin, "env should override the file value")
	assert.Equal(t, 65535, cfg.Publish.PortMax, "unset keys keep their defaults")
}

// TestLoad_DefaultLocation verifies the XDG default path is picked up when
// it exists and no explicit path is given.
func TestLoad_DefaultLocation(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)

	dir := filepath.Join(xdg, "gangway")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"),
		[]byte("manifest_file: custom-bootstrap.json\n"), 0o644))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "custom-bootstrap.json", cfg.ManifestFile)
}

// TestLoad_MissingExplicitFile verifies an explicitly named config file
// must exist, while the implicit default is allowed to be absent.
func TestLoad_MissingExplicitFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)

	_, err = Load("")
	assert.NoError(t, err)
}

// TestDefaultPath verifies the XDG resolution order.
func TestDefaultPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/etc/xdg-test")
	assert.Equal(t, filepath.Join("/etc/xdg-test", "gangway", "config.yaml"), DefaultPath())
}
