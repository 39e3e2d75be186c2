package buildctx

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRepo creates a temporary git repository with one commit and
// returns its path. User identity is configured at the repo level so
// `git commit` works in CI environments without global git config.
func setupTestRepo(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	runTestGit(t, dir, "init")
	runTestGit(t, dir, "config", "user.email", "test@example.com")
	runTestGit(t, dir, "config", "user.name", "Test User")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.py"), []byte("print('hi')\n"), 0o644))
	runTestGit(t, dir, "add", ".")
	runTestGit(t, dir, "commit", "-m", "initial commit")

	return dir
}

// runTestGit runs a git command in dir and fails the test on a non-zero
// exit.
func runTestGit(t *testing.T, dir string, args ...string) string {
	t.Helper()

	cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
	output, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v failed: %s", args, string(output))
	return string(output)
}

// TestGitRevision_CleanRepo verifies a committed tree yields the bare
// HEAD SHA.
func TestGitRevision_CleanRepo(t *testing.T) {
	dir := setupTestRepo(t)

	revision := GitRevision(dir)
	require.Len(t, revision, 40, "expected a full SHA-1")
	assert.NotContains(t, revision, "-dirty")
}

// TestGitRevision_DirtyRepo verifies uncommitted changes add the -dirty
// suffix.
func TestGitRevision_DirtyRepo(t *testing.T) {
	dir := setupTestRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.py"), []byte("print('edited')\n"), 0o644))

	revision := GitRevision(dir)
	assert.True(t, len(revision) > 40)
	assert.Contains(t, revision, "-dirty")
}

// TestGitRevision_NotARepo verifies a plain directory yields an empty
// revision rather than an error.
func TestGitRevision_NotARepo(t *testing.T) {
	assert.Empty(t, GitRevision(t.TempDir()))
}
