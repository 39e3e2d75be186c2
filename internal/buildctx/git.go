package buildctx

import (
	"os/exec"
	"strings"
)

// GitRevision returns the revision identifier for the source tree at
// root: the HEAD commit SHA, suffixed with "-dirty" when the working
// tree has uncommitted changes. It returns "" when the directory is not
// inside a git repository or git is unavailable — the revision label is
// informational and its absence never blocks a build.
func GitRevision(root string) string {
	sha, err := runGit(root, "rev-parse", "HEAD")
	if err != nil {
		return ""
	}
	revision := strings.TrimSpace(sha)
	if revision == "" {
		return ""
	}

	status, err := runGit(root, "status", "--porcelain")
	if err == nil && strings.TrimSpace(status) != "" {
		revision += "-dirty"
	}
	return revision
}

// runGit executes a git command in the given directory and returns its
// stdout. Using -C rather than exec.Cmd.Dir keeps the directory handling
// inside git itself, which behaves consistently across subcommands.
func runGit(dir string, args ...string) (string, error) {
	fullArgs := append([]string{"-C", dir}, args...)

	// #nosec G204 — args are constructed internally, not from user input
	cmd := exec.Command("git", fullArgs...)

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", err
	}
	return stdout.String(), nil
}
