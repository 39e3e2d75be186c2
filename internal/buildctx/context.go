package buildctx

import (
	"archive/tar"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gobwas/glob"

	"github.com/mmr-tortoise/gangway/internal/model"
)

// alwaysIgnored are context entries excluded regardless of the manifest's
// ignore patterns. The repository metadata never belongs in an image, and
// its churn would break context digest stability.
var alwaysIgnored = []string{".git"}

// File is a single regular file selected into the build context.
type File struct {
	// Path is the slash-separated path relative to the context root.
	// This is the name the file gets inside the tar stream.
	Path string

	// AbsPath is the absolute filesystem path the content is read from.
	AbsPath string

	// Mode is the normalized tar mode: 0755 when the owner execute bit
	// is set, 0644 otherwise. Group/other bits, setuid, and sticky bits
	// are discarded so the same tree produces the same context on any
	// checkout, regardless of umask.
	Mode int64

	// Size is the file size in bytes at collection time.
	Size int64
}

// Context is the deterministic file set for one build: the source tree
// rooted at Root, filtered by the manifest's ignore patterns, sorted by
// path. Two collections over identical trees yield identical Contexts,
// which is what makes the context digest a meaningful identity.
type Context struct {
	// Root is the absolute path of the collected source directory.
	Root string

	// Files is the selected file list, sorted by Path.
	Files []File
}

// Collect walks the source tree under root and returns the build context:
// every regular file not excluded by an ignore pattern, in sorted order.
//
// Ignore patterns follow .gitignore conventions: a pattern without a
// slash matches at any depth, a pattern with a slash is anchored to the
// context root, and a pattern that names a directory excludes its whole
// subtree. Matching uses '/' as the glob separator, so '*' stays within
// one path segment and '**' crosses segments. Symlinks and other
// irregular entries are skipped — a build context only carries file
// content.
func Collect(root string, ignore []string) (*Context, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitBuildFailed, "failed to resolve context root", err)
	}

	matchers, err := compilePatterns(append(append([]string{}, alwaysIgnored...), ignore...))
	if err != nil {
		return nil, model.WrapCLIError(model.ExitBuildFailed, "failed to compile ignore patterns", err)
	}

	var files []File
	walkErr := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(absRoot, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if matchAny(matchers, rel) {
				return filepath.SkipDir
			}
			return nil
		}

		// Only regular files enter the context.
		if !d.Type().IsRegular() {
			return nil
		}
		if matchAny(matchers, rel) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		mode := int64(0o644)
		if info.Mode()&0o100 != 0 {
			mode = 0o755
		}

		files = append(files, File{
			Path:    rel,
			AbsPath: path,
			Mode:    mode,
			Size:    info.Size(),
		})
		return nil
	})
	if walkErr != nil {
		return nil, model.WrapCLIError(model.ExitBuildFailed,
			fmt.Sprintf("failed to collect build context from %s", root), walkErr)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	return &Context{Root: absRoot, Files: files}, nil
}

// WriteTar writes the context as a tar stream: the collected files plus
// the extra in-memory entries (the rendered Dockerfile, typically), all
// in sorted path order with normalized headers. An extra entry whose path
// collides with a collected file replaces it — the generated Dockerfile
// wins over a checked-in one.
//
// Headers carry zeroed timestamps and owner fields so the stream depends
// only on paths, modes, and content. That property is what lets Digest
// stand in for "the context changed".
func (c *Context) WriteTar(w io.Writer, extra map[string][]byte) (err error) {
	tw := tar.NewWriter(w)
	defer func() {
		if cErr := tw.Close(); cErr != nil && err == nil {
			err = cErr
		}
	}()

	overridden := make(map[string]bool, len(extra))
	extraPaths := make([]string, 0, len(extra))
	for path := range extra {
		extraPaths = append(extraPaths, path)
		overridden[path] = true
	}
	sort.Strings(extraPaths)

	for _, f := range c.Files {
		if overridden[f.Path] {
			continue
		}
		if err := writeFileEntry(tw, f); err != nil {
			return err
		}
	}

	for _, path := range extraPaths {
		data := extra[path]
		hdr := &tar.Header{
			Name:    path,
			Mode:    0o644,
			Size:    int64(len(data)),
			ModTime: time.Unix(0, 0),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("write tar header for %s: %w", path, err)
		}
		if _, err := tw.Write(data); err != nil {
			return fmt.Errorf("write tar body for %s: %w", path, err)
		}
	}

	return nil
}

// Digest returns the hex SHA-256 of the tar stream WriteTar would produce
// with the same extra entries. Because headers are normalized, the digest
// identifies exactly (paths, modes, contents) — rebuilding an untouched
// tree yields the same digest, and any content change yields a new one.
func (c *Context) Digest(extra map[string][]byte) (string, error) {
	h := sha256.New()
	if err := c.WriteTar(h, extra); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// writeFileEntry streams one collected file into the tar writer with a
// normalized header.
func writeFileEntry(tw *tar.Writer, f File) error {
	hdr := &tar.Header{
		Name:    f.Path,
		Mode:    f.Mode,
		Size:    f.Size,
		ModTime: time.Unix(0, 0),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("write tar header for %s: %w", f.Path, err)
	}

	src, err := os.Open(f.AbsPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", f.Path, err)
	}
	defer func() { _ = src.Close() }()

	// Copy exactly the size recorded in the header. A file growing
	// mid-stream would otherwise corrupt the archive.
	if _, err := io.CopyN(tw, src, f.Size); err != nil {
		return fmt.Errorf("write tar body for %s: %w", f.Path, err)
	}
	return nil
}

// compilePatterns compiles ignore patterns with '/' as the separator,
// expanding each one to its .gitignore-equivalent variants: a "**/"
// prefix for slash-less patterns so they match at any depth, and a
// "/**" suffix so a pattern naming a directory excludes its subtree.
// The redundant variants simply never match.
func compilePatterns(patterns []string) ([]glob.Glob, error) {
	var matchers []glob.Glob
	for _, pattern := range patterns {
		p := strings.TrimSuffix(pattern, "/")

		variants := []string{p, p + "/**"}
		if !strings.Contains(p, "/") {
			variants = append(variants, "**/"+p, "**/"+p+"/**")
		}

		for _, v := range variants {
			g, err := glob.Compile(v, '/')
			if err != nil {
				return nil, fmt.Errorf("pattern %q: %w", pattern, err)
			}
			matchers = append(matchers, g)
		}
	}
	return matchers, nil
}

// matchAny reports whether any matcher matches the slash-relative path.
func matchAny(matchers []glob.Glob, rel string) bool {
	for _, m := range matchers {
		if m.Match(rel) {
			return true
		}
	}
	return false
}
