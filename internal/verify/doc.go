// Package verify implements the post-run regression checks for a
// bootstrapped application.
//
// The checks probe the properties a bootstrap promises rather than the
// ones its manifest documents: that exactly one server process runs (or
// exited observably), that connections are accepted on the port the
// command binds — not the port EXPOSE advertises — that the dependency
// fingerprint recorded at build time still matches the working tree, and
// optionally that the application answers HTTP.
//
// A documented port that disagrees with the bound port is reported as a
// warning, because that disagreement is a preserved build input, not a
// runtime failure. Checks run concurrently and all of them always
// complete; any hard failure makes the whole verification fail with its
// own exit code.
package verify
