// Package compose exports a bootstrap's run configuration as a
// docker-compose file.
//
// The exported file is a faithful translation of what `gangway run` does:
// one service, the built image, the bind port published to its resolved
// host port, the gangway label schema, and restart disabled. Teams moving
// a bootstrap into a compose-managed deployment get identical runtime
// semantics, including the preserved documented-port defect when the
// manifest carries one.
package compose
