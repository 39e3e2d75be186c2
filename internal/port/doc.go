// Package port implements host port probing for the gangway CLI.
//
// Three concerns live here:
//
//   - Availability scanning: the Scanner asks the OS directly (via
//     net.Listen / net.ListenPacket) whether a port is free.
//   - Publish resolution: ResolveHostPort picks the host port `run`
//     publishes the container's bind port on — the bind port itself when
//     free, otherwise the first free port above it. The choice is
//     deterministic for a given host state.
//   - Readiness waiting: WaitListening polls until the server inside a
//     freshly started container actually accepts connections, so verify
//     does not race the application's startup.
//
// The package never decides which container port matters — that is the
// manifest's command.port, and callers pass it in. In particular nothing
// here ever consults the documented EXPOSE port.
package port
