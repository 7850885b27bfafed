// Package store provides the single-connection SQLite layer for the chat backend.
//
// # Architecture
//
// The Connector deliberately holds one live connection at a time and funnels
// every statement through a mutex. The rest of the backend spawns a goroutine
// per in-flight request, so the connector is the serialization point that keeps
// statement exchanges on the shared connection from interleaving.
//
// # Primitives
//
// Higher layers depend only on four calls:
//
//   - Execute: statement with no result rows
//   - Fetch: multi-row query driven by a scan callback
//   - FetchOne: single-row query (ErrNotFound when absent)
//   - FetchVal: single-scalar query (ErrNotFound when absent)
//
// Any compliant row store could back these; SQLite via modernc.org/sqlite is
// what ships.
//
// # Connection Lifecycle
//
// Connect retries establishment with bounded attempts and a fixed delay, then
// surfaces the last error. Once established, the connection lives for the
// process lifetime; if the driver reports it bad, it is dropped and lazily
// re-established on the next primitive call. Schema creation is idempotent and
// runs on every (re)establishment.
//
// # Testing
//
// Use NewConnector(":memory:", ...) for tests; the held connection keeps the
// in-memory database alive for the connector's lifetime.
package store
