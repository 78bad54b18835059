// Package api defines the transport-friendly views of episodes, runs and
// readiness, and the read-only HTTP preview server built on them.
//
// # Key Types
//
// Episode: feed.Episode with camelCase fields and RFC3339 timestamps.
//
// Run / RunEvent: ledger rows from runlog, with derived durations.
//
// Diagnostics: external binaries plus storage, script API and speech API
// readiness, shared by `morgonpodd doctor` and GET /health.
//
// # Server
//
// NewServer wires a gin engine that serves the current feed document, the
// locally stored episode audio and JSON views of the feed state and run
// ledger. It never mutates state; runs are started from the CLI only.
package api
