// Package runlog persists the history of pipeline runs in SQLite.
//
// Each run is one row keyed by run ID with its terminal status and issue
// count; stage transitions are appended to a separate events table so the
// CLI can show where an interrupted or failed run stopped. Runs left in the
// running state by a crash are marked failed on the next start.
package runlog
