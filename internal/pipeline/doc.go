// Package pipeline runs one episode from scraped sources to a published feed.
//
// The Orchestrator walks the stages in stage.Order. Every stage writes its
// artifact into the run directory before the next one starts, and every
// transition is recorded in the run ledger. Stages report a stage.Kind; the
// orchestrator continues on OK and Recovered and stops on Failed. The feed
// state file is replaced only in the final commit stage, after the audio and
// the regenerated feed have both been uploaded, so a failed run never changes
// what listeners see.
//
// A file lock guards the whole run. A second invocation fails fast with
// services.ErrLocked instead of waiting.
package pipeline
