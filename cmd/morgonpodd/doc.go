// Package main hosts the morgonpodd CLI entrypoint and command graph.
//
// The Cobra command tree runs the daily pipeline once or on a schedule,
// inspects the feed state and run ledger, manages the music catalog, serves
// the local preview API and checks external dependencies. Configuration
// resolution and logging setup live in commandContext so subcommands only
// deal with presentation.
//
// Keep this package lean: new behaviour belongs in internal packages first
// and is surfaced here through a dedicated command or flag.
package main
