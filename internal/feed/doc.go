// Package feed maintains the published episode history and renders the
// podcast feed from it.
//
// State is the single record of what has been published. It is bounded,
// kept newest first, and only ever replaced atomically. The RSS document is
// rebuilt from the full state on every render, never patched.
package feed
