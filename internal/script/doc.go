// Package script turns scraped source items and the two host personas into a
// dialogue script.
//
// Generation goes through the script API when one is configured. Any failure
// on that path (transport errors, empty replies, unparseable dialogue, unknown
// speakers) falls back to a deterministic script built from item titles, so a
// run never stops because the language model misbehaved. The generator
// reports which path produced the script through stage.Result.
package script
