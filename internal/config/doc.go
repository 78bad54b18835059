// Package config loads, normalizes, and validates morgonpodd configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files (or JSON files with the same field names), and
// honours environment fallbacks such as OPENAI_API_KEY and ELEVENLABS_API_KEY.
// The Config type centralizes every knob the pipeline and CLI need, including
// the two host personas, scrape sources, and publication targets.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical policies, and clear validation errors.
package config
