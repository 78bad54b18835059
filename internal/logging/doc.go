// Package logging assembles structured slog loggers and formatting helpers used
// across morgonpodd.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so stage code can automatically
// tag log lines with run IDs, stages, chunk indices, and correlation IDs. The
// package also provides a no-op logger for tests and wiring code that cannot
// fail, plus retention pruning for the daily log files.
package logging
