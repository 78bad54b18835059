// Package services defines shared utilities consumed by the pipeline stages
// and their external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, stage names, chunk indices, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper so every failure carries
//     one classification (source, generation, synthesis, assembly, publish).
//
// Use these helpers when wiring new stage logic so operational behaviour (error
// handling, observability, retries) stays uniform across the pipeline.
package services
