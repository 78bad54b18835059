// Package ffprobe wraps ffprobe JSON output for encoded episode audio.
//
// The assembler writes WAV itself and measures it directly; ffprobe is only
// consulted for artifacts produced by ffmpeg (MP3 episodes and non-WAV music
// assets) where the container header is the only reliable duration source.
//
// Key types:
//   - Result: parsed ffprobe output containing streams and format metadata
//   - Stream: audio stream properties
//   - Format: container-level metadata (duration, size, bitrate)
//
// Primary entry point:
//   - Inspect: executes ffprobe and returns parsed Result
package ffprobe
