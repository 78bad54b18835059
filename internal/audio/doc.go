// Package audio assembles the episode waveform.
//
// All audio inside the pipeline is mono 16-bit little-endian PCM at the
// configured speech sample rate. The package owns the WAV codec used for
// rendered segments, duration-matched silence, conversion of music assets
// in other formats, and the Assembler that lays out
//
//	intro, segment 0, [transition, segment k]..., outro
//
// with a fixed silence gap at every join. After writing, the assembled file
// is re-read and its duration checked against the sum of its components.
//
// MP3 output is optional and produced with ffmpeg from the verified WAV.
package audio
