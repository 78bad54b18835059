// Package speech renders planned chunks to audio through the speech API.
//
// Chunks are independent: a bounded pool of workers renders them in any
// order, and a failure on one chunk never stops the others. Each chunk gets a
// bounded number of attempts with exponential backoff, and every attempt
// leaves a file in the run's segments directory (the audio on success, the
// error text on failure) so failed renders can be inspected afterwards.
//
// What happens to a chunk that still fails is decided by the caller; see
// SubstituteSilence for the default policy.
package speech
