// Package notifications delivers pipeline events to ntfy.
//
// NewService returns a no-op implementation when no topic is configured.
// Callers publish an Event with a loosely typed Payload; the service formats
// the message and drops events the configuration has switched off.
package notifications
