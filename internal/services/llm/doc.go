// Package llm provides the chat completion client used to write episode scripts.
//
// The client speaks the OpenAI chat completions protocol through openai-go and
// works against any compatible endpoint (OpenAI, OpenRouter, local servers).
//
// # Entry Points
//
// NewClient: construct client from Config.
// Client.Complete: send system/user prompts, receive plain text.
// Client.CompleteJSON: same, asking the model for a JSON object.
// Client.HealthCheck: verify API key and model availability.
// DecodeLLMJSON: decode model output, tolerating code fences and prose.
//
// # Retry Behaviour
//
// The SDK's own retries are disabled. The client retries on HTTP 408/429/5xx
// errors, network timeouts and empty completions with exponential backoff
// (base 1s, max 10s, 3 attempts by default), honouring Retry-After. Context
// cancellation aborts retries immediately.
//
// # Fallback
//
// Callers are expected to fall back to a deterministic script when the
// client returns an error.
package llm
