/*
Package llm implements the OpenAI-compatible chat completion surface on top
of the Kimi chat backend.

# Architecture Overview

1. HTTP Handlers (handlers.go)
  - /v1/chat/completions and /v1/models
  - Credential extraction, request decoding, OpenAI error envelopes
  - Server-sent event delivery with per-frame flushing

2. Service Layer (service.go)
  - Completion assembly for single-shot requests
  - Stream assembly: a producer goroutine feeding a bounded channel

3. Authorization (authorization.go)
  - Only Kimi access tokens are forwarded; refresh tokens are rejected
  - Builds the per-request rpc.Config from the token's session claims
  - Maps errors to HTTP status codes

4. Scenario Resolution (scenario.go)
  - Model name to backend scenario and thinking mode

5. Configuration (config.go)
  - YAML file plus environment overrides

# Integration Flow

 1. Request arrives at /v1/chat/completions
 2. The bearer credential is read from Authorization or x-goog-api-key
 3. The credential must be a structured access token
 4. Device, session and user ids are read from its claims
 5. The model name selects the scenario and thinking mode
 6. The last message's text is sent to the backend
 7. The reply is returned as a chat.completion object or as
    chat.completion.chunk events ending with "data: [DONE]"

# Streaming

The stream producer starts before the client reads. When the frame buffer is
full the producer blocks, so nothing is dropped or reordered. A "done" event
from the backend produces exactly one terminal chunk (empty delta,
finish_reason "stop") and the sentinel frame; nothing after it is read. A
backend failure closes the frame channel without the terminal chunk, and the
handler aborts the HTTP response.

# Usage Accounting

prompt_tokens and completion_tokens are character counts of the prompt and
reply text, not tokenizer output. Clients already rely on these numbers.
*/
package llm
