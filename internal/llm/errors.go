package llm

import "errors"

// ErrProviderFailed marks a single provider attempt as failed for the
// current call.
var ErrProviderFailed = errors.New("llm: provider failed")

// ErrMalformedPayload marks a completion that could not be parsed as JSON
// when JSON extraction was requested.
var ErrMalformedPayload = errors.New("llm: malformed payload")

// ErrAllProvidersExhausted would be returned if even the deterministic
// terminal provider failed; this should never happen by construction,
// but Router.Complete and Router.ReasoningVector still return it defensively rather
// than panicking if a misconfigured Router omits a terminal provider.
var ErrAllProvidersExhausted = errors.New("llm: all providers exhausted, no terminal provider configured")
