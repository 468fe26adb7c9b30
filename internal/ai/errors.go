package ai

import "errors"

var (
	// ErrEmbeddingFailed marks an embedding request that did not produce a
	// vector, after retries.
	ErrEmbeddingFailed = errors.New("embedding request failed")

	// ErrClassificationFailed marks a classification request that did not
	// produce a response, after retries. Responses that parse to garbage are
	// NOT this error; the decision engine fail-safes those to status 0.
	ErrClassificationFailed = errors.New("classification request failed")

	// ErrProviderUnavailable is returned when the circuit breaker is open
	// and requests are failing fast without reaching the provider.
	ErrProviderUnavailable = errors.New("AI provider unavailable (circuit open)")

	// ErrRateLimited marks a request the provider throttled through every
	// retry attempt.
	ErrRateLimited = errors.New("AI provider rate limited")
)
