package types

import "errors"

// Error kinds for the organize and batch pipelines. Call sites wrap
// with fmt.Errorf("...: %w") and callers classify with errors.Is.
var (
	// ErrValidation marks ill-formed input rejected at the boundary.
	ErrValidation = errors.New("validation failed")

	// ErrRequestTooLarge marks a request over the serialized size cap.
	ErrRequestTooLarge = errors.New("request too large")

	// ErrLLMTransient marks rate limits, overload and network flakes on
	// the LLM provider. Retried with backoff.
	ErrLLMTransient = errors.New("llm transient failure")

	// ErrLLMPermanent marks provider 4xx responses other than 429.
	ErrLLMPermanent = errors.New("llm permanent failure")

	// ErrBadResponse marks non-JSON or schema-violating model output.
	ErrBadResponse = errors.New("bad llm response")

	// ErrStoreTransient marks CAS conflicts and network flakes on the
	// entity store. Retried; CAS retries refetch the current tip.
	ErrStoreTransient = errors.New("entity store transient failure")

	// ErrStorePermanent marks store 4xx responses and missing entities.
	ErrStorePermanent = errors.New("entity store permanent failure")

	// ErrNotFound marks a status query for an unknown batch.
	ErrNotFound = errors.New("not found")
)
