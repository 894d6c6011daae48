package domain

import "errors"

var (
	// ErrValidation is returned for user-correctable input problems,
	// such as creating content for an unknown author.
	ErrValidation = errors.New("validation failed")

	// ErrUpstreamUnavailable is returned when a downstream dependency
	// timed out, failed, or its circuit breaker is open.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrNotFound is returned when an entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrMalformedEvent marks an event payload that cannot be processed.
	// Consumer-local: logged and skipped, never surfaced.
	ErrMalformedEvent = errors.New("malformed event")

	// ErrPublishExhausted is returned when a publish ran out of retry
	// attempts. Internal: triggers the dead-letter append, not surfaced
	// to the caller of the write path.
	ErrPublishExhausted = errors.New("publish attempts exhausted")
)
