package pipeline

import "errors"

var (
	// ErrQueueRequired is returned when a queue repository is not provided.
	ErrQueueRequired = errors.New("queue repository required")

	// ErrJobsRequired is returned when a job repository is not provided.
	ErrJobsRequired = errors.New("job repository required")

	// ErrPointsRequired is returned when a point repository is not provided.
	ErrPointsRequired = errors.New("point repository required")

	// ErrProviderRequired is returned when an AI provider is not provided.
	ErrProviderRequired = errors.New("AI provider required")

	// ErrDispatcherRequired is returned when a webhook dispatcher is not provided.
	ErrDispatcherRequired = errors.New("webhook dispatcher required")

	// ErrHandlerRequired is returned when a runner is built without a handler.
	ErrHandlerRequired = errors.New("task handler required")

	// ErrInvalidMaxAttempts is returned when retry is configured with
	// a non-positive attempt count.
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than zero")
)
