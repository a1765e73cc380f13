package scheduler

import "context"

// Job is a unit of work run by the worker pool.
type Job interface {
	// Execute runs the job. It must respect ctx cancellation.
	Execute(ctx context.Context) error

	// UserID identifies the user whose data the job touches, for logging.
	UserID() string

	Description() string
}
