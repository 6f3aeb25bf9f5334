package session

import "context"

// strategy is the per-protocol start/stop behavior behind the
// controller. One variant per fuzzing backend; the controller selects
// it once at Start and never dispatches on protocol strings again.
type strategy interface {
	start(ctx context.Context) error
	stop(ctx context.Context)
}
