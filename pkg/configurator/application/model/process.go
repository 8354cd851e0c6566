package model

import "context"

// Process is a live external process that can be forcibly terminated.
type Process interface {
	Pid() int
	Kill() error
}

// ProcessTracker receives every process launched on behalf of an operation.
type ProcessTracker interface {
	Track(process Process)
	Label() string
}

type processTrackerKey struct{}

func WithProcessTracker(ctx context.Context, tracker ProcessTracker) context.Context {
	return context.WithValue(ctx, processTrackerKey{}, tracker)
}

func ProcessTrackerFromContext(ctx context.Context) (ProcessTracker, bool) {
	tracker, ok := ctx.Value(processTrackerKey{}).(ProcessTracker)
	return tracker, ok
}
