package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tss-calculator/firmware-tools/pkg/configurator/application/model"
)

// Operation is the live handle of one accepted command.
// It owns every external process launched on its behalf.
type Operation struct {
	id        uuid.UUID
	kind      model.OperationKind
	target    string
	startedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	processes []model.Process

	done chan struct{}
	err  error
}

func newOperation(parent context.Context, kind model.OperationKind, target string, timeout time.Duration) *Operation {
	op := &Operation{
		id:        uuid.New(),
		kind:      kind,
		target:    target,
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(parent, timeout)
	} else {
		ctx, cancel = context.WithCancel(parent)
	}
	op.ctx = model.WithProcessTracker(ctx, op)
	op.cancel = cancel
	return op
}

func (op *Operation) ID() uuid.UUID {
	return op.id
}

func (op *Operation) Kind() model.OperationKind {
	return op.kind
}

func (op *Operation) Target() string {
	return op.target
}

func (op *Operation) StartedAt() time.Time {
	return op.startedAt
}

func (op *Operation) Info() model.OperationInfo {
	return model.OperationInfo{
		ID:        op.id,
		Kind:      op.kind,
		Target:    op.target,
		StartedAt: op.startedAt,
	}
}

// Track implements model.ProcessTracker.
func (op *Operation) Track(process model.Process) {
	op.mu.Lock()
	defer op.mu.Unlock()
	op.processes = append(op.processes, process)
}

// Label implements model.ProcessTracker.
func (op *Operation) Label() string {
	return op.kind.EventPrefix()
}

// Terminate cancels the operation and kills every process it launched.
func (op *Operation) Terminate() {
	op.cancel()
	op.mu.Lock()
	processes := append([]model.Process(nil), op.processes...)
	op.mu.Unlock()
	for _, p := range processes {
		_ = p.Kill()
	}
}

// Done is closed once the terminal event has been emitted.
func (op *Operation) Done() <-chan struct{} {
	return op.done
}

// Err is the operation's outcome; valid after Done is closed.
func (op *Operation) Err() error {
	select {
	case <-op.done:
		return op.err
	default:
		return nil
	}
}

func (op *Operation) Wait(ctx context.Context) error {
	select {
	case <-op.done:
		return op.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (op *Operation) finish(err error) {
	op.err = err
	op.cancel()
	close(op.done)
}
