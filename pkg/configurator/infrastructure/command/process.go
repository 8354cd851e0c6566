package command

import (
	"context"
	"sync"
	"time"
)

// Process is the handle of one launched command.
type Process struct {
	command Command

	mu        sync.Mutex
	pid       int
	startedAt time.Time
	done      chan struct{}
	err       error
}

func (p *Process) start(pid int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pid = pid
	p.startedAt = time.Now()
}

func (p *Process) finish(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
	close(p.done)
}

func (p *Process) Pid() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pid
}

func (p *Process) StartedAt() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.startedAt
}

func (p *Process) Command() Command {
	return p.command
}

func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Err is the outcome of the process; it is only meaningful once Done is closed.
func (p *Process) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *Process) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Process) Running() bool {
	select {
	case <-p.done:
		return false
	default:
		return p.Pid() != 0
	}
}

// Kill forcibly terminates the process and all of its descendants.
func (p *Process) Kill() error {
	if !p.Running() {
		return nil
	}
	return killProcessTree(p.Pid())
}
