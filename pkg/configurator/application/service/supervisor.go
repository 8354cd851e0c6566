package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	applogger "github.com/tss-calculator/go-lib/pkg/application/logger"
	"golang.org/x/sync/semaphore"

	"github.com/tss-calculator/firmware-tools/pkg/configurator/application/model"
)

type Supervisor interface {
	Setup() (*Operation, error)
	UpdateTools() (*Operation, error)
	CloneRepository() (*Operation, error)
	PullRepository() (*Operation, error)
	ListBranches() (*Operation, error)
	ResetBranch(branch string) (*Operation, error)
	BuildTarget(target string) (*Operation, error)
	UploadTarget(target string) (*Operation, error)
	// Restore loads the repository state left by a previous run.
	Restore(ctx context.Context) error
	Snapshot() model.Snapshot
	// Live reports whether an operation of the kind is in flight.
	Live(kind model.OperationKind) bool
	// Shutdown terminates every live operation and waits for their terminal events.
	Shutdown(ctx context.Context) error
}

// repositoryWriteWeight is the repository lock weight of a mutating operation.
// Readers acquire 1, so a writer excludes everything and readers share.
const repositoryWriteWeight = 1 << 16

func NewSupervisor(
	config model.Configurator,
	logger applogger.Logger,
	emitter EventEmitter,
	bootstrap *Bootstrap,
	repositorySync *RepositorySync,
	toolchain Toolchain,
	builder FirmwareBuilder,
) Supervisor {
	ctx, cancel := context.WithCancel(context.Background())
	return &supervisor{
		config:         config,
		logger:         logger,
		emitter:        emitter,
		bootstrap:      bootstrap,
		repositorySync: repositorySync,
		toolchain:      toolchain,
		builder:        builder,
		repositoryLock: semaphore.NewWeighted(repositoryWriteWeight),
		operations:     make(map[model.OperationKind]*Operation),
		ctx:            ctx,
		cancel:         cancel,
	}
}

type supervisor struct {
	config model.Configurator

	logger         applogger.Logger
	emitter        EventEmitter
	bootstrap      *Bootstrap
	repositorySync *RepositorySync
	toolchain      Toolchain
	builder        FirmwareBuilder

	repositoryLock *semaphore.Weighted

	mu           sync.Mutex
	operations   map[model.OperationKind]*Operation
	shuttingDown bool
	wg           sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// command describes one accepted request.
type command struct {
	kind   model.OperationKind
	target string
	// validate runs synchronously after the busy check; a failure is reported without starting anything.
	validate func() error
	run      func(ctx context.Context, op *Operation) error
	// terminal builds the terminal event; nil means the default "<prefix>-success|failed" event.
	terminal func(err error) model.Event
	// success decorates the default success event with its payload.
	success func(event *model.Event)
}

func (service *supervisor) Setup() (*Operation, error) {
	var failedStage model.BootstrapStage
	return service.start(command{
		kind: model.OperationSetup,
		run: func(ctx context.Context, op *Operation) error {
			err := service.bootstrap.Run(ctx, func(stage model.BootstrapStage) {
				service.logger.Info(stage.Label())
				event := model.NewStageEvent(model.OperationSetup, stage)
				event.OperationID = idOf(op)
				service.emitter.Emit(event)
			})
			var stageErr *StageError
			if errors.As(err, &stageErr) {
				failedStage = stageErr.Stage
			}
			return err
		},
		terminal: func(err error) model.Event {
			if err == nil {
				event := model.NewOperationEvent(model.OperationSetup, model.PhaseSuccess)
				service.withRepositoryPayload(&event)
				event.Targets = service.repositorySync.State().Targets()
				return event
			}
			event := model.NewOperationEvent(model.OperationSetup, model.PhaseFailed)
			if failedStage != "" {
				event.Stage = failedStage.Label()
			}
			return event
		},
	})
}

func (service *supervisor) UpdateTools() (*Operation, error) {
	return service.start(command{
		kind: model.OperationActivate,
		run: func(ctx context.Context, _ *Operation) error {
			return service.toolchain.UpdateSupportTools(ctx)
		},
	})
}

// CloneRepository clones when the repository is absent and then pulls, all inside one operation.
// A successful clone reports clone-success; the operation then ends with the pull outcome.
// A failed clone ends with clone-failed and does not pull.
func (service *supervisor) CloneRepository() (*Operation, error) {
	pulling := false
	return service.start(command{
		kind: model.OperationClone,
		run: func(ctx context.Context, op *Operation) error {
			cloned, err := service.repositorySync.CloneIfNotExist(ctx)
			if err != nil {
				return err
			}
			if cloned {
				event := model.NewOperationEvent(model.OperationClone, model.PhaseSuccess)
				event.OperationID = idOf(op)
				service.withRepositoryPayload(&event)
				service.emitter.Emit(event)
			}
			pulling = true
			return service.repositorySync.Pull(ctx)
		},
		terminal: func(err error) model.Event {
			if !pulling {
				event := model.NewOperationEvent(model.OperationClone, model.PhaseFailed)
				return event
			}
			return service.pullEvent(err)
		},
	})
}

func (service *supervisor) PullRepository() (*Operation, error) {
	return service.start(command{
		kind: model.OperationPull,
		run: func(ctx context.Context, _ *Operation) error {
			return service.repositorySync.Pull(ctx)
		},
		terminal: service.pullEvent,
	})
}

func (service *supervisor) ListBranches() (*Operation, error) {
	return service.start(command{
		kind: model.OperationListBranches,
		run: func(ctx context.Context, _ *Operation) error {
			return service.repositorySync.ListBranches(ctx)
		},
		success: service.withRepositoryPayload,
	})
}

func (service *supervisor) ResetBranch(branch string) (*Operation, error) {
	var reference model.RemoteReference
	return service.start(command{
		kind:   model.OperationResetBranch,
		target: branch,
		validate: func() (err error) {
			reference, err = service.repositorySync.ValidateReference(branch)
			return err
		},
		run: func(ctx context.Context, _ *Operation) error {
			return service.repositorySync.ResetToReference(ctx, reference)
		},
		success: func(event *model.Event) {
			state := service.repositorySync.State()
			event.CurrentRemote = state.CurrentRemote()
			event.Targets = state.Targets()
		},
	})
}

func (service *supervisor) BuildTarget(target string) (*Operation, error) {
	return service.start(command{
		kind:     model.OperationBuild,
		target:   target,
		validate: func() error { return service.validateTarget(target) },
		run: func(ctx context.Context, _ *Operation) error {
			return service.builder.Build(ctx, target)
		},
	})
}

func (service *supervisor) UploadTarget(target string) (*Operation, error) {
	return service.start(command{
		kind:     model.OperationUpload,
		target:   target,
		validate: func() error { return service.validateTarget(target) },
		run: func(ctx context.Context, _ *Operation) error {
			return service.builder.Upload(ctx, target)
		},
	})
}

func (service *supervisor) Restore(ctx context.Context) error {
	err := service.repositoryLock.Acquire(ctx, repositoryWriteWeight)
	if err != nil {
		return errors.Wrap(err, "failed to acquire repository lock")
	}
	defer service.repositoryLock.Release(repositoryWriteWeight)
	return service.repositorySync.Restore()
}

func (service *supervisor) Snapshot() model.Snapshot {
	snapshot := service.repositorySync.State().Snapshot()
	service.mu.Lock()
	defer service.mu.Unlock()
	for _, kind := range model.OperationKinds {
		if op, ok := service.operations[kind]; ok {
			snapshot.Operations = append(snapshot.Operations, op.Info())
		}
	}
	return snapshot
}

func (service *supervisor) Live(kind model.OperationKind) bool {
	service.mu.Lock()
	defer service.mu.Unlock()
	_, ok := service.operations[kind]
	return ok
}

func (service *supervisor) Shutdown(ctx context.Context) error {
	service.mu.Lock()
	service.shuttingDown = true
	live := make([]*Operation, 0, len(service.operations))
	for _, kind := range model.OperationKinds {
		op, ok := service.operations[kind]
		if !ok {
			continue
		}
		live = append(live, op)
		delete(service.operations, kind)
	}
	service.mu.Unlock()

	for _, op := range live {
		service.logger.Info(fmt.Sprintf("terminating %v operation %v", op.Kind(), op.ID()))
		op.Terminate()
	}
	service.cancel()

	done := make(chan struct{})
	go func() {
		service.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "operations did not finish before shutdown deadline")
	}
}

func (service *supervisor) start(cmd command) (*Operation, error) {
	service.mu.Lock()
	if service.shuttingDown {
		service.mu.Unlock()
		return nil, model.ErrShuttingDown
	}
	if live, ok := service.operations[cmd.kind]; ok {
		service.mu.Unlock()
		err := errors.Wrapf(model.ErrOperationBusy, "%v operation %v", cmd.kind, live.ID())
		event := model.NewOperationEvent(cmd.kind, model.PhaseBusy)
		event.OperationID = idOf(live)
		event.Target = cmd.target
		event.Error = err.Error()
		service.emitter.Emit(event)
		return nil, err
	}
	if cmd.validate != nil {
		if err := cmd.validate(); err != nil {
			service.mu.Unlock()
			service.logger.Error(err, fmt.Sprintf("rejected %v request", cmd.kind))
			event := model.NewOperationEvent(cmd.kind, model.PhaseFailed)
			event.Target = cmd.target
			event.Error = err.Error()
			service.emitter.Emit(event)
			return nil, err
		}
	}
	op := newOperation(service.ctx, cmd.kind, cmd.target, service.config.OperationTimeout)
	service.operations[cmd.kind] = op
	service.wg.Add(1)
	service.mu.Unlock()

	event := model.NewOperationEvent(cmd.kind, model.PhaseStarted)
	event.OperationID = idOf(op)
	event.Target = cmd.target
	service.emitter.Emit(event)

	go service.execute(op, cmd)
	return op, nil
}

func (service *supervisor) execute(op *Operation, cmd command) {
	defer service.wg.Done()
	start := time.Now()

	err := service.withRepositoryLock(op, func() error {
		return cmd.run(op.ctx, op)
	})
	if err != nil {
		service.logger.Error(err, fmt.Sprintf("%v operation failed", cmd.kind))
	} else {
		service.logger.Info(fmt.Sprintf("%v operation done in %v", cmd.kind, time.Since(start).String()))
	}

	service.mu.Lock()
	if service.operations[cmd.kind] == op {
		delete(service.operations, cmd.kind)
	}
	service.mu.Unlock()

	service.emitter.Emit(service.terminalEvent(op, cmd, err))
	op.finish(err)
}

func (service *supervisor) withRepositoryLock(op *Operation, f func() error) error {
	var weight int64
	switch {
	case op.Kind().MutatesRepository():
		weight = repositoryWriteWeight
	case op.Kind().ReadsRepository():
		weight = 1
	default:
		return f()
	}
	err := service.repositoryLock.Acquire(op.ctx, weight)
	if err != nil {
		return errors.Wrap(err, "failed to acquire repository lock")
	}
	defer service.repositoryLock.Release(weight)
	return f()
}

func (service *supervisor) terminalEvent(op *Operation, cmd command, err error) model.Event {
	var event model.Event
	switch {
	case cmd.terminal != nil:
		event = cmd.terminal(err)
	case err == nil:
		event = model.NewOperationEvent(cmd.kind, model.PhaseSuccess)
	default:
		event = model.NewOperationEvent(cmd.kind, model.PhaseFailed)
	}
	if err == nil && cmd.success != nil {
		cmd.success(&event)
	}
	event.OperationID = idOf(op)
	event.Target = cmd.target
	if err != nil {
		event.Error = err.Error()
	}
	return event
}

func (service *supervisor) pullEvent(err error) model.Event {
	if err != nil {
		return model.NewOperationEvent(model.OperationPull, model.PhaseFailed)
	}
	event := model.NewOperationEvent(model.OperationPull, model.PhaseSuccess)
	service.withRepositoryPayload(&event)
	event.Targets = service.repositorySync.State().Targets()
	return event
}

func (service *supervisor) withRepositoryPayload(event *model.Event) {
	state := service.repositorySync.State()
	references := state.References()
	event.Branches = references.BranchNames()
	event.Tags = references.TagNames()
	event.CurrentRemote = state.CurrentRemote()
}

func (service *supervisor) validateTarget(target string) error {
	if target == "" {
		return errors.Wrap(model.ErrInvalidArgument, "build target is empty")
	}
	state := service.repositorySync.State()
	if len(state.Targets()) > 0 && !state.HasTarget(target) {
		return errors.Wrapf(model.ErrUnknownTarget, "%q", target)
	}
	return nil
}

func idOf(op *Operation) *uuid.UUID {
	id := op.ID()
	return &id
}
