package command

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	applogger "github.com/tss-calculator/go-lib/pkg/application/logger"

	"github.com/tss-calculator/firmware-tools/pkg/configurator/application/model"
)

const (
	waitDelay     = 5 * time.Second
	maxLineLength = 64 * 1024
)

type Command struct {
	WorkDir    string
	Executable string
	Args       []string
	Env        []string
}

func (command Command) String() string {
	return strings.Join(append([]string{command.Executable}, command.Args...), " ")
}

// OutputSink receives every line a process writes.
type OutputSink interface {
	WriteLine(source, stream, line string)
}

type Runner interface {
	// Run starts the command and returns immediately. Exactly one of the callbacks is
	// invoked once the process has finished, including when it could not be launched.
	Run(ctx context.Context, command Command, onSuccess func(), onFailure func(err error)) *Process
	// Execute runs the command and blocks until it exits.
	Execute(ctx context.Context, command Command) error
}

func NewCommandRunner(logger applogger.Logger, sink OutputSink) Runner {
	return &runner{
		logger: logger,
		sink:   sink,
	}
}

type runner struct {
	logger applogger.Logger
	sink   OutputSink
}

func (r runner) Run(ctx context.Context, command Command, onSuccess func(), onFailure func(err error)) *Process {
	process := &Process{
		command: command,
		done:    make(chan struct{}),
	}
	source := filepath.Base(command.Executable)
	tracker, tracked := model.ProcessTrackerFromContext(ctx)
	if tracked {
		source = tracker.Label()
	}

	if command.Executable == "" {
		go r.finish(process, &model.LaunchError{Command: command.String(), Err: errors.New("command executable can not be empty")}, onSuccess, onFailure)
		return process
	}
	// nolint:gosec
	cmd := exec.CommandContext(ctx, command.Executable, command.Args...)
	cmd.Dir = command.WorkDir
	if len(command.Env) > 0 {
		cmd.Env = append(os.Environ(), command.Env...)
	}
	cmd.Cancel = func() error {
		return killProcessTree(cmd.Process.Pid)
	}
	cmd.WaitDelay = waitDelay

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		go r.finish(process, &model.LaunchError{Command: command.String(), Err: err}, onSuccess, onFailure)
		return process
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		go r.finish(process, &model.LaunchError{Command: command.String(), Err: err}, onSuccess, onFailure)
		return process
	}

	r.logger.Debug(cmd.String())
	if err = cmd.Start(); err != nil {
		go r.finish(process, &model.LaunchError{Command: command.String(), Err: err}, onSuccess, onFailure)
		return process
	}
	process.start(cmd.Process.Pid)
	if tracked {
		tracker.Track(process)
	}

	go func() {
		var wg sync.WaitGroup
		wg.Add(2)
		go r.stream(&wg, source, "stdout", stdout)
		go r.stream(&wg, source, "stderr", stderr)
		wg.Wait()
		r.finish(process, classify(command, cmd.Wait()), onSuccess, onFailure)
	}()
	return process
}

func (r runner) Execute(ctx context.Context, command Command) error {
	process := r.Run(ctx, command, nil, nil)
	<-process.Done()
	return process.Err()
}

// stream forwards the pipe line by line until EOF. Lines longer than maxLineLength
// are delivered in several pieces, the pipe is never left undrained.
func (r runner) stream(wg *sync.WaitGroup, source, stream string, pipe io.Reader) {
	defer wg.Done()
	reader := bufio.NewReaderSize(pipe, maxLineLength)
	for {
		line, _, err := reader.ReadLine()
		if err != nil {
			if err != io.EOF && !errors.Is(err, os.ErrClosed) {
				r.logger.Error(err, "failed to read "+stream+" of "+source)
			}
			return
		}
		r.logger.Debug("[" + source + "] " + string(line))
		if r.sink != nil {
			r.sink.WriteLine(source, stream, string(line))
		}
	}
}

func (r runner) finish(process *Process, err error, onSuccess func(), onFailure func(err error)) {
	if err != nil {
		r.logger.Error(err, "command failed: "+process.command.String())
		if onFailure != nil {
			onFailure(err)
		}
	} else if onSuccess != nil {
		onSuccess()
	}
	process.finish(err)
}

func classify(command Command, err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &model.ExitError{Command: command.String(), Code: exitErr.ExitCode()}
	}
	return errors.Wrapf(err, "failed to wait for %v", command.String())
}
