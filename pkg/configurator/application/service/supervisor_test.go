package service

import (
	"context"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/tss-calculator/firmware-tools/pkg/configurator/application/model"
)

func TestBuildTargetRejectsSecondRequestWhileBusy(t *testing.T) {
	builder := newFakeBuilder(true)
	env := newTestEnv(t, &fakeProvider{exist: true}, builder, []string{"envA"})

	first, err := env.service.BuildTarget("envA")
	if err != nil {
		t.Fatalf("first build rejected: %v", err)
	}
	<-builder.entered

	second, err := env.service.BuildTarget("envA")
	if !errors.Is(err, model.ErrOperationBusy) {
		t.Fatalf("expected busy error, got %v", err)
	}
	if second != nil {
		t.Fatal("busy request must not return an operation")
	}
	busy := env.emitter.WaitFor(t, "build-busy")
	if busy.OperationID == nil || *busy.OperationID != first.ID() {
		t.Errorf("busy event should reference the live operation, got %v", busy.OperationID)
	}

	close(builder.release)
	if err = waitOperation(t, first); err != nil {
		t.Fatalf("first build failed: %v", err)
	}
	if env.service.Live(model.OperationBuild) {
		t.Error("build guard not cleared after completion")
	}

	third, err := env.service.BuildTarget("envA")
	if err != nil {
		t.Fatalf("build after completion rejected: %v", err)
	}
	if err = waitOperation(t, third); err != nil {
		t.Fatalf("third build failed: %v", err)
	}
	if calls := builder.Calls(); len(calls) != 2 {
		t.Errorf("expected two builds, got %v", calls)
	}
}

func TestResetBranchRejectsUnknownReference(t *testing.T) {
	provider := &fakeProvider{exist: true}
	env := newTestEnv(t, provider, newFakeBuilder(false), []string{"envA"})
	env.sync.State().ReplaceReferences(testReferences())

	op, err := env.service.ResetBranch("nonexistent-branch")
	if !errors.Is(err, model.ErrUnknownReference) {
		t.Fatalf("expected unknown reference error, got %v", err)
	}
	if op != nil {
		t.Fatal("rejected reset must not return an operation")
	}
	if calls := provider.Calls(); len(calls) != 0 {
		t.Errorf("no repository tool may run, got %v", calls)
	}
	event, ok := env.emitter.Find("reset-failed")
	if !ok {
		t.Fatalf("reset-failed not emitted, got %v", env.emitter.Names())
	}
	if event.Target != "nonexistent-branch" {
		t.Errorf("unexpected target %q", event.Target)
	}
	if _, ok = env.emitter.Find("reset-started"); ok {
		t.Error("rejected reset must not emit reset-started")
	}
	if env.service.Live(model.OperationResetBranch) {
		t.Error("rejected reset must not hold the guard")
	}
}

func TestResetBranchToTag(t *testing.T) {
	provider := &fakeProvider{exist: true, head: model.Head{Hash: hashMain, Branch: "main"}}
	env := newTestEnv(t, provider, newFakeBuilder(false), []string{"envA"})
	env.sync.State().ReplaceReferences(testReferences())

	op, err := env.service.ResetBranch("1.0.0")
	if err != nil {
		t.Fatal(err)
	}
	if err = waitOperation(t, op); err != nil {
		t.Fatal(err)
	}
	want := []string{"checkout 1.0.0", "reset 1.0.0"}
	if calls := provider.Calls(); !reflect.DeepEqual(calls, want) {
		t.Errorf("expected %v, got %v", want, calls)
	}
	event := env.emitter.WaitFor(t, "reset-success")
	if event.CurrentRemote == nil || *event.CurrentRemote != "1.0.0" {
		t.Errorf("unexpected current remote %v", event.CurrentRemote)
	}
	if !reflect.DeepEqual(event.Targets, []string{"envA"}) {
		t.Errorf("unexpected targets %v", event.Targets)
	}
}

func TestCommandScenario(t *testing.T) {
	provider := &fakeProvider{head: model.Head{Hash: hashMain, Branch: "main"}}
	env := newTestEnv(t, provider, newFakeBuilder(false), []string{"envA"})

	steps := []struct {
		name    string
		start   func() (*Operation, error)
		success string
	}{
		{name: "clone", start: env.service.CloneRepository, success: "pull-success"},
		{name: "list branches", start: env.service.ListBranches, success: "branches-success"},
		{name: "reset", start: func() (*Operation, error) { return env.service.ResetBranch("main") }, success: "reset-success"},
		{name: "build", start: func() (*Operation, error) { return env.service.BuildTarget("envA") }, success: "build-success"},
		{name: "upload", start: func() (*Operation, error) { return env.service.UploadTarget("envA") }, success: "upload-success"},
	}
	for _, step := range steps {
		op, err := step.start()
		if err != nil {
			t.Fatalf("%v rejected: %v", step.name, err)
		}
		if err = waitOperation(t, op); err != nil {
			t.Fatalf("%v failed: %v", step.name, err)
		}
		env.emitter.WaitFor(t, step.success)
	}

	var terminal []string
	for _, event := range env.emitter.Events() {
		if event.Phase == model.PhaseSuccess || event.Phase == model.PhaseFailed {
			terminal = append(terminal, event.Name)
		}
	}
	want := []string{"clone-success", "pull-success", "branches-success", "reset-success", "build-success", "upload-success"}
	if !reflect.DeepEqual(terminal, want) {
		t.Errorf("expected %v, got %v", want, terminal)
	}

	branches, _ := env.emitter.Find("branches-success")
	if !reflect.DeepEqual(branches.Branches, []string{"main", "release/1.0"}) {
		t.Errorf("unexpected branches %v", branches.Branches)
	}
	if branches.CurrentRemote == nil || *branches.CurrentRemote != "main" {
		t.Errorf("unexpected current remote %v", branches.CurrentRemote)
	}
	for _, name := range []string{"build-success", "upload-success"} {
		event, _ := env.emitter.Find(name)
		if event.Target != "envA" {
			t.Errorf("%v: unexpected target %q", name, event.Target)
		}
	}
}

func TestCloneFailureDoesNotPull(t *testing.T) {
	provider := &fakeProvider{errors: map[string]error{"clone": &model.ExitError{Command: "git clone", Code: 128}}}
	env := newTestEnv(t, provider, newFakeBuilder(false), nil)

	op, err := env.service.CloneRepository()
	if err != nil {
		t.Fatal(err)
	}
	err = waitOperation(t, op)
	var exitErr *model.ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != 128 {
		t.Fatalf("expected exit code 128, got %v", err)
	}
	event := env.emitter.WaitFor(t, "clone-failed")
	if !strings.Contains(event.Error, "128") {
		t.Errorf("failure event should carry the error, got %q", event.Error)
	}
	if calls := provider.Calls(); !reflect.DeepEqual(calls, []string{"clone"}) {
		t.Errorf("clone failure must not pull, got %v", calls)
	}
	for _, name := range env.emitter.Names() {
		if strings.HasPrefix(name, "pull-") {
			t.Errorf("unexpected %v", name)
		}
	}
}

func TestCloneOfPresentRepositoryPulls(t *testing.T) {
	provider := &fakeProvider{exist: true, head: model.Head{Hash: hashLocal, Branch: "main"}}
	env := newTestEnv(t, provider, newFakeBuilder(false), []string{"envA"})
	env.sync.State().ReplaceReferences(testReferences())

	op, err := env.service.CloneRepository()
	if err != nil {
		t.Fatal(err)
	}
	if err = waitOperation(t, op); err != nil {
		t.Fatal(err)
	}
	want := []string{"fetch", "merge main"}
	if calls := provider.Calls(); !reflect.DeepEqual(calls, want) {
		t.Errorf("expected %v, got %v", want, calls)
	}
	if _, ok := env.emitter.Find("clone-success"); ok {
		t.Error("clone-success must not be emitted when nothing was cloned")
	}
	event := env.emitter.WaitFor(t, "pull-success")
	if event.CurrentRemote == nil || *event.CurrentRemote != "main" {
		t.Errorf("local branch should resolve the current remote, got %v", event.CurrentRemote)
	}
}

func TestShutdownTerminatesInFlightBuild(t *testing.T) {
	builder := newFakeBuilder(true)
	env := newTestEnv(t, &fakeProvider{exist: true}, builder, []string{"envA"})

	op, err := env.service.BuildTarget("envA")
	if err != nil {
		t.Fatal(err)
	}
	<-builder.entered

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err = env.service.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	processes := builder.Processes()
	if len(processes) != 1 || !processes[0].Killed() {
		t.Fatal("in-flight build process was not killed")
	}
	if env.service.Live(model.OperationBuild) {
		t.Error("build must not be live after shutdown")
	}
	for _, kind := range model.OperationKinds {
		if env.service.Live(kind) {
			t.Errorf("%v reported live after shutdown", kind)
		}
	}
	if err = waitOperation(t, op); err == nil {
		t.Error("terminated build must fail")
	}
	env.emitter.WaitFor(t, "build-failed")

	if _, err = env.service.BuildTarget("envA"); !errors.Is(err, model.ErrShuttingDown) {
		t.Errorf("expected shutting down error, got %v", err)
	}
	if err = env.service.Shutdown(ctx); err != nil {
		t.Errorf("second shutdown: %v", err)
	}
}

func TestBuildTargetValidation(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{exist: true}, newFakeBuilder(false), []string{"envA"})
	env.sync.RefreshTargets()

	tests := []struct {
		name   string
		target string
		want   error
	}{
		{name: "empty", target: "", want: model.ErrInvalidArgument},
		{name: "unknown", target: "envB", want: model.ErrUnknownTarget},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.service.BuildTarget(tt.target)
			if !errors.Is(err, tt.want) {
				t.Fatalf("build: expected %v, got %v", tt.want, err)
			}
			_, err = env.service.UploadTarget(tt.target)
			if !errors.Is(err, tt.want) {
				t.Fatalf("upload: expected %v, got %v", tt.want, err)
			}
		})
	}
	if calls := env.builder.Calls(); len(calls) != 0 {
		t.Errorf("builder must not run, got %v", calls)
	}
}

func TestBuildFailureEmitsFailedEventWithTarget(t *testing.T) {
	builder := newFakeBuilder(false)
	builder.err = &model.LaunchError{Command: "pio run", Err: errors.New("executable file not found")}
	env := newTestEnv(t, &fakeProvider{exist: true}, builder, nil)

	op, err := env.service.BuildTarget("envA")
	if err != nil {
		t.Fatal(err)
	}
	err = waitOperation(t, op)
	var launchErr *model.LaunchError
	if !errors.As(err, &launchErr) {
		t.Fatalf("expected launch error, got %v", err)
	}
	event := env.emitter.WaitFor(t, "build-failed")
	if event.Target != "envA" || event.Error == "" {
		t.Errorf("unexpected failure event %+v", event)
	}
	if _, ok := env.emitter.Find("build-success"); ok {
		t.Error("failed build must not emit build-success")
	}
}

func TestStartedEventIsEmittedOnAcceptance(t *testing.T) {
	builder := newFakeBuilder(true)
	env := newTestEnv(t, &fakeProvider{exist: true}, builder, nil)

	op, err := env.service.UploadTarget("envA")
	if err != nil {
		t.Fatal(err)
	}
	event, ok := env.emitter.Find("upload-started")
	if !ok {
		t.Fatal("upload-started must be emitted before the command returns")
	}
	if event.OperationID == nil || *event.OperationID != op.ID() || event.Target != "envA" {
		t.Errorf("unexpected started event %+v", event)
	}

	snapshot := env.service.Snapshot()
	if len(snapshot.Operations) != 1 || snapshot.Operations[0].Kind != model.OperationUpload {
		t.Errorf("unexpected live operations %+v", snapshot.Operations)
	}
	close(builder.release)
	if err = waitOperation(t, op); err != nil {
		t.Fatal(err)
	}
}

func TestBuildWaitsForRepositoryMutation(t *testing.T) {
	provider := &fakeProvider{
		exist:        true,
		head:         model.Head{Hash: hashMain, Branch: "main"},
		fetchGate:    make(chan struct{}),
		fetchEntered: make(chan struct{}, 1),
	}
	builder := newFakeBuilder(true)
	env := newTestEnv(t, provider, builder, []string{"envA"})

	pull, err := env.service.PullRepository()
	if err != nil {
		t.Fatal(err)
	}
	<-provider.fetchEntered

	build, err := env.service.BuildTarget("envA")
	if err != nil {
		t.Fatal(err)
	}
	upload, err := env.service.UploadTarget("envA")
	if err != nil {
		t.Fatal(err)
	}
	select {
	case call := <-builder.entered:
		t.Fatalf("%v ran while the repository was being mutated", call)
	case <-time.After(100 * time.Millisecond):
	}

	close(provider.fetchGate)
	if err = waitOperation(t, pull); err != nil {
		t.Fatal(err)
	}

	// build and upload share the repository and run together
	entered := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case call := <-builder.entered:
			entered[call] = true
		case <-time.After(5 * time.Second):
			t.Fatalf("build and upload did not run concurrently, entered %v", entered)
		}
	}
	close(builder.release)
	for _, op := range []*Operation{build, upload} {
		if err = waitOperation(t, op); err != nil {
			t.Fatal(err)
		}
	}
}

func TestRepositoryMutationsAreSerialized(t *testing.T) {
	provider := &fakeProvider{
		exist:        true,
		head:         model.Head{Hash: hashMain, Branch: "main"},
		fetchGate:    make(chan struct{}),
		fetchEntered: make(chan struct{}, 2),
	}
	env := newTestEnv(t, provider, newFakeBuilder(false), nil)
	env.sync.State().ReplaceReferences(testReferences())

	pull, err := env.service.PullRepository()
	if err != nil {
		t.Fatal(err)
	}
	<-provider.fetchEntered

	reset, err := env.service.ResetBranch("release/1.0")
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	if calls := provider.Calls(); len(calls) != 0 {
		t.Fatalf("reset ran during pull: %v", calls)
	}

	close(provider.fetchGate)
	for _, op := range []*Operation{pull, reset} {
		if err = waitOperation(t, op); err != nil {
			t.Fatal(err)
		}
	}
	want := []string{"fetch", "merge main", "checkout release/1.0", "reset release/1.0"}
	if calls := provider.Calls(); !reflect.DeepEqual(calls, want) {
		t.Errorf("expected %v, got %v", want, calls)
	}
}

func TestUpdateToolsDoesNotWaitForRepository(t *testing.T) {
	provider := &fakeProvider{
		exist:        true,
		fetchGate:    make(chan struct{}),
		fetchEntered: make(chan struct{}, 1),
	}
	env := newTestEnv(t, provider, newFakeBuilder(false), nil)

	pull, err := env.service.PullRepository()
	if err != nil {
		t.Fatal(err)
	}
	<-provider.fetchEntered

	update, err := env.service.UpdateTools()
	if err != nil {
		t.Fatal(err)
	}
	if err = waitOperation(t, update); err != nil {
		t.Fatal(err)
	}
	env.emitter.WaitFor(t, "activate-success")

	close(provider.fetchGate)
	if err = waitOperation(t, pull); err != nil {
		t.Fatal(err)
	}
}
