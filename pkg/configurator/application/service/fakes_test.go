package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/tss-calculator/go-lib/pkg/infrastructure/logger"

	"github.com/tss-calculator/firmware-tools/pkg/configurator/application/model"
)

const (
	hashMain    = "1111111111111111111111111111111111111111"
	hashRelease = "2222222222222222222222222222222222222222"
	hashTag     = "3333333333333333333333333333333333333333"
	hashLocal   = "4444444444444444444444444444444444444444"
)

type fakeProvider struct {
	mu     sync.Mutex
	exist  bool
	head   model.Head
	calls  []string
	errors map[string]error
	// fetchGate, when set, holds every fetch until closed.
	fetchGate    chan struct{}
	fetchEntered chan struct{}
}

func (p *fakeProvider) record(call string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call)
	name := strings.Fields(call)[0]
	return p.errors[name]
}

func (p *fakeProvider) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *fakeProvider) Exist() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exist, nil
}

func (p *fakeProvider) Clone(context.Context) error {
	err := p.record("clone")
	if err == nil {
		p.mu.Lock()
		p.exist = true
		p.mu.Unlock()
	}
	return err
}

func (p *fakeProvider) Fetch(ctx context.Context) error {
	if p.fetchGate != nil {
		p.fetchEntered <- struct{}{}
		select {
		case <-p.fetchGate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return p.record("fetch")
}

func (p *fakeProvider) Merge(_ context.Context, branch string) error {
	return p.record("merge " + branch)
}

func (p *fakeProvider) CheckoutBranch(_ context.Context, branch string) error {
	return p.record("checkout " + branch)
}

func (p *fakeProvider) ResetHard(_ context.Context, reference model.RemoteReference) error {
	err := p.record("reset " + reference.Name)
	if err == nil {
		p.mu.Lock()
		p.head = model.Head{Branch: reference.Name}
		p.mu.Unlock()
	}
	return err
}

func (p *fakeProvider) Head() (model.Head, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.head, nil
}

func (p *fakeProvider) PackedRefsPath() string {
	return "packed-refs"
}

func (p *fakeProvider) FetchRecordPath() string {
	return "FETCH_HEAD"
}

type fakeReader struct {
	initial    model.ReferenceMap
	initialErr error
	fetched    model.ReferenceMap
}

func (r fakeReader) ParseInitialReferences(string) (model.ReferenceMap, error) {
	if r.initialErr != nil {
		return model.ReferenceMap{}, r.initialErr
	}
	return r.initial, nil
}

func (r fakeReader) ParseFetchRecord(string) (model.ReferenceMap, error) {
	return r.fetched, nil
}

type fakeTargets struct {
	targets []string
}

func (t fakeTargets) Load(string) ([]string, error) {
	if t.targets == nil {
		return nil, errors.New("platformio.ini not found")
	}
	return t.targets, nil
}

type fakeProcess struct {
	mu     sync.Mutex
	killed bool
}

func (p *fakeProcess) Pid() int { return 1 }

func (p *fakeProcess) Kill() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.killed = true
	return nil
}

func (p *fakeProcess) Killed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killed
}

// fakeBuilder blocks every call until release is closed or the operation context ends.
type fakeBuilder struct {
	mu        sync.Mutex
	release   chan struct{}
	entered   chan string
	processes []*fakeProcess
	calls     []string
	err       error
}

func newFakeBuilder(blocking bool) *fakeBuilder {
	b := &fakeBuilder{
		release: make(chan struct{}),
		entered: make(chan string, 16),
	}
	if !blocking {
		close(b.release)
	}
	return b
}

func (b *fakeBuilder) Build(ctx context.Context, target string) error {
	return b.run(ctx, "build "+target)
}

func (b *fakeBuilder) Upload(ctx context.Context, target string) error {
	return b.run(ctx, "upload "+target)
}

func (b *fakeBuilder) ConfigPath() string {
	return "platformio.ini"
}

func (b *fakeBuilder) run(ctx context.Context, call string) error {
	process := &fakeProcess{}
	if tracker, ok := model.ProcessTrackerFromContext(ctx); ok {
		tracker.Track(process)
	}
	b.mu.Lock()
	b.calls = append(b.calls, call)
	b.processes = append(b.processes, process)
	b.mu.Unlock()
	b.entered <- call
	select {
	case <-b.release:
		return b.err
	case <-ctx.Done():
		return &model.ExitError{Command: call, Code: -1}
	}
}

func (b *fakeBuilder) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

func (b *fakeBuilder) Processes() []*fakeProcess {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*fakeProcess(nil), b.processes...)
}

type fakeToolchain struct {
	mu        sync.Mutex
	present   map[model.Tool]bool
	installed []model.Tool
	failing   model.Tool
	updates   int
}

func (t *fakeToolchain) Present(tool model.Tool) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.present[tool], nil
}

func (t *fakeToolchain) Install(_ context.Context, tool model.Tool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.installed = append(t.installed, tool)
	if tool == t.failing {
		return &model.ExitError{Command: "install " + string(tool), Code: 1}
	}
	if t.present == nil {
		t.present = make(map[model.Tool]bool)
	}
	t.present[tool] = true
	return nil
}

func (t *fakeToolchain) UpdateSupportTools(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.updates++
	return nil
}

func (t *fakeToolchain) Installed() []model.Tool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]model.Tool(nil), t.installed...)
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []model.Event
	notify chan struct{}
}

func newRecordingEmitter() *recordingEmitter {
	return &recordingEmitter{notify: make(chan struct{}, 1)}
}

func (e *recordingEmitter) Emit(event model.Event) {
	e.mu.Lock()
	e.events = append(e.events, event)
	e.mu.Unlock()
	select {
	case e.notify <- struct{}{}:
	default:
	}
}

func (e *recordingEmitter) Events() []model.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]model.Event(nil), e.events...)
}

func (e *recordingEmitter) Names() []string {
	events := e.Events()
	names := make([]string, 0, len(events))
	for _, event := range events {
		names = append(names, event.Name)
	}
	return names
}

// Find returns the last event with the name.
func (e *recordingEmitter) Find(name string) (model.Event, bool) {
	events := e.Events()
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Name == name {
			return events[i], true
		}
	}
	return model.Event{}, false
}

func (e *recordingEmitter) WaitFor(t *testing.T, name string) model.Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		if event, ok := e.Find(name); ok {
			return event
		}
		select {
		case <-e.notify:
		case <-deadline:
			t.Fatalf("event %q was not emitted, got %v", name, e.Names())
		}
	}
}

func testReferences() model.ReferenceMap {
	refs := model.NewReferenceMap()
	refs.Branches[hashMain] = "main"
	refs.Branches[hashRelease] = "release/1.0"
	refs.Tags[hashTag] = "1.0.0"
	return refs
}

type testEnv struct {
	provider  *fakeProvider
	builder   *fakeBuilder
	toolchain *fakeToolchain
	emitter   *recordingEmitter
	sync      *RepositorySync
	bootstrap *Bootstrap
	service   Supervisor
}

func newTestEnv(t *testing.T, provider *fakeProvider, builder *fakeBuilder, targets []string) *testEnv {
	t.Helper()
	log := logger.NewTextLogger()
	toolchain := &fakeToolchain{present: map[model.Tool]bool{
		model.ToolArchiver:     true,
		model.ToolInterpreter:  true,
		model.ToolSupportTools: true,
		model.ToolVCSClient:    true,
	}}
	emitter := newRecordingEmitter()
	reader := fakeReader{initial: testReferences(), fetched: testReferences()}
	repositorySync := NewRepositorySync(log, provider, reader, fakeTargets{targets: targets}, builder, NewRepositoryState())
	bootstrap := NewBootstrap(log, toolchain, repositorySync)
	service := NewSupervisor(model.Configurator{}, log, emitter, bootstrap, repositorySync, toolchain, builder)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = service.Shutdown(ctx)
	})
	return &testEnv{
		provider:  provider,
		builder:   builder,
		toolchain: toolchain,
		emitter:   emitter,
		sync:      repositorySync,
		bootstrap: bootstrap,
		service:   service,
	}
}

func waitOperation(t *testing.T, op *Operation) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := op.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
		t.Fatalf("%v operation did not finish", op.Kind())
	}
	return err
}
