package provider

import (
	"context"
	"os/exec"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/tss-calculator/go-lib/pkg/infrastructure/logger"

	"github.com/tss-calculator/firmware-tools/pkg/configurator/application/model"
	"github.com/tss-calculator/firmware-tools/pkg/configurator/infrastructure/command"
	"github.com/tss-calculator/firmware-tools/pkg/configurator/infrastructure/gitrefs"
)

func runGit(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %v: %v\n%s", strings.Join(args, " "), err, out)
	}
	return strings.TrimSpace(string(out))
}

func newOrigin(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git is not installed")
	}
	t.Setenv("GIT_AUTHOR_NAME", "test")
	t.Setenv("GIT_AUTHOR_EMAIL", "test@example.com")
	t.Setenv("GIT_COMMITTER_NAME", "test")
	t.Setenv("GIT_COMMITTER_EMAIL", "test@example.com")

	origin := filepath.Join(t.TempDir(), "origin")
	runGit(t, t.TempDir(), "init", "-b", "main", origin)
	runGit(t, origin, "commit", "--allow-empty", "-m", "init")
	runGit(t, origin, "tag", "1.0.0")
	runGit(t, origin, "branch", "release/1.0")
	// references are keyed by commit, so branches must not share one
	runGit(t, origin, "commit", "--allow-empty", "-m", "second")
	runGit(t, origin, "tag", "-a", "2.0.0", "-m", "release 2.0.0")
	return origin
}

func TestRepositoryProvider(t *testing.T) {
	origin := newOrigin(t)
	ctx := context.Background()
	settings := model.RepositorySettings{
		URL:    origin,
		Dir:    filepath.Join(t.TempDir(), "elrs", "ExpressLRS"),
		Remote: "origin",
	}
	provider := NewRepositoryProvider(settings, "git", command.NewCommandRunner(logger.NewTextLogger(), nil))
	reader := gitrefs.NewReader()

	exist, err := provider.Exist()
	if err != nil || exist {
		t.Fatalf("repository should not exist yet: %v, %v", exist, err)
	}
	if err = provider.Clone(ctx); err != nil {
		t.Fatal(err)
	}
	if exist, _ = provider.Exist(); !exist {
		t.Fatal("repository should exist after clone")
	}

	head, err := provider.Head()
	if err != nil {
		t.Fatal(err)
	}
	want := model.Head{Hash: runGit(t, origin, "rev-parse", "HEAD"), Branch: "main"}
	if head != want {
		t.Errorf("expected head %+v, got %+v", want, head)
	}

	refs, err := reader.ParseInitialReferences(provider.PackedRefsPath())
	if err != nil {
		t.Fatal(err)
	}
	if names := refs.BranchNames(); !reflect.DeepEqual(names, []string{"main", "release/1.0"}) {
		t.Errorf("unexpected branches %v", names)
	}
	if names := refs.TagNames(); !reflect.DeepEqual(names, []string{"1.0.0", "2.0.0"}) {
		t.Errorf("unexpected tags %v", names)
	}
	release := runGit(t, origin, "rev-parse", "2.0.0^{commit}")
	if refs.Tags[release] != "2.0.0" {
		t.Errorf("annotated tag should be keyed by its commit %v, got %v", release, refs.Tags)
	}

	runGit(t, origin, "commit", "--allow-empty", "-m", "next")
	if err = provider.Fetch(ctx); err != nil {
		t.Fatal(err)
	}
	refs, err = reader.ParseFetchRecord(provider.FetchRecordPath())
	if err != nil {
		t.Fatal(err)
	}
	if !refs.HasBranch("release/1.0") || !refs.HasBranch("main") {
		t.Errorf("fetch record misses branches: %v", refs.BranchNames())
	}
	if name, ok := refs.ResolveCurrentRemote(release); !ok || name != "2.0.0" {
		t.Errorf("fetched annotated tag should resolve by commit, got %q (tags %v)", name, refs.Tags)
	}
	if err = provider.Merge(ctx, "main"); err != nil {
		t.Fatal(err)
	}
	if head, _ = provider.Head(); head.Hash != runGit(t, origin, "rev-parse", "HEAD") {
		t.Errorf("main was not fast-forwarded, head %v", head.Hash)
	}

	if err = provider.CheckoutBranch(ctx, "release/1.0"); err != nil {
		t.Fatal(err)
	}
	if err = provider.ResetHard(ctx, model.RemoteReference{Name: "release/1.0"}); err != nil {
		t.Fatal(err)
	}
	head, _ = provider.Head()
	want = model.Head{Hash: runGit(t, origin, "rev-parse", "release/1.0"), Branch: "release/1.0"}
	if head != want {
		t.Errorf("expected head %+v, got %+v", want, head)
	}

	if err = provider.CheckoutBranch(ctx, "1.0.0"); err != nil {
		t.Fatal(err)
	}
	if err = provider.ResetHard(ctx, model.RemoteReference{Name: "1.0.0", Tag: true}); err != nil {
		t.Fatal(err)
	}
	if head, _ = provider.Head(); head.Hash != runGit(t, origin, "rev-parse", "1.0.0^{commit}") {
		t.Errorf("unexpected head after tag reset %+v", head)
	}
}

func TestRepositoryProviderPartialClone(t *testing.T) {
	origin := newOrigin(t)
	settings := model.RepositorySettings{URL: origin, Dir: filepath.Join(t.TempDir(), "ExpressLRS"), Remote: "origin"}
	provider := NewRepositoryProvider(settings, "git", command.NewCommandRunner(logger.NewTextLogger(), nil))

	// an interrupted clone leaves a git directory with an unborn HEAD
	runGit(t, t.TempDir(), "init", settings.Dir)
	exist, err := provider.Exist()
	if err != nil || exist {
		t.Fatalf("partial clone should not count as present: %v, %v", exist, err)
	}
	if err = provider.Clone(context.Background()); err != nil {
		t.Fatalf("clone over partial directory: %v", err)
	}
	if exist, err = provider.Exist(); err != nil || !exist {
		t.Fatalf("repository should exist after clone: %v, %v", exist, err)
	}
}

func TestRepositoryProviderMergeFailure(t *testing.T) {
	origin := newOrigin(t)
	settings := model.RepositorySettings{URL: origin, Dir: filepath.Join(t.TempDir(), "ExpressLRS"), Remote: "origin"}
	provider := NewRepositoryProvider(settings, "git", command.NewCommandRunner(logger.NewTextLogger(), nil))
	if err := provider.Clone(context.Background()); err != nil {
		t.Fatal(err)
	}
	err := provider.Merge(context.Background(), "missing")
	if err == nil {
		t.Fatal("merge of unknown remote branch should fail")
	}
}
