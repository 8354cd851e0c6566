package service

import (
	"context"
	"fmt"
	"io/fs"
	"time"

	"github.com/pkg/errors"
	applogger "github.com/tss-calculator/go-lib/pkg/application/logger"

	"github.com/tss-calculator/firmware-tools/pkg/configurator/application/model"
)

// RepositorySync keeps the local firmware repository and the state derived from it current.
// Callers serialize mutating calls; see the supervisor's repository lock.
type RepositorySync struct {
	logger       applogger.Logger
	provider     RepositoryProvider
	reader       ReferenceReader
	targetLoader TargetLoader
	builder      FirmwareBuilder
	state        *RepositoryState
}

func NewRepositorySync(
	logger applogger.Logger,
	provider RepositoryProvider,
	reader ReferenceReader,
	targetLoader TargetLoader,
	builder FirmwareBuilder,
	state *RepositoryState,
) *RepositorySync {
	return &RepositorySync{
		logger:       logger,
		provider:     provider,
		reader:       reader,
		targetLoader: targetLoader,
		builder:      builder,
		state:        state,
	}
}

func (sync *RepositorySync) State() *RepositoryState {
	return sync.state
}

func (sync *RepositorySync) Exist() (bool, error) {
	return sync.provider.Exist()
}

// CloneIfNotExist clones the repository when absent and discovers its references.
// It reports whether a clone happened.
func (sync *RepositorySync) CloneIfNotExist(ctx context.Context) (bool, error) {
	exist, err := sync.provider.Exist()
	if err != nil {
		return false, err
	}
	if exist {
		sync.logger.Info("repository already present, skip clone")
		return false, nil
	}
	err = sync.timed("clone repository", func() error {
		return sync.provider.Clone(ctx)
	})
	if err != nil {
		return false, err
	}
	return true, sync.DiscoverInitialReferences()
}

// Restore rebuilds the state from what is already on disk, without touching the network.
// The fetch record is preferred over the packed references since it is newer.
func (sync *RepositorySync) Restore() error {
	exist, err := sync.provider.Exist()
	if err != nil || !exist {
		return err
	}
	err = sync.DiscoverFetchedReferences()
	if err != nil {
		sync.logger.Debug(err.Error())
		err = sync.DiscoverInitialReferences()
	}
	if err != nil {
		sync.logger.Debug(err.Error())
	}
	sync.ResolveCurrentRemote()
	sync.RefreshTargets()
	return nil
}

// Pull fetches all remotes and fast-forwards the branch the checkout tracks.
func (sync *RepositorySync) Pull(ctx context.Context) error {
	tracking := sync.trackedBranch()
	err := sync.Fetch(ctx)
	if err != nil {
		return err
	}
	err = sync.FastForward(ctx, tracking)
	if err != nil {
		return err
	}
	sync.ResolveCurrentRemote()
	sync.RefreshTargets()
	return nil
}

// ListBranches fetches all remotes and rebuilds the reference map.
func (sync *RepositorySync) ListBranches(ctx context.Context) error {
	err := sync.Fetch(ctx)
	if err != nil {
		return err
	}
	sync.ResolveCurrentRemote()
	return nil
}

// ValidateReference resolves name against the known remote references.
func (sync *RepositorySync) ValidateReference(name string) (model.RemoteReference, error) {
	if name == "" {
		return model.RemoteReference{}, errors.Wrap(model.ErrInvalidArgument, "branch name is empty")
	}
	reference, ok := sync.state.References().Lookup(name)
	if !ok {
		return model.RemoteReference{}, errors.Wrapf(model.ErrUnknownReference, "%q", name)
	}
	return reference, nil
}

// ResetToReference points a local branch named after the reference at the current head,
// checks it out and hard-resets the working tree to the remote reference.
func (sync *RepositorySync) ResetToReference(ctx context.Context, reference model.RemoteReference) error {
	err := sync.timed(fmt.Sprintf("reset repository to %q", reference.Name), func() error {
		err := sync.provider.CheckoutBranch(ctx, reference.Name)
		if err != nil {
			return err
		}
		return sync.provider.ResetHard(ctx, reference)
	})
	if err != nil {
		return err
	}
	name := reference.Name
	sync.state.SetCurrentRemote(&name)
	sync.RefreshTargets()
	return nil
}

// Fetch fetches all remotes and replaces the reference map from the fetch record.
func (sync *RepositorySync) Fetch(ctx context.Context) error {
	err := sync.timed("fetch repository", func() error {
		return sync.provider.Fetch(ctx)
	})
	if err != nil {
		return err
	}
	return sync.DiscoverFetchedReferences()
}

// DiscoverInitialReferences reads the packed references written by clone. A repository
// without any packed references, such as an empty one, starts with none.
func (sync *RepositorySync) DiscoverInitialReferences() error {
	references, err := sync.reader.ParseInitialReferences(sync.provider.PackedRefsPath())
	if errors.Is(err, fs.ErrNotExist) {
		sync.logger.Info("no packed references in repository")
		references, err = model.NewReferenceMap(), nil
	}
	if err != nil {
		return err
	}
	sync.replaceReferences(references)
	return nil
}

func (sync *RepositorySync) DiscoverFetchedReferences() error {
	references, err := sync.reader.ParseFetchRecord(sync.provider.FetchRecordPath())
	if err != nil {
		return err
	}
	sync.replaceReferences(references)
	return nil
}

// ResolveCurrentRemote maps the head commit to a branch, then a tag. A head that moved
// behind its remote branch still resolves through the local branch of the same name.
// An unresolved head is logged, not treated as an error.
func (sync *RepositorySync) ResolveCurrentRemote() *string {
	head, err := sync.provider.Head()
	if err != nil {
		sync.logger.Error(err, "failed to read repository head")
		sync.state.SetCurrentRemote(nil)
		return nil
	}
	references := sync.state.References()
	name, ok := references.ResolveCurrentRemote(head.Hash)
	if !ok && head.Branch != "" && references.HasBranch(head.Branch) {
		name, ok = head.Branch, true
	}
	if !ok {
		sync.logger.Info(fmt.Sprintf("head %v does not match any remote branch or tag", head.Hash))
		sync.state.SetCurrentRemote(nil)
		return nil
	}
	sync.logger.Info(fmt.Sprintf("current remote is %q", name))
	sync.state.SetCurrentRemote(&name)
	return &name
}

// FastForward merges the remote counterpart of branch; an empty branch is skipped.
func (sync *RepositorySync) FastForward(ctx context.Context, branch string) error {
	if branch == "" {
		sync.logger.Info("checkout does not track a remote branch, skip fast-forward")
		return nil
	}
	return sync.timed(fmt.Sprintf("fast-forward %q", branch), func() error {
		return sync.provider.Merge(ctx, branch)
	})
}

// RefreshTargets re-reads the build target set. A missing build configuration leaves the set empty.
func (sync *RepositorySync) RefreshTargets() []string {
	targets, err := sync.targetLoader.Load(sync.builder.ConfigPath())
	if err != nil {
		sync.logger.Error(err, "failed to load build targets")
		targets = nil
	}
	sync.state.SetTargets(targets)
	return sync.state.Targets()
}

// trackedBranch is the remote branch the checkout follows, if any.
func (sync *RepositorySync) trackedBranch() string {
	references := sync.state.References()
	if current := sync.state.CurrentRemote(); current != nil && references.HasBranch(*current) {
		return *current
	}
	head, err := sync.provider.Head()
	if err != nil {
		sync.logger.Error(err, "failed to read repository head")
		return ""
	}
	if head.Branch == "" {
		return ""
	}
	if references.Empty() || references.HasBranch(head.Branch) {
		return head.Branch
	}
	return ""
}

func (sync *RepositorySync) replaceReferences(references model.ReferenceMap) {
	sync.state.ReplaceReferences(references)
	sync.logger.Info(fmt.Sprintf("discovered %d branches and %d tags", len(references.Branches), len(references.Tags)))
}

func (sync *RepositorySync) timed(what string, f func() error) error {
	sync.logger.Info(what + "...")
	start := time.Now()
	defer func() {
		sync.logger.Info(fmt.Sprintf("done in %v", time.Since(start).String()))
	}()
	return f()
}
