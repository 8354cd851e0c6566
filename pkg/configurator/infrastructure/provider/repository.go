package provider

import (
	"context"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/pkg/errors"

	"github.com/tss-calculator/firmware-tools/pkg/configurator/application/model"
	"github.com/tss-calculator/firmware-tools/pkg/configurator/application/service"
	"github.com/tss-calculator/firmware-tools/pkg/configurator/infrastructure/command"
)

// NewRepositoryProvider drives the firmware repository through the git executable.
// Head is read directly from the repository without spawning git.
func NewRepositoryProvider(
	settings model.RepositorySettings,
	git string,
	runner command.Runner,
) service.RepositoryProvider {
	return &repositoryProvider{
		settings: settings,
		git:      git,
		runner:   runner,
	}
}

type repositoryProvider struct {
	settings model.RepositorySettings
	git      string
	runner   command.Runner
}

// Exist reports a repository with a resolvable HEAD. A directory left behind by an
// interrupted clone does not count.
func (provider repositoryProvider) Exist() (bool, error) {
	_, err := os.Stat(provider.settings.Dir)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	repository, err := git.PlainOpen(provider.settings.Dir)
	if err != nil {
		return false, nil
	}
	if _, err = repository.Head(); err != nil {
		return false, nil
	}
	return true, nil
}

// Clone removes what an interrupted clone left behind before cloning again.
func (provider repositoryProvider) Clone(ctx context.Context) error {
	_, err := os.Stat(filepath.Join(provider.settings.Dir, git.GitDirName))
	if err == nil {
		err = os.RemoveAll(provider.settings.Dir)
		if err != nil {
			return errors.Wrapf(err, "failed to remove incomplete repository %v", provider.settings.Dir)
		}
	}
	err = os.MkdirAll(filepath.Dir(provider.settings.Dir), os.ModePerm)
	if err != nil {
		return errors.Wrap(err, "failed to create repository parent directory")
	}
	err = provider.runner.Execute(ctx, command.Command{
		WorkDir:    filepath.Dir(provider.settings.Dir),
		Executable: provider.git,
		Args:       []string{"clone", "--origin", provider.settings.Remote, provider.settings.URL, provider.settings.Dir},
	})
	return errors.Wrapf(err, "failed to clone repository %v", provider.settings.URL)
}

func (provider repositoryProvider) Fetch(ctx context.Context) error {
	err := provider.execute(ctx, "fetch", "--all", "--tags")
	return errors.Wrap(err, "failed to fetch repository")
}

func (provider repositoryProvider) Merge(ctx context.Context, branch string) error {
	err := provider.execute(ctx, "merge", "--ff-only", provider.remoteBranch(branch).String())
	return errors.Wrapf(err, "failed to fast-forward branch %v", branch)
}

func (provider repositoryProvider) CheckoutBranch(ctx context.Context, branch string) error {
	if branch == "" {
		return errors.Wrap(model.ErrInvalidArgument, "branch is empty")
	}
	err := provider.execute(ctx, "checkout", "-B", branch)
	return errors.Wrapf(err, "failed to checkout branch %v", branch)
}

func (provider repositoryProvider) ResetHard(ctx context.Context, reference model.RemoteReference) error {
	name := provider.remoteBranch(reference.Name)
	if reference.Tag {
		name = plumbing.NewTagReferenceName(reference.Name)
	}
	err := provider.execute(ctx, "reset", "--hard", name.String())
	return errors.Wrapf(err, "failed to reset repository to %v", name)
}

func (provider repositoryProvider) Head() (model.Head, error) {
	repository, err := git.PlainOpen(provider.settings.Dir)
	if err != nil {
		return model.Head{}, errors.Wrapf(err, "failed to open repository %v", provider.settings.Dir)
	}
	ref, err := repository.Head()
	if err != nil {
		return model.Head{}, errors.Wrap(err, "failed to resolve HEAD")
	}
	head := model.Head{Hash: ref.Hash().String()}
	if ref.Name().IsBranch() {
		head.Branch = ref.Name().Short()
	}
	return head, nil
}

func (provider repositoryProvider) PackedRefsPath() string {
	return filepath.Join(provider.settings.Dir, git.GitDirName, "packed-refs")
}

func (provider repositoryProvider) FetchRecordPath() string {
	return filepath.Join(provider.settings.Dir, git.GitDirName, "FETCH_HEAD")
}

func (provider repositoryProvider) remoteBranch(branch string) plumbing.ReferenceName {
	return plumbing.NewRemoteReferenceName(provider.settings.Remote, branch)
}

func (provider repositoryProvider) execute(ctx context.Context, args ...string) error {
	return provider.runner.Execute(ctx, command.Command{
		WorkDir:    provider.settings.Dir,
		Executable: provider.git,
		Args:       args,
	})
}
