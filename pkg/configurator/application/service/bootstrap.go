package service

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	applogger "github.com/tss-calculator/go-lib/pkg/application/logger"

	"github.com/tss-calculator/firmware-tools/pkg/configurator/application/model"
)

// StageError reports the bootstrap stage that failed.
type StageError struct {
	Stage model.BootstrapStage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%v: %v", e.Stage.Label(), e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Bootstrap provisions the toolchain and the firmware repository, announcing every stage it enters.
// A failed run leaves everything it has provisioned so far in place, so Run can be retried.
type Bootstrap struct {
	logger    applogger.Logger
	toolchain Toolchain
	sync      *RepositorySync
}

func NewBootstrap(logger applogger.Logger, toolchain Toolchain, sync *RepositorySync) *Bootstrap {
	return &Bootstrap{
		logger:    logger,
		toolchain: toolchain,
		sync:      sync,
	}
}

var toolStages = []struct {
	stage model.BootstrapStage
	tool  model.Tool
}{
	{stage: model.StageCheckArchiver, tool: model.ToolArchiver},
	{stage: model.StageCheckInterpreter, tool: model.ToolInterpreter},
	{stage: model.StageCheckSupportTools, tool: model.ToolSupportTools},
	{stage: model.StageCheckVCSClient, tool: model.ToolVCSClient},
}

// Run walks the stages in order. onStage is called on entering each stage.
func (bootstrap *Bootstrap) Run(ctx context.Context, onStage func(stage model.BootstrapStage)) error {
	for _, s := range toolStages {
		onStage(s.stage)
		err := bootstrap.ensureTool(ctx, s.tool)
		if err != nil {
			return &StageError{Stage: s.stage, Err: err}
		}
	}

	onStage(model.StageCheckRepositoryPresent)
	exist, err := bootstrap.sync.Exist()
	if err != nil {
		return &StageError{Stage: model.StageCheckRepositoryPresent, Err: err}
	}

	if exist {
		onStage(model.StageSync)
		err = bootstrap.sync.provider.Fetch(ctx)
		if err != nil {
			return &StageError{Stage: model.StageSync, Err: err}
		}
		onStage(model.StageDiscoverReferences)
		err = bootstrap.sync.DiscoverFetchedReferences()
	} else {
		onStage(model.StageClone)
		err = bootstrap.sync.provider.Clone(ctx)
		if err != nil {
			return &StageError{Stage: model.StageClone, Err: err}
		}
		onStage(model.StageDiscoverReferences)
		err = bootstrap.sync.DiscoverInitialReferences()
	}
	if err != nil {
		return &StageError{Stage: model.StageDiscoverReferences, Err: err}
	}

	onStage(model.StageResolveCurrentRemote)
	current := bootstrap.sync.ResolveCurrentRemote()

	onStage(model.StageFetchAndCheckoutCurrent)
	branch := ""
	if current != nil && bootstrap.sync.State().References().HasBranch(*current) {
		branch = *current
	}
	err = bootstrap.sync.FastForward(ctx, branch)
	if err != nil {
		return &StageError{Stage: model.StageFetchAndCheckoutCurrent, Err: err}
	}
	bootstrap.sync.RefreshTargets()

	onStage(model.StageReady)
	return nil
}

func (bootstrap *Bootstrap) ensureTool(ctx context.Context, tool model.Tool) error {
	present, err := bootstrap.toolchain.Present(tool)
	if err != nil {
		return err
	}
	if present {
		bootstrap.logger.Debug(fmt.Sprintf("%v is present", tool))
		return nil
	}
	bootstrap.logger.Info(fmt.Sprintf("installing %v", tool))
	err = bootstrap.toolchain.Install(ctx, tool)
	if err != nil {
		return errors.Wrapf(err, "failed to install %v", tool)
	}
	present, err = bootstrap.toolchain.Present(tool)
	if err != nil {
		return err
	}
	if !present {
		return errors.Errorf("%v is still missing after install", tool)
	}
	return nil
}
