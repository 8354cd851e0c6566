package builder

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	applogger "github.com/tss-calculator/go-lib/pkg/application/logger"

	"github.com/tss-calculator/firmware-tools/pkg/configurator/application/service"
	"github.com/tss-calculator/firmware-tools/pkg/configurator/infrastructure/command"
	"github.com/tss-calculator/firmware-tools/pkg/configurator/infrastructure/config/buildconfig"
)

func NewFirmwareBuilder(
	logger applogger.Logger,
	pio string,
	projectDir string,
	runner command.Runner,
) service.FirmwareBuilder {
	return &firmwareBuilder{
		logger:     logger,
		pio:        pio,
		projectDir: projectDir,
		runner:     runner,
	}
}

type firmwareBuilder struct {
	logger     applogger.Logger
	pio        string
	projectDir string
	runner     command.Runner
}

func (builder firmwareBuilder) Build(ctx context.Context, target string) error {
	builder.logger.Info(fmt.Sprintf("start build firmware \"%v\"...", target))
	start := time.Now()
	defer func() {
		builder.logger.Info(fmt.Sprintf("done in %v", time.Since(start).String()))
	}()
	err := builder.run(ctx, "--environment", target)
	return errors.Wrapf(err, "failed to build firmware %v", target)
}

func (builder firmwareBuilder) Upload(ctx context.Context, target string) error {
	builder.logger.Info(fmt.Sprintf("start upload firmware \"%v\"...", target))
	start := time.Now()
	defer func() {
		builder.logger.Info(fmt.Sprintf("done in %v", time.Since(start).String()))
	}()
	err := builder.run(ctx, "--target", "upload", "--environment", target)
	return errors.Wrapf(err, "failed to upload firmware %v", target)
}

func (builder firmwareBuilder) ConfigPath() string {
	return filepath.Join(builder.projectDir, buildconfig.FileName)
}

func (builder firmwareBuilder) run(ctx context.Context, args ...string) error {
	return builder.runner.Execute(ctx, command.Command{
		WorkDir:    builder.projectDir,
		Executable: builder.pio,
		Args:       append([]string{"run", "--project-dir", builder.projectDir}, args...),
	})
}
