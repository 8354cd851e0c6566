package dependency

import (
	"context"
	"net/http"
	"os"

	"github.com/pkg/errors"
	applogger "github.com/tss-calculator/go-lib/pkg/application/logger"

	"github.com/tss-calculator/firmware-tools/pkg/configurator/application/model"
	"github.com/tss-calculator/firmware-tools/pkg/configurator/application/service"
	"github.com/tss-calculator/firmware-tools/pkg/configurator/infrastructure/builder"
	"github.com/tss-calculator/firmware-tools/pkg/configurator/infrastructure/command"
	"github.com/tss-calculator/firmware-tools/pkg/configurator/infrastructure/config/buildconfig"
	"github.com/tss-calculator/firmware-tools/pkg/configurator/infrastructure/event"
	"github.com/tss-calculator/firmware-tools/pkg/configurator/infrastructure/gitrefs"
	"github.com/tss-calculator/firmware-tools/pkg/configurator/infrastructure/outputlog"
	"github.com/tss-calculator/firmware-tools/pkg/configurator/infrastructure/platform"
	"github.com/tss-calculator/firmware-tools/pkg/configurator/infrastructure/provider"
	"github.com/tss-calculator/firmware-tools/pkg/configurator/infrastructure/toolchain"
	"github.com/tss-calculator/firmware-tools/pkg/configurator/infrastructure/transport"
)

type containerKey struct{}

type Container interface {
	Logger() applogger.Logger
	Config() model.Configurator
	Supervisor() service.Supervisor
	Router() http.Handler
	// Close disconnects event clients and closes the output log.
	Close() error
}

func NewDependencyContainer(
	logger applogger.Logger,
	config model.Configurator,
	silentMode bool,
) (Container, error) {
	outputLog, err := outputlog.Open(config.LogFile)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open output log")
	}

	origins := transport.NewOriginPolicy(config.AllowedOrigins...)
	hub := event.NewHub(logger, origins.CheckOrigin)
	bus := event.NewBus(hub)
	if !silentMode {
		bus.Register(event.NewConsoleSink(os.Stdout))
	}

	runner := command.NewCommandRunner(logger, outputLog)
	tools := toolchain.NewToolchain(logger, config, platform.Current, runner)
	repositoryProvider := provider.NewRepositoryProvider(config.Repository, tools.Executable(model.ToolVCSClient), runner)
	firmwareBuilder := builder.NewFirmwareBuilder(logger, tools.Executable(model.ToolSupportTools), config.Repository.ProjectDir, runner)
	repositorySync := service.NewRepositorySync(
		logger,
		repositoryProvider,
		gitrefs.NewReader(),
		buildconfig.NewLoader(),
		firmwareBuilder,
		service.NewRepositoryState(),
	)
	bootstrap := service.NewBootstrap(logger, tools, repositorySync)
	supervisor := service.NewSupervisor(config, logger, bus, bootstrap, repositorySync, tools, firmwareBuilder)

	return &container{
		logger:     logger,
		config:     config,
		supervisor: supervisor,
		router:     transport.NewRouter(logger, supervisor, origins, hub.HandleWebSocket),
		hub:        hub,
		outputLog:  outputLog,
	}, nil
}

type container struct {
	logger     applogger.Logger
	config     model.Configurator
	supervisor service.Supervisor
	router     http.Handler
	hub        *event.Hub
	outputLog  *outputlog.Log
}

func (c *container) Logger() applogger.Logger {
	return c.logger
}

func (c *container) Config() model.Configurator {
	return c.config
}

func (c *container) Supervisor() service.Supervisor {
	return c.supervisor
}

func (c *container) Router() http.Handler {
	return c.router
}

func (c *container) Close() error {
	c.hub.Close()
	return c.outputLog.Close()
}

func ContainerFromContext(ctx context.Context) (Container, error) {
	v := ctx.Value(containerKey{})
	if c, ok := v.(Container); ok {
		return c, nil
	}
	return nil, errors.New("dependency container not found")
}

func ContainerToContext(ctx context.Context, c Container) context.Context {
	return context.WithValue(ctx, containerKey{}, c)
}
