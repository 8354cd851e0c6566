package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/tss-calculator/go-lib/pkg/infrastructure/logger"
	"github.com/urfave/cli/v2"

	"github.com/tss-calculator/firmware-tools/pkg/configurator/infrastructure/config/appconfig"
	"github.com/tss-calculator/firmware-tools/pkg/configurator/infrastructure/dependency"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, cancelFunc := context.WithCancel(context.Background())
	defer cancelFunc()
	ctx = listenOSKillSignalsContext(ctx)
	mainLogger := logger.NewTextLogger()

	configPath := os.Getenv("CONFIG")
	if configPath == "" {
		configPath = "configurator.json"
	}
	config, err := appconfig.Load(configPath)
	if err != nil {
		mainLogger.FatalError(err, "failed load configurator config")
	}
	container, err := dependency.NewDependencyContainer(mainLogger, config, os.Getenv("SILENT") != "")
	if err != nil {
		mainLogger.FatalError(err, "failed create dependency container")
	}
	ctx = dependency.ContainerToContext(ctx, container)

	app := &cli.App{
		Name:  "configurator",
		Usage: "build and flash ExpressLRS firmware",
		Before: func(c *cli.Context) error {
			return container.Supervisor().Restore(c.Context)
		},
		Commands: cli.Commands{
			&cli.Command{
				Name:  "setup",
				Usage: "provision tools and the firmware repository",
				Action: func(c *cli.Context) error {
					return setup(c.Context)
				},
			},
			&cli.Command{
				Name:  "update-tools",
				Usage: "upgrade platformio in the local interpreter",
				Action: func(c *cli.Context) error {
					return updateTools(c.Context)
				},
			},
			&cli.Command{
				Name: "clone",
				Action: func(c *cli.Context) error {
					return clone(c.Context)
				},
			},
			&cli.Command{
				Name: "pull",
				Action: func(c *cli.Context) error {
					return pull(c.Context)
				},
			},
			&cli.Command{
				Name: "branches",
				Action: func(c *cli.Context) error {
					return branches(c.Context)
				},
			},
			&cli.Command{
				Name: "reset",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "branch",
						Required: true,
					},
				},
				Action: func(c *cli.Context) error {
					return reset(c.Context, c.String("branch"))
				},
			},
			&cli.Command{
				Name: "build",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "target",
						Required: true,
					},
				},
				Action: func(c *cli.Context) error {
					return build(c.Context, c.String("target"))
				},
			},
			&cli.Command{
				Name: "upload",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "target",
						Required: true,
					},
				},
				Action: func(c *cli.Context) error {
					return upload(c.Context, c.String("target"))
				},
			},
			&cli.Command{
				Name: "serve",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "listen",
						Value: config.Listen,
					},
					&cli.BoolFlag{
						Name:  "bootstrap",
						Value: true,
						Usage: "run setup on startup",
					},
				},
				Action: func(c *cli.Context) error {
					return serve(c.Context, c.String("listen"), c.Bool("bootstrap"))
				},
			},
		},
	}
	err = app.RunContext(ctx, os.Args)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if shutdownErr := container.Supervisor().Shutdown(shutdownCtx); shutdownErr != nil {
		mainLogger.Error(shutdownErr, "failed shutdown supervisor")
	}
	if closeErr := container.Close(); closeErr != nil {
		mainLogger.Error(closeErr, "failed close dependency container")
	}
	if err != nil {
		mainLogger.FatalError(err, "failed execute command "+strings.Join(os.Args, " "))
	}
}

func listenOSKillSignalsContext(ctx context.Context) context.Context {
	var cancelFunc context.CancelFunc
	ctx, cancelFunc = context.WithCancel(ctx)
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT)
		select {
		case <-ch:
			cancelFunc()
		case <-ctx.Done():
			return
		}
	}()
	return ctx
}
