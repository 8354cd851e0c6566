package main

import (
	stdcontext "context"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/tss-calculator/firmware-tools/pkg/configurator/infrastructure/dependency"
)

func serve(ctx stdcontext.Context, listen string, bootstrap bool) error {
	dependencyContainer, err := dependency.ContainerFromContext(ctx)
	if err != nil {
		return err
	}
	log := dependencyContainer.Logger()
	server := &http.Server{
		Addr:              listen,
		Handler:           dependencyContainer.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(fmt.Sprintf("listening on %v", listen))
		serveErr <- server.ListenAndServe()
	}()

	if bootstrap {
		if _, err = dependencyContainer.Supervisor().Setup(); err != nil {
			log.Error(err, "failed to start setup")
		}
	}

	select {
	case err = <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "server failed")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := stdcontext.WithTimeout(stdcontext.Background(), shutdownTimeout)
	defer cancel()
	return errors.Wrap(server.Shutdown(shutdownCtx), "failed to shutdown server")
}
