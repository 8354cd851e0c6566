package main

import (
	stdcontext "context"

	"github.com/tss-calculator/firmware-tools/pkg/configurator/application/service"
	"github.com/tss-calculator/firmware-tools/pkg/configurator/infrastructure/dependency"
)

// runOperation starts a supervised operation and blocks until its terminal event.
func runOperation(ctx stdcontext.Context, start func(supervisor service.Supervisor) (*service.Operation, error)) error {
	dependencyContainer, err := dependency.ContainerFromContext(ctx)
	if err != nil {
		return err
	}
	op, err := start(dependencyContainer.Supervisor())
	if err != nil {
		return err
	}
	return op.Wait(ctx)
}
