package main

import (
	stdcontext "context"

	"github.com/tss-calculator/firmware-tools/pkg/configurator/application/service"
)

func clone(ctx stdcontext.Context) error {
	return runOperation(ctx, func(supervisor service.Supervisor) (*service.Operation, error) {
		return supervisor.CloneRepository()
	})
}
