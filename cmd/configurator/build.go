package main

import (
	stdcontext "context"

	"github.com/tss-calculator/firmware-tools/pkg/configurator/application/service"
)

func build(ctx stdcontext.Context, target string) error {
	return runOperation(ctx, func(supervisor service.Supervisor) (*service.Operation, error) {
		return supervisor.BuildTarget(target)
	})
}
