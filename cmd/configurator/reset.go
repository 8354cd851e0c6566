package main

import (
	stdcontext "context"

	"github.com/tss-calculator/firmware-tools/pkg/configurator/application/service"
)

func reset(ctx stdcontext.Context, branch string) error {
	return runOperation(ctx, func(supervisor service.Supervisor) (*service.Operation, error) {
		return supervisor.ResetBranch(branch)
	})
}
