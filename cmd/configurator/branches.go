package main

import (
	stdcontext "context"
	"fmt"
	"strings"

	"github.com/tss-calculator/firmware-tools/pkg/configurator/application/service"
	"github.com/tss-calculator/firmware-tools/pkg/configurator/infrastructure/dependency"
)

func branches(ctx stdcontext.Context) error {
	err := runOperation(ctx, func(supervisor service.Supervisor) (*service.Operation, error) {
		return supervisor.ListBranches()
	})
	if err != nil {
		return err
	}
	dependencyContainer, err := dependency.ContainerFromContext(ctx)
	if err != nil {
		return err
	}
	snapshot := dependencyContainer.Supervisor().Snapshot()
	current := ""
	if snapshot.CurrentRemote != nil {
		current = *snapshot.CurrentRemote
	}
	for _, name := range append(snapshot.Branches, snapshot.Tags...) {
		marker := " "
		if name == current {
			marker = "*"
		}
		fmt.Println(marker + " " + name)
	}
	if len(snapshot.Targets) > 0 {
		fmt.Println("targets: " + strings.Join(snapshot.Targets, ", "))
	}
	return nil
}
