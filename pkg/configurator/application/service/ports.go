package service

import (
	"context"

	"github.com/tss-calculator/firmware-tools/pkg/configurator/application/model"
)

type RepositoryProvider interface {
	Exist() (bool, error)
	Clone(ctx context.Context) error
	Fetch(ctx context.Context) error
	// Merge fast-forwards the checked out branch to its remote counterpart.
	Merge(ctx context.Context, branch string) error
	// CheckoutBranch creates or moves a local branch to the current head and checks it out.
	CheckoutBranch(ctx context.Context, branch string) error
	ResetHard(ctx context.Context, reference model.RemoteReference) error
	Head() (model.Head, error)
	PackedRefsPath() string
	FetchRecordPath() string
}

type ReferenceReader interface {
	ParseInitialReferences(path string) (model.ReferenceMap, error)
	ParseFetchRecord(path string) (model.ReferenceMap, error)
}

type TargetLoader interface {
	Load(path string) ([]string, error)
}

type FirmwareBuilder interface {
	Build(ctx context.Context, target string) error
	Upload(ctx context.Context, target string) error
	ConfigPath() string
}

type Toolchain interface {
	Present(tool model.Tool) (bool, error)
	Install(ctx context.Context, tool model.Tool) error
	// UpdateSupportTools upgrades the firmware build tool inside the local interpreter.
	UpdateSupportTools(ctx context.Context) error
}

type EventEmitter interface {
	Emit(event model.Event)
}
