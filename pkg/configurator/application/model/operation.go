package model

import (
	"time"

	"github.com/google/uuid"
)

type OperationKind string

const (
	OperationSetup        OperationKind = "SETUP"
	OperationActivate     OperationKind = "ACTIVATE"
	OperationClone        OperationKind = "CLONE"
	OperationPull         OperationKind = "PULL"
	OperationListBranches OperationKind = "LIST_BRANCHES"
	OperationResetBranch  OperationKind = "RESET_BRANCH"
	OperationBuild        OperationKind = "BUILD"
	OperationUpload       OperationKind = "UPLOAD"
)

// OperationKinds lists every kind in the order the shutdown sweep visits them.
var OperationKinds = []OperationKind{
	OperationSetup,
	OperationActivate,
	OperationClone,
	OperationPull,
	OperationListBranches,
	OperationResetBranch,
	OperationBuild,
	OperationUpload,
}

// EventPrefix is the prefix of lifecycle event names for the kind, e.g. "build" in "build-started".
func (kind OperationKind) EventPrefix() string {
	switch kind {
	case OperationSetup:
		return "setup"
	case OperationActivate:
		return "activate"
	case OperationClone:
		return "clone"
	case OperationPull:
		return "pull"
	case OperationListBranches:
		return "branches"
	case OperationResetBranch:
		return "reset"
	case OperationBuild:
		return "build"
	case OperationUpload:
		return "upload"
	default:
		return string(kind)
	}
}

// MutatesRepository reports whether the kind rewrites the working tree or the reference caches.
func (kind OperationKind) MutatesRepository() bool {
	switch kind {
	case OperationSetup, OperationClone, OperationPull, OperationListBranches, OperationResetBranch:
		return true
	default:
		return false
	}
}

// ReadsRepository reports whether the kind reads files that repository-mutating kinds can rewrite.
func (kind OperationKind) ReadsRepository() bool {
	return kind == OperationBuild || kind == OperationUpload
}

type OperationInfo struct {
	ID        uuid.UUID     `json:"id"`
	Kind      OperationKind `json:"kind"`
	Target    string        `json:"target,omitempty"`
	StartedAt time.Time     `json:"startedAt"`
}
