package service

import (
	"sync"

	"github.com/tss-calculator/firmware-tools/pkg/configurator/application/model"
)

// RepositoryState holds everything derived from the on-disk repository.
// Every setter replaces the previous value as a whole.
type RepositoryState struct {
	mu            sync.RWMutex
	references    model.ReferenceMap
	currentRemote *string
	targets       []string
}

func NewRepositoryState() *RepositoryState {
	return &RepositoryState{
		references: model.NewReferenceMap(),
		targets:    make([]string, 0),
	}
}

func (state *RepositoryState) ReplaceReferences(references model.ReferenceMap) {
	state.mu.Lock()
	defer state.mu.Unlock()
	state.references = references
}

func (state *RepositoryState) References() model.ReferenceMap {
	state.mu.RLock()
	defer state.mu.RUnlock()
	return state.references
}

func (state *RepositoryState) SetCurrentRemote(name *string) {
	state.mu.Lock()
	defer state.mu.Unlock()
	state.currentRemote = name
}

func (state *RepositoryState) CurrentRemote() *string {
	state.mu.RLock()
	defer state.mu.RUnlock()
	if state.currentRemote == nil {
		return nil
	}
	name := *state.currentRemote
	return &name
}

func (state *RepositoryState) SetTargets(targets []string) {
	state.mu.Lock()
	defer state.mu.Unlock()
	state.targets = append([]string(nil), targets...)
}

func (state *RepositoryState) Targets() []string {
	state.mu.RLock()
	defer state.mu.RUnlock()
	return append([]string(nil), state.targets...)
}

func (state *RepositoryState) HasTarget(target string) bool {
	state.mu.RLock()
	defer state.mu.RUnlock()
	for _, t := range state.targets {
		if t == target {
			return true
		}
	}
	return false
}

func (state *RepositoryState) Snapshot() model.Snapshot {
	references := state.References()
	return model.Snapshot{
		Branches:      references.BranchNames(),
		Tags:          references.TagNames(),
		CurrentRemote: state.CurrentRemote(),
		Targets:       state.Targets(),
		Operations:    make([]model.OperationInfo, 0),
	}
}
