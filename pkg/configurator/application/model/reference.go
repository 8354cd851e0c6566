package model

import "sort"

// CommitHash is a full 40 hex character commit identifier.
type CommitHash = string

// ReferenceMap maps commits to the remote branch and tag names pointing at them.
// Branches and tags are tracked independently; a commit may appear in both.
// Each commit holds a single name per map, so when several branches (or tags) share a
// commit only the last one read is kept, and the others are unknown to BranchNames,
// HasBranch and reset validation.
type ReferenceMap struct {
	Branches map[CommitHash]string
	Tags     map[CommitHash]string
}

func NewReferenceMap() ReferenceMap {
	return ReferenceMap{
		Branches: make(map[CommitHash]string),
		Tags:     make(map[CommitHash]string),
	}
}

// ResolveCurrentRemote looks the commit up in branches first, then in tags.
func (refs ReferenceMap) ResolveCurrentRemote(head CommitHash) (string, bool) {
	if name, ok := refs.Branches[head]; ok {
		return name, true
	}
	if name, ok := refs.Tags[head]; ok {
		return name, true
	}
	return "", false
}

func (refs ReferenceMap) HasBranch(name string) bool {
	return containsValue(refs.Branches, name)
}

func (refs ReferenceMap) HasTag(name string) bool {
	return containsValue(refs.Tags, name)
}

func (refs ReferenceMap) BranchNames() []string {
	return sortedValues(refs.Branches)
}

func (refs ReferenceMap) TagNames() []string {
	return sortedValues(refs.Tags)
}

func (refs ReferenceMap) Empty() bool {
	return len(refs.Branches) == 0 && len(refs.Tags) == 0
}

func containsValue(m map[CommitHash]string, name string) bool {
	for _, v := range m {
		if v == name {
			return true
		}
	}
	return false
}

func sortedValues(m map[CommitHash]string) []string {
	seen := make(map[string]struct{}, len(m))
	names := make([]string, 0, len(m))
	for _, v := range m {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		names = append(names, v)
	}
	sort.Strings(names)
	return names
}

// RemoteReference is a validated branch or tag known from the upstream repository.
type RemoteReference struct {
	Name string
	Tag  bool
}

// Lookup finds a remote reference by name, preferring branches over tags.
func (refs ReferenceMap) Lookup(name string) (RemoteReference, bool) {
	if refs.HasBranch(name) {
		return RemoteReference{Name: name}, true
	}
	if refs.HasTag(name) {
		return RemoteReference{Name: name, Tag: true}, true
	}
	return RemoteReference{}, false
}

// Head is the local checkout state. Branch is empty when the head is detached.
type Head struct {
	Hash   CommitHash
	Branch string
}
