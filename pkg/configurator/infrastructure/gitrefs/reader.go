// Package gitrefs reads the reference caches git keeps on disk.
package gitrefs

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/pkg/errors"

	"github.com/tss-calculator/firmware-tools/pkg/configurator/application/model"
)

const (
	hashLength    = 40
	remotesPrefix = "refs/remotes/"
	headsPrefix   = "refs/heads/"
)

var fetchRecordName = regexp.MustCompile(`\b(branch|tag) '([^']+)'`)

func NewReader() *Reader {
	return &Reader{}
}

type Reader struct{}

// ParseInitialReferences reads a packed-refs file.
func (Reader) ParseInitialReferences(path string) (model.ReferenceMap, error) {
	file, err := os.Open(path)
	if err != nil {
		return model.ReferenceMap{}, errors.Wrapf(err, "failed to open packed references %v", path)
	}
	defer file.Close()
	return ParsePackedRefs(file)
}

// ParseFetchRecord reads a FETCH_HEAD file. When the file lives inside a git directory,
// annotated tags are peeled to the commits they point to.
func (Reader) ParseFetchRecord(path string) (model.ReferenceMap, error) {
	file, err := os.Open(path)
	if err != nil {
		return model.ReferenceMap{}, errors.Wrapf(err, "failed to open fetch record %v", path)
	}
	defer file.Close()
	refs, err := ParseFetchHead(file)
	if err != nil {
		return model.ReferenceMap{}, err
	}
	repository, err := git.PlainOpen(filepath.Dir(path))
	if err != nil {
		return refs, nil
	}
	return PeelTags(repository, refs), nil
}

// PeelTags re-keys tags whose hash is a tag object by the commit the tag chain ends at.
// Lightweight tags and hashes missing from the object store are left as they are.
func PeelTags(repository *git.Repository, refs model.ReferenceMap) model.ReferenceMap {
	peeled := model.NewReferenceMap()
	for hash, name := range refs.Branches {
		peeled.Branches[hash] = name
	}
	for hash, name := range refs.Tags {
		peeled.Tags[peel(repository, hash)] = name
	}
	return peeled
}

func peel(repository *git.Repository, hash string) string {
	target := plumbing.NewHash(hash)
	for {
		tag, err := repository.TagObject(target)
		if err != nil {
			return target.String()
		}
		target = tag.Target
	}
}

// ParsePackedRefs parses lines of the form "<commit> <ref-path>". Remote-tracking refs
// become branches, local heads are skipped, anything else becomes a tag.
// A "^<commit>" line re-keys the annotated tag above it by the peeled commit.
// Malformed lines are skipped.
func ParsePackedRefs(r io.Reader) (model.ReferenceMap, error) {
	refs := model.NewReferenceMap()
	var lastTag, lastTagHash string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if peeled, ok := strings.CutPrefix(line, "^"); ok {
			if lastTag != "" && plumbing.IsHash(peeled) {
				if refs.Tags[lastTagHash] == lastTag {
					delete(refs.Tags, lastTagHash)
				}
				refs.Tags[peeled] = lastTag
			}
			lastTag = ""
			continue
		}
		lastTag = ""
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		hash, refPath, ok := strings.Cut(line, " ")
		if !ok || !plumbing.IsHash(hash) {
			continue
		}
		name := plumbing.ReferenceName(strings.TrimSpace(refPath))
		switch {
		case name.IsRemote():
			branch, ok := remoteBranchName(name)
			if !ok {
				continue
			}
			refs.Branches[hash] = branch
		case strings.HasPrefix(name.String(), headsPrefix):
			continue
		default:
			tag, ok := suffixAfterPrefix(name)
			if !ok {
				continue
			}
			refs.Tags[hash] = tag
			lastTag, lastTagHash = tag, hash
		}
	}
	if err := scanner.Err(); err != nil {
		return model.ReferenceMap{}, errors.Wrap(err, "failed to read packed references")
	}
	return refs, nil
}

// ParseFetchHead parses fetch records: the first 40 characters are the commit, the
// name is the single-quoted token following the word "branch" or "tag".
func ParseFetchHead(r io.Reader) (model.ReferenceMap, error) {
	refs := model.NewReferenceMap()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) < hashLength {
			continue
		}
		hash := line[:hashLength]
		if !plumbing.IsHash(hash) {
			continue
		}
		match := fetchRecordName.FindStringSubmatch(line[hashLength:])
		if match == nil {
			continue
		}
		switch match[1] {
		case "branch":
			if match[2] == plumbing.HEAD.String() {
				continue
			}
			refs.Branches[hash] = match[2]
		case "tag":
			refs.Tags[hash] = match[2]
		}
	}
	if err := scanner.Err(); err != nil {
		return model.ReferenceMap{}, errors.Wrap(err, "failed to read fetch record")
	}
	return refs, nil
}

// remoteBranchName strips "refs/remotes/<remote>/".
func remoteBranchName(name plumbing.ReferenceName) (string, bool) {
	rest := strings.TrimPrefix(name.String(), remotesPrefix)
	_, branch, ok := strings.Cut(rest, "/")
	if !ok || branch == "" || branch == plumbing.HEAD.String() {
		return "", false
	}
	return branch, true
}

// suffixAfterPrefix strips "refs/<namespace>/".
func suffixAfterPrefix(name plumbing.ReferenceName) (string, bool) {
	rest, ok := strings.CutPrefix(name.String(), "refs/")
	if !ok {
		return "", false
	}
	_, suffix, ok := strings.Cut(rest, "/")
	if !ok || suffix == "" {
		return "", false
	}
	return suffix, true
}
