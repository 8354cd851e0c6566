package buildconfig

import (
	"bufio"
	"io"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

const FileName = "platformio.ini"

var envSection = regexp.MustCompile(`^\[env:([^\]]+)\]`)

func NewLoader() *Loader {
	return &Loader{cache: make(map[string]cachedTargets)}
}

type cachedTargets struct {
	modTime time.Time
	size    int64
	targets []string
}

// Loader reads build targets and reuses the previous result while the file is unchanged.
type Loader struct {
	mu    sync.Mutex
	cache map[string]cachedTargets
}

func (l *Loader) Load(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to stat build config %v", path)
	}

	l.mu.Lock()
	cached, ok := l.cache[path]
	l.mu.Unlock()
	if ok && cached.modTime.Equal(info.ModTime()) && cached.size == info.Size() {
		return append([]string(nil), cached.targets...), nil
	}

	targets, err := load(path)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.cache[path] = cachedTargets{modTime: info.ModTime(), size: info.Size(), targets: targets}
	l.mu.Unlock()
	return append([]string(nil), targets...), nil
}

func load(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read build config %v", path)
	}
	defer file.Close()
	return ParseTargets(file)
}

// ParseTargets returns the names of all "[env:<name>]" sections in file order.
func ParseTargets(r io.Reader) ([]string, error) {
	targets := make([]string, 0)
	seen := make(map[string]struct{})
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		match := envSection.FindStringSubmatch(strings.TrimSpace(scanner.Text()))
		if match == nil {
			continue
		}
		name := strings.TrimSpace(match[1])
		if _, ok := seen[name]; ok || name == "" {
			continue
		}
		seen[name] = struct{}{}
		targets = append(targets, name)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to parse build config")
	}
	return targets, nil
}
