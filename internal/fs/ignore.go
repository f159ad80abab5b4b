package fs

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"drivesync/internal/ds"
)

// IgnoreFileName is the per-root ignore file.
const IgnoreFileName = ".dsignore"

// builtinRules come before config and ignore file rules.
var builtinRules = []string{IgnoreFileName}

// ignoreRule is one parsed line of an ignore list.
//
//	*.log       basename glob, any depth
//	/build      anchored to the root
//	docs/tmp    contains a slash, so also anchored
//	cache/      directories only
//	!keep.log   re-includes what an earlier rule ignored
type ignoreRule struct {
	glob     string
	negate   bool
	dirOnly  bool
	anchored bool
}

func (r ignoreRule) matches(rel string, isDir bool) bool {
	if r.dirOnly && !isDir {
		return false
	}
	subject := rel
	if !r.anchored {
		subject = path.Base(rel)
	}
	ok, _ := path.Match(r.glob, subject)
	return ok
}

func parseRule(line string) (ignoreRule, bool, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return ignoreRule{}, false, nil
	}

	var r ignoreRule
	if strings.HasPrefix(line, "!") {
		r.negate = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		r.dirOnly = true
		line = strings.TrimRight(line, "/")
	}
	if strings.HasPrefix(line, "/") {
		r.anchored = true
		line = strings.TrimLeft(line, "/")
	}
	if strings.Contains(line, "/") {
		r.anchored = true
	}
	if line == "" {
		return ignoreRule{}, false, nil
	}
	if _, err := path.Match(line, ""); err != nil {
		return ignoreRule{}, false, fmt.Errorf("ignore pattern %q: %w", line, err)
	}
	r.glob = line
	return r, true, nil
}

// IgnoreMatcher decides which entries of a local root stay out of the sync.
// Rules are evaluated in order and the last matching rule wins. An ignored
// directory hides its whole subtree, because the walk never descends into it.
type IgnoreMatcher struct {
	rules []ignoreRule
}

// NewIgnoreMatcher parses patterns. Blank lines and '#' comments are skipped;
// an invalid glob is an error so that a typo never silently uploads files.
func NewIgnoreMatcher(patterns []string) (*IgnoreMatcher, error) {
	m := &IgnoreMatcher{}
	var errs []error
	for _, p := range append(append([]string{}, builtinRules...), patterns...) {
		r, ok, err := parseRule(p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			m.rules = append(m.rules, r)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return m, nil
}

// Match reports whether rel, a path relative to the local root, is ignored.
func (m *IgnoreMatcher) Match(rel string, isDir bool) bool {
	rel = filepath.ToSlash(rel)
	// Partial downloads are never uploaded, whatever the rules say.
	if ok, _ := path.Match(ds.TempFilePattern, path.Base(rel)); ok {
		return true
	}

	ignored := false
	for _, r := range m.rules {
		if r.matches(rel, isDir) {
			ignored = !r.negate
		}
	}
	return ignored
}

// ParseIgnoreFile reads the lines of an ignore file. A missing file yields
// no lines and no error.
func ParseIgnoreFile(name string) ([]string, error) {
	f, err := os.Open(name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading ignore file: %w", err)
	}
	return lines, nil
}
