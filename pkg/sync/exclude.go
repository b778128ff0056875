package sync

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

// IgnoreFileName is an optional gitignore-style file at the local root
const IgnoreFileName = ".davsyncignore"

// defaultIgnoreLines are editor and OS artefacts never worth syncing
var defaultIgnoreLines = []string{
	"*.swp",
	"*.swo",
	"*.tmp",
	"*~",
	"Thumbs.db",
	"desktop.ini",
}

// ExcludeRules decides which paths a pass ignores on both sides.
// Any path with a segment starting with "." is always excluded.
type ExcludeRules struct {
	ignore *gitignore.GitIgnore
}

// NewExcludeRules compiles the default patterns plus the given ones
func NewExcludeRules(patterns ...string) *ExcludeRules {
	lines := make([]string, 0, len(defaultIgnoreLines)+len(patterns))
	lines = append(lines, defaultIgnoreLines...)
	for _, p := range patterns {
		if p = strings.TrimSpace(p); p != "" {
			lines = append(lines, filepath.ToSlash(p))
		}
	}
	return &ExcludeRules{ignore: gitignore.CompileIgnoreLines(lines...)}
}

// LoadExcludeRules is NewExcludeRules extended with the lines of the
// ignore file in localRoot, when there is one
func LoadExcludeRules(localRoot string, patterns []string) (*ExcludeRules, error) {
	all := append([]string(nil), patterns...)

	f, err := os.Open(filepath.Join(localRoot, IgnoreFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return NewExcludeRules(all...), nil
		}
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		all = append(all, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return NewExcludeRules(all...), nil
}

// Excluded reports whether a forward-slash relative path is ignored
func (r *ExcludeRules) Excluded(relativePath string, isDir bool) bool {
	relativePath = strings.Trim(relativePath, "/")
	if relativePath == "" {
		return false
	}

	for _, seg := range strings.Split(relativePath, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}

	if r == nil || r.ignore == nil {
		return false
	}
	if isDir {
		return r.ignore.MatchesPath(relativePath + "/")
	}
	return r.ignore.MatchesPath(relativePath)
}

// ExcludesFile reports whether a file is ignored either by itself or
// through one of its parent directories. Remote listings are flat, so
// directory rules are applied here instead of during a walk.
func (r *ExcludeRules) ExcludesFile(relativePath string) bool {
	relativePath = strings.Trim(relativePath, "/")
	parts := strings.Split(relativePath, "/")
	for i := 1; i < len(parts); i++ {
		if r.Excluded(strings.Join(parts[:i], "/"), true) {
			return true
		}
	}
	return r.Excluded(relativePath, false)
}
