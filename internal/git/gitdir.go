// Package git locates the repository that scopes liquid-mail's local state.
package git

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// FindRoot walks up from start looking for a .git entry. A .git file (as in
// worktrees and submodules) counts the same as a .git directory. The second
// return value is false when no repository encloses start.
func FindRoot(start string) (string, bool) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", false
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// FindRootFromCwd is FindRoot for the process working directory.
func FindRootFromCwd() (string, bool) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", false
	}
	return FindRoot(cwd)
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slug lowercases s and collapses every run of characters outside [a-z0-9]
// into a single hyphen, trimming hyphens at both ends.
func Slug(s string) string {
	s = nonSlug.ReplaceAllString(strings.ToLower(s), "-")
	return strings.Trim(s, "-")
}

// RepoName returns the slugged basename of the repository enclosing start.
func RepoName(start string) (string, bool) {
	root, ok := FindRoot(start)
	if !ok {
		return "", false
	}
	name := Slug(filepath.Base(root))
	return name, name != ""
}
