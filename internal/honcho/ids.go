package honcho

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/liquidmail/liquid-mail/internal/git"
)

// NewSessionID returns a backend-agnostic generated session id: "lm" followed
// by 32 lowercase hex digits.
func NewSessionID() string {
	return "lm" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

var (
	workspaceInvalid = regexp.MustCompile(`[^a-z0-9_-]+`)
	hyphenRun        = regexp.MustCompile(`-+`)
)

// SlugWorkspaceID lowercases s and keeps only [a-z0-9_-], collapsing other
// runs to a single hyphen.
func SlugWorkspaceID(s string) string {
	s = workspaceInvalid.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "-")
	s = hyphenRun.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// DefaultWorkspaceID derives a workspace id from the repository enclosing
// cwd (or cwd itself), capped at 100 characters.
func DefaultWorkspaceID(cwd string) string {
	root, ok := git.FindRoot(cwd)
	if !ok {
		root = cwd
	}
	slug := SlugWorkspaceID(filepath.Base(root))
	if slug == "" {
		slug = "default"
	}
	if len(slug) > 100 {
		slug = slug[:100]
	}
	return slug
}
