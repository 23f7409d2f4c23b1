package topics

import (
	"path/filepath"

	"github.com/liquidmail/liquid-mail/internal/git"
)

// RepoTopicID derives a topic id from the repository enclosing cwd (or cwd
// itself), falling back to "project".
func RepoTopicID(cwd string) string {
	root, ok := git.FindRoot(cwd)
	if !ok {
		root = cwd
	}
	if slug := git.Slug(filepath.Base(root)); slug != "" {
		return slug
	}
	return "project"
}
