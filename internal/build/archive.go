package build

import (
	"fmt"
	"io/fs"
	"os"
	"slices"

	"github.com/bmatcuk/doublestar/v4"
)

// MatchArtifacts resolves workspace-relative glob patterns ("**/*.jar") to
// the sorted, de-duplicated list of regular files they select.
func MatchArtifacts(workspace string, patterns []string) ([]string, error) {
	fsys := os.DirFS(workspace)
	paths := make([]string, 0)
	for _, pattern := range patterns {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid artifact pattern %q", pattern)
		}
		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("err matching artifact pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			if fs.ValidPath(m) {
				paths = append(paths, m)
			}
		}
	}
	slices.Sort(paths)
	return slices.Compact(paths), nil
}
