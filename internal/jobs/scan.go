package jobs

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/sevigo/code-mender/internal/analyzer"
	"github.com/sevigo/code-mender/internal/core"
)

// ListTargetFiles walks the project and returns the absolute paths of
// analyzable files, honoring the repo config's directory and extension
// exclusions. Hidden directories are always skipped.
func ListTargetFiles(root string, repoCfg *core.RepoConfig) ([]string, error) {
	excludedDirs := make(map[string]bool, len(repoCfg.ExcludeDirs))
	for _, d := range repoCfg.ExcludeDirs {
		excludedDirs[d] = true
	}
	excludedExts := make(map[string]bool, len(repoCfg.ExcludeExts))
	for _, e := range repoCfg.ExcludeExts {
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		excludedExts[strings.ToLower(e)] = true
	}

	var files []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			name := info.Name()
			if (strings.HasPrefix(name, ".") && path != root) || excludedDirs[name] {
				return filepath.SkipDir
			}
			return nil
		}
		if excludedExts[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		if _, supported := analyzer.DetectLanguage(path); !supported {
			return nil
		}
		files = append(files, path)
		return nil
	})
	return files, err
}
