package scoring

import (
	"path/filepath"
	"regexp"
	"strings"
)

// Import-statement shapes per language, capturing the referenced module.
var importPatterns = map[string][]*regexp.Regexp{
	"go": {
		regexp.MustCompile(`(?m)^\s*(?:import\s+)?(?:\w+\s+)?"([^"]+)"`),
	},
	"python": {
		regexp.MustCompile(`(?m)^\s*import\s+([\w.]+)`),
		regexp.MustCompile(`(?m)^\s*from\s+([\w.]+)\s+import`),
	},
	"javascript": {
		regexp.MustCompile(`(?m)from\s+['"]([^'"]+)['"]`),
		regexp.MustCompile(`(?m)require\(\s*['"]([^'"]+)['"]\s*\)`),
	},
	"typescript": {
		regexp.MustCompile(`(?m)from\s+['"]([^'"]+)['"]`),
		regexp.MustCompile(`(?m)require\(\s*['"]([^'"]+)['"]\s*\)`),
	},
}

var entryPointNames = map[string]bool{
	"main.go":     true,
	"main.py":     true,
	"__main__.py": true,
	"app.py":      true,
	"index.js":    true,
	"index.ts":    true,
	"server.js":   true,
}

var coreModuleDirs = map[string]bool{
	"internal": true,
	"core":     true,
	"src":      true,
	"lib":      true,
	"pkg":      true,
}

const (
	dependentWeight  = 15.0
	entryPointBonus  = 20.0
	coreModuleBonus  = 15.0
	maxDependencyRaw = 100.0
)

// dependencyGraph counts, per file, how many other project files reference
// it. Matching is by module key (file stem or containing directory), which
// is deliberately approximate: the signal only orders work.
type dependencyGraph struct {
	dependents map[string]int
}

// buildDependencyGraph scans every file's imports and credits the files
// whose module key is referenced.
func buildDependencyGraph(files map[string]fileContext) *dependencyGraph {
	// module key -> files it may refer to
	keyToFiles := make(map[string][]string)
	for path := range files {
		stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		keyToFiles[stem] = append(keyToFiles[stem], path)
		dir := filepath.Base(filepath.Dir(path))
		if dir != "." && dir != "/" && dir != stem {
			keyToFiles[dir] = append(keyToFiles[dir], path)
		}
	}

	g := &dependencyGraph{dependents: make(map[string]int, len(files))}
	for path, fc := range files {
		for _, ref := range extractImports(fc.content, fc.language) {
			for _, target := range keyToFiles[ref] {
				if target != path {
					g.dependents[target]++
				}
			}
		}
	}
	return g
}

// extractImports returns the module keys a file references. Only the last
// path segment matters for matching.
func extractImports(content []byte, language string) []string {
	patterns, ok := importPatterns[language]
	if !ok {
		return nil
	}
	seen := make(map[string]bool)
	var keys []string
	for _, re := range patterns {
		for _, m := range re.FindAllSubmatch(content, -1) {
			key := lastSegment(string(m[1]))
			if key != "" && !seen[key] {
				seen[key] = true
				keys = append(keys, key)
			}
		}
	}
	return keys
}

func lastSegment(module string) string {
	module = strings.TrimSuffix(module, "/")
	if i := strings.LastIndexAny(module, "/."); i >= 0 {
		return module[i+1:]
	}
	return module
}

// score combines the dependent count with structural bonuses, capped at 100.
func (g *dependencyGraph) score(path string) float64 {
	s := float64(g.dependents[path]) * dependentWeight
	if entryPointNames[strings.ToLower(filepath.Base(path))] {
		s += entryPointBonus
	}
	if isCoreModule(path) {
		s += coreModuleBonus
	}
	if s > maxDependencyRaw {
		return maxDependencyRaw
	}
	return s
}

func isCoreModule(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(filepath.Dir(path)), "/") {
		if coreModuleDirs[strings.ToLower(part)] {
			return true
		}
	}
	return false
}
