package workspace

import (
	"os"
	"path/filepath"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
)

// GetIgnoreRules compiles the essential builder patterns, the project's
// .gitignore and the fallback patterns into one matcher.
func GetIgnoreRules(rootDir string) *ignore.GitIgnore {
	var allLines []string

	// Essential patterns first so they can never be overridden
	allLines = append(allLines, getEssentialPatterns()...)

	if gitIgnoreContent, err := os.ReadFile(filepath.Join(rootDir, ".gitignore")); err == nil {
		allLines = append(allLines, strings.Split(string(gitIgnoreContent), "\n")...)
	}

	allLines = append(allLines, getFallbackIgnorePatterns()...)

	var filteredLines []string
	for _, line := range allLines {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "#") {
			filteredLines = append(filteredLines, line)
		}
	}

	return ignore.CompileIgnoreLines(filteredLines...)
}

// ListFiltered is List with the workspace ignore rules applied. Ignored
// directories are not descended into.
func ListFiltered(root string) ([]FileManifestEntry, error) {
	rules := GetIgnoreRules(root)
	return list(root, func(rel string, isDir bool) bool {
		if isDir {
			return rules.MatchesPath(rel + "/")
		}
		return rules.MatchesPath(rel)
	})
}

// getEssentialPatterns keeps builder state and VCS internals out of the
// manifest handed to the model.
func getEssentialPatterns() []string {
	return []string{
		StateDir + "/",
		".git/",
		"node_modules/",
	}
}

func getFallbackIgnorePatterns() []string {
	return []string{
		".DS_Store",
		"Thumbs.db",
		"Desktop.ini",
		"*.swp",
		"*.swo",
		"*.tmp",
		"*.log",
		".idea/",
		".vscode/",
		"dist/",
		"build/",
		".next/",
		"coverage/",
	}
}
