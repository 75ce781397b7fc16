package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetIgnoreRulesAlwaysIncludesEssentialPatterns(t *testing.T) {
	rules := GetIgnoreRules(t.TempDir())

	assert.True(t, rules.MatchesPath(".sitebuilder/documents.db"))
	assert.True(t, rules.MatchesPath(".git/HEAD"))
	assert.True(t, rules.MatchesPath("node_modules/react/index.js"))
	assert.False(t, rules.MatchesPath("index.html"))
}

func TestGetIgnoreRulesReadsGitignore(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".gitignore"), []byte("# comment\nsecrets/\n*.env\n"), 0644))

	rules := GetIgnoreRules(root)

	assert.True(t, rules.MatchesPath("secrets/key.pem"))
	assert.True(t, rules.MatchesPath("prod.env"))
	assert.False(t, rules.MatchesPath("src/app.js"))
}

func TestListFilteredSkipsIgnoredTrees(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, Write(root, "index.html", "home"))
	require.NoError(t, Write(root, "node_modules/pkg/index.js", "module.exports = {}"))
	require.NoError(t, Write(root, ".sitebuilder/config.yaml", "workspace: ."))

	filtered, err := ListFiltered(root)
	require.NoError(t, err)
	assert.Equal(t, []FileManifestEntry{{Path: "index.html", Size: 4}}, filtered)

	all, err := List(root)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
