package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/assessment-cli/internal/model"
)

func TestDefault_CoversEveryType(t *testing.T) {
	c := Default()
	for _, at := range model.AssessmentTypes {
		td, ok := c.Lookup(at)
		require.True(t, ok, "missing %s", at)
		assert.NotEmpty(t, td.Categories)
		assert.NotEmpty(t, td.Name)
	}
}

func TestParse_UnknownType(t *testing.T) {
	_, err := Parse([]byte("types:\n  - id: astrology\n    categories: [stars]\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown assessment type")
}

func TestParse_NoCategories(t *testing.T) {
	_, err := Parse([]byte("types:\n  - id: leadership\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no categories")
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("types:\n  - id: leadership\n    name: Leading Teams\n    categories: [vision]\n"), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"vision"}, c.Categories(model.TypeLeadership))
	assert.Equal(t, "Leading Teams", c.DisplayName(model.TypeLeadership))
	assert.Equal(t, "skills_gap", c.DisplayName(model.TypeSkillsGap))
}

func TestLoad_EmptyPathUsesDefault(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.NotEmpty(t, c.Categories(model.TypeExecutivePresence))
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
