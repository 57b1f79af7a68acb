// Package catalog describes the assessment types on offer and the score
// categories each questionnaire covers.
package catalog

import (
	_ "embed"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/assessment-cli/internal/model"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// TypeDef describes one assessment type.
type TypeDef struct {
	ID         model.AssessmentType `yaml:"id"`
	Name       string               `yaml:"name"`
	Categories []string             `yaml:"categories"`
}

// Catalog indexes type definitions by id.
type Catalog struct {
	types map[model.AssessmentType]TypeDef
}

type catalogFile struct {
	Types []TypeDef `yaml:"types"`
}

// Default returns the catalog compiled into the binary.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(eris.Wrap(err, "catalog: embedded catalog"))
	}
	return c
}

// Load reads a catalog from path, or returns Default when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: read %s", path)
	}
	return Parse(data)
}

// Parse decodes a YAML catalog and checks every entry is a known type.
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "catalog: unmarshal")
	}

	c := &Catalog{types: make(map[model.AssessmentType]TypeDef, len(f.Types))}
	for _, td := range f.Types {
		if !td.ID.Valid() {
			return nil, eris.Errorf("catalog: unknown assessment type %q", td.ID)
		}
		if len(td.Categories) == 0 {
			return nil, eris.Errorf("catalog: type %q has no categories", td.ID)
		}
		c.types[td.ID] = td
	}
	return c, nil
}

// Lookup returns the definition for t.
func (c *Catalog) Lookup(t model.AssessmentType) (TypeDef, bool) {
	td, ok := c.types[t]
	return td, ok
}

// Categories returns the score categories for t, or nil for unknown types.
func (c *Catalog) Categories(t model.AssessmentType) []string {
	return c.types[t].Categories
}

// DisplayName returns a human label for t, falling back to the raw id.
func (c *Catalog) DisplayName(t model.AssessmentType) string {
	if td, ok := c.types[t]; ok && td.Name != "" {
		return td.Name
	}
	return string(t)
}
