package schema

import (
	"embed"
	"fmt"
	"sort"
	"strings"
)

//go:embed schemas/*.graphql
var schemaFS embed.FS

// Schema represents a DefraDB collection schema.
type Schema struct {
	Name  string // Collection name (e.g., "Order")
	SDL   string // GraphQL SDL definition
	Order int    // Initialization order (lower = first)
}

// registry lists the collections. Parents must initialize before any
// collection that references them.
var registry = []Schema{
	{Name: "Config", Order: 1},
	{Name: "Order", Order: 2},
}

// load fills in the SDL from the embedded .graphql file.
func load(s Schema) (Schema, error) {
	content, err := schemaFS.ReadFile(fmt.Sprintf("schemas/%s.graphql", lowercase(s.Name)))
	if err != nil {
		return Schema{}, fmt.Errorf("failed to read schema %s: %w", s.Name, err)
	}
	s.SDL = string(content)
	return s, nil
}

// All returns every schema with SDL loaded, in initialization order.
func All() ([]Schema, error) {
	schemas := make([]Schema, 0, len(registry))
	for _, s := range registry {
		loaded, err := load(s)
		if err != nil {
			return nil, err
		}
		schemas = append(schemas, loaded)
	}

	sort.Slice(schemas, func(i, j int) bool {
		return schemas[i].Order < schemas[j].Order
	})
	return schemas, nil
}

// Get returns a single schema by name.
func Get(name string) (*Schema, error) {
	for _, s := range registry {
		if s.Name != name {
			continue
		}
		loaded, err := load(s)
		if err != nil {
			return nil, err
		}
		return &loaded, nil
	}
	return nil, fmt.Errorf("schema not found: %s", name)
}

// lowercase converts a name to lowercase for filename lookup.
func lowercase(s string) string {
	return strings.ToLower(s)
}
