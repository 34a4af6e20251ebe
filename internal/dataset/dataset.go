// Package dataset loads YAML fixture files describing collections,
// documents, indexes, graphs, and vectors, and applies them to a store.
// Fixtures are the ingestion format of the `tessera load` command and
// the test suites.
package dataset

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/tessera/internal/schema"
	"github.com/roach88/tessera/internal/store"
)

// Dataset is the top-level fixture document.
type Dataset struct {
	// Collections declares document collections with optional schemas
	// and index specifications.
	Collections []Collection `yaml:"collections,omitempty"`

	// Graphs declares named edge sets for traversal queries.
	Graphs []Graph `yaml:"graphs,omitempty"`
}

// Collection is one named document set.
type Collection struct {
	// Name identifies the collection in FOR clauses.
	Name string `yaml:"name"`

	// Schema is optional CUE source validated against every document
	// at load time.
	Schema string `yaml:"schema,omitempty"`

	// Indexes declares the secondary indexes to create before loading.
	Indexes []IndexSpec `yaml:"indexes,omitempty"`

	// Documents are the rows themselves. A document may carry an
	// explicit _key; otherwise one is generated.
	Documents []map[string]any `yaml:"documents,omitempty"`
}

// IndexSpec declares one secondary index.
type IndexSpec struct {
	Field string `yaml:"field"`
	Kind  string `yaml:"kind"` // equality, range, fulltext, vector
}

// Graph is one named edge set.
type Graph struct {
	Name  string     `yaml:"name"`
	Edges []EdgeSpec `yaml:"edges"`
}

// EdgeSpec is one edge row.
type EdgeSpec struct {
	Key    string         `yaml:"key,omitempty"`
	From   string         `yaml:"from"`
	To     string         `yaml:"to"`
	Fields map[string]any `yaml:"fields,omitempty"`
}

// Load reads and parses a fixture file.
// Returns an error if the file doesn't exist, is malformed, contains
// unknown fields (typos), or is missing required fields.
func Load(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset file: %w", err)
	}
	return Parse(data)
}

// Parse decodes fixture YAML with strict field validation.
func Parse(data []byte) (*Dataset, error) {
	var ds Dataset
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&ds); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validate(&ds); err != nil {
		return nil, fmt.Errorf("invalid dataset: %w", err)
	}
	return &ds, nil
}

func validate(ds *Dataset) error {
	seen := map[string]bool{}
	for i, c := range ds.Collections {
		if c.Name == "" {
			return fmt.Errorf("collection %d has no name", i)
		}
		if seen[c.Name] {
			return fmt.Errorf("duplicate collection %q", c.Name)
		}
		seen[c.Name] = true
		for _, idx := range c.Indexes {
			if idx.Field == "" {
				return fmt.Errorf("collection %q: index has no field", c.Name)
			}
			switch store.IndexKind(idx.Kind) {
			case store.IndexEquality, store.IndexRange, store.IndexFulltext, store.IndexVector:
			default:
				return fmt.Errorf("collection %q: unknown index kind %q", c.Name, idx.Kind)
			}
		}
	}
	for i, g := range ds.Graphs {
		if g.Name == "" {
			return fmt.Errorf("graph %d has no name", i)
		}
		for j, e := range g.Edges {
			if e.From == "" || e.To == "" {
				return fmt.Errorf("graph %q: edge %d needs from and to", g.Name, j)
			}
		}
	}
	return nil
}

// Apply writes the dataset into the store: indexes first so document
// writes maintain them, then documents (validated against the
// collection schema when one is declared), then edges.
func (ds *Dataset) Apply(ctx context.Context, st *store.Store) error {
	for _, c := range ds.Collections {
		var validator *schema.Validator
		if c.Schema != "" {
			v, err := schema.Compile(c.Name, c.Schema)
			if err != nil {
				return err
			}
			validator = v
		}

		for _, idx := range c.Indexes {
			if err := st.CreateIndex(ctx, c.Name, idx.Field, store.IndexKind(idx.Kind)); err != nil {
				return fmt.Errorf("collection %q: %w", c.Name, err)
			}
		}

		for i, doc := range c.Documents {
			if validator != nil {
				if err := validator.Validate(doc); err != nil {
					return fmt.Errorf("collection %q document %d: %w", c.Name, i, err)
				}
			}
			if _, err := st.PutDocument(ctx, c.Name, doc); err != nil {
				return fmt.Errorf("collection %q document %d: %w", c.Name, i, err)
			}
		}
	}

	for _, g := range ds.Graphs {
		for j, e := range g.Edges {
			if err := st.PutEdge(ctx, g.Name, e.Key, e.From, e.To, e.Fields); err != nil {
				return fmt.Errorf("graph %q edge %d: %w", g.Name, j, err)
			}
		}
	}
	return nil
}
