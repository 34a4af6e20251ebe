package dataset

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tessera/internal/store"
)

const fixtureYAML = `
collections:
  - name: users
    schema: |
      {
        name:   string
        status: string
      }
    indexes:
      - field: status
        kind: equality
    documents:
      - _key: u1
        name: Alice
        status: active
      - _key: u2
        name: Bob
        status: inactive
graphs:
  - name: social
    edges:
      - key: e1
        from: u1
        to: u2
        fields:
          type: follows
`

func TestParse(t *testing.T) {
	ds, err := Parse([]byte(fixtureYAML))
	require.NoError(t, err)

	require.Len(t, ds.Collections, 1)
	c := ds.Collections[0]
	assert.Equal(t, "users", c.Name)
	assert.NotEmpty(t, c.Schema)
	require.Len(t, c.Indexes, 1)
	assert.Equal(t, "status", c.Indexes[0].Field)
	require.Len(t, c.Documents, 2)

	require.Len(t, ds.Graphs, 1)
	require.Len(t, ds.Graphs[0].Edges, 1)
	assert.Equal(t, "follows", ds.Graphs[0].Edges[0].Fields["type"])
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte(`
collections:
  - name: users
    documnets:
      - name: typo
`))
	require.Error(t, err, "typo'd keys fail instead of being silently dropped")
}

func TestParseValidation(t *testing.T) {
	cases := []struct {
		name    string
		yaml    string
		message string
	}{
		{
			"collection without name",
			"collections:\n  - documents: []\n",
			"has no name",
		},
		{
			"duplicate collection",
			"collections:\n  - name: a\n  - name: a\n",
			"duplicate collection",
		},
		{
			"bad index kind",
			"collections:\n  - name: a\n    indexes:\n      - field: x\n        kind: btree\n",
			"unknown index kind",
		},
		{
			"index without field",
			"collections:\n  - name: a\n    indexes:\n      - kind: equality\n",
			"index has no field",
		},
		{
			"edge without endpoints",
			"graphs:\n  - name: g\n    edges:\n      - from: a\n",
			"needs from and to",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.message)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read dataset file")
}

func TestApply(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer st.Close()
	ctx := context.Background()

	ds, err := Parse([]byte(fixtureYAML))
	require.NoError(t, err)
	require.NoError(t, ds.Apply(ctx, st))

	// Indexes were created before the documents landed.
	keys, scanErr := st.ScanEquality(ctx, "users", "status", "active")
	require.NoError(t, scanErr)
	assert.Equal(t, []string{"u1"}, keys)

	doc, loadErr := st.Load(ctx, "users", "u2")
	require.NoError(t, loadErr)
	assert.Equal(t, "Bob", doc["name"])

	edges, edgeErr := st.OutEdges(ctx, "social", "u1")
	require.NoError(t, edgeErr)
	require.Len(t, edges, 1)
	assert.Equal(t, "u2", edges[0].To)
	assert.Equal(t, "follows", edges[0].Fields["type"])
}

func TestApplyRejectsSchemaViolation(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer st.Close()

	ds, err := Parse([]byte(`
collections:
  - name: users
    schema: |
      {
        name: string
      }
    documents:
      - name: 42
`))
	require.NoError(t, err)

	err = ds.Apply(context.Background(), st)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `collection "users" document 0`)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fixtureYAML), 0o644))

	ds, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, ds.Collections, 1)
}
