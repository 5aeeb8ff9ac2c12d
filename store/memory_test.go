package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMemoryStore() *MemoryStore {
	s := NewMemoryStore()
	s.Add(Document{
		ID:      "d1",
		Content: "Engine oil must be replaced every 10,000 km.",
		Metadata: Metadata{
			Source: "manual.pdf", Page: 10, Category: CategoryParagraph,
		},
	}, map[string][]float32{
		LanguageEnglish: {1, 0, 0},
	})
	s.Add(Document{
		ID:      "d2",
		Content: "Brake fluid check procedure.",
		Metadata: Metadata{
			Source: "manual.pdf", Page: 20, Category: CategoryParagraph,
		},
	}, map[string][]float32{
		LanguageEnglish: {0, 1, 0},
	})
	s.Add(Document{
		ID:      "d3",
		Content: "Recommended engine oil viscosity grades by temperature.",
		Metadata: Metadata{
			Source: "manual.pdf", Page: 11, Category: CategoryTable,
			Caption: "oil table",
			Entity:  &Entity{Type: "table", Keywords: []string{"oil"}},
		},
	}, map[string][]float32{
		LanguageEnglish: {0.9, 0.1, 0},
	})
	return s
}

func TestMemoryStore_DenseSearch(t *testing.T) {
	s := newTestMemoryStore()

	docs, err := s.DenseSearch(context.Background(), LanguageEnglish, []float32{1, 0, 0}, Filter{}, 2)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "d1", docs[0].ID)
	assert.Equal(t, "d3", docs[1].ID)
	assert.Greater(t, docs[0].Similarity, docs[1].Similarity)
}

func TestMemoryStore_DenseSearchRespectsFilter(t *testing.T) {
	s := newTestMemoryStore()

	docs, err := s.DenseSearch(context.Background(), LanguageEnglish, []float32{1, 0, 0},
		Filter{Categories: []string{CategoryTable}}, 10)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "d3", docs[0].ID)
}

func TestMemoryStore_LexicalSearch(t *testing.T) {
	s := newTestMemoryStore()

	docs, err := s.LexicalSearch(context.Background(), LanguageEnglish, "(engine & oil) | viscosity", Filter{}, 10)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	// d3 matches engine, oil and viscosity; d1 matches engine and oil.
	assert.Equal(t, "d3", docs[0].ID)
	assert.Equal(t, 1, docs[0].LexicalRank)
	assert.Equal(t, "d1", docs[1].ID)
	assert.Equal(t, 2, docs[1].LexicalRank)
}

func TestMemoryStore_LexicalSearchConjunction(t *testing.T) {
	s := newTestMemoryStore()

	docs, err := s.LexicalSearch(context.Background(), LanguageEnglish, "brake & fluid", Filter{}, 10)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "d2", docs[0].ID)
}

func TestMemoryStore_GetMetadata(t *testing.T) {
	s := newTestMemoryStore()

	snap, err := s.GetMetadata(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"manual.pdf"}, snap.Sources)
	assert.Equal(t, 10, snap.Pages.Min)
	assert.Equal(t, 20, snap.Pages.Max)
	assert.ElementsMatch(t, []string{CategoryParagraph, CategoryTable}, snap.Categories)
	assert.Equal(t, []string{"table"}, snap.EntityTypes)
	assert.True(t, snap.HasEntityType("table"))
	assert.False(t, snap.HasEntityType("figure"))
	// Only the table category carries entity-annotated documents.
	assert.Equal(t, []string{CategoryTable}, snap.EntityCategories)
}

func TestMemoryStore_GetDocument(t *testing.T) {
	s := newTestMemoryStore()

	doc, err := s.GetDocument(context.Background(), "d2")
	require.NoError(t, err)
	assert.Equal(t, "d2", doc.ID)

	_, err = s.GetDocument(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestParseExpression(t *testing.T) {
	groups := parseExpression("(a & b) | c | d")
	require.Len(t, groups, 3)
	assert.Equal(t, []string{"a", "b"}, groups[0])
	assert.Equal(t, []string{"c"}, groups[1])
	assert.Equal(t, []string{"d"}, groups[2])

	groups = parseExpression("a & b")
	require.Len(t, groups, 1)
	assert.Equal(t, []string{"a", "b"}, groups[0])
}
