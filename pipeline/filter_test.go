package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/ragflow/store"
)

func testSnapshot() store.MetadataSnapshot {
	return store.MetadataSnapshot{
		Sources:          []string{"manual.pdf", "quickstart.pdf"},
		Pages:            store.PageRange{Min: 1, Max: 50},
		Categories:       []string{store.CategoryParagraph, store.CategoryTable, store.CategoryFigure},
		EntityTypes:      []string{"image", "table", "embedded_doc", "똑딱이"},
		EntityCategories: []string{store.CategoryFigure, store.CategoryTable},
	}
}

func TestValidateFilterDropsUnknownValues(t *testing.T) {
	resp := filterResponse{
		Sources:    []string{"manual.pdf", "nonexistent.pdf"},
		Pages:      []int{5, 0, 99},
		Categories: []string{store.CategoryTable, "sidebar"},
	}
	resp.Entity = &struct {
		Type     string   `json:"type"`
		Title    string   `json:"title"`
		Keywords []string `json:"keywords"`
	}{Type: "unknown_type"}

	filter := validateFilter(resp, testSnapshot())

	assert.Equal(t, []string{"manual.pdf"}, filter.Sources)
	assert.Equal(t, []int{5}, filter.Pages)
	assert.Equal(t, []string{store.CategoryTable}, filter.Categories)
	assert.Nil(t, filter.Entity)
}

func TestValidateFilterKeepsLiveEntityType(t *testing.T) {
	resp := filterResponse{}
	resp.Entity = &struct {
		Type     string   `json:"type"`
		Title    string   `json:"title"`
		Keywords []string `json:"keywords"`
	}{Type: "똑딱이", Keywords: []string{"oil"}}

	filter := validateFilter(resp, testSnapshot())
	require.NotNil(t, filter.Entity)
	assert.Equal(t, "똑딱이", filter.Entity.Type)
	assert.Equal(t, []string{"oil"}, filter.Entity.Keywords)
}

func TestValidateFilterEmptyResponse(t *testing.T) {
	filter := validateFilter(filterResponse{}, testSnapshot())
	assert.True(t, filter.IsEmpty())
}

func TestGenerateFilterEntityOverride(t *testing.T) {
	// With the model unavailable the filter degrades to empty, but a clearly
	// extracted live entity type still survives.
	r := newTestRunner(t, DefaultConfig(), &fakeModel{}, store.NewMemoryStore())

	filter := r.generateFilter(context.Background(), "그 똑딱이 문서 보여줘",
		extraction{EntityType: "똑딱이"}, testSnapshot())
	require.NotNil(t, filter.Entity)
	assert.Equal(t, "똑딱이", filter.Entity.Type)
	assert.Empty(t, filter.Sources)
	assert.Empty(t, filter.Pages)
	// The entity pass inherits the snapshot's entity-bearing categories.
	assert.Equal(t, []string{store.CategoryFigure, store.CategoryTable}, filter.EntityCategories)
}

func TestGenerateFilterUnknownEntityNotForced(t *testing.T) {
	r := newTestRunner(t, DefaultConfig(), &fakeModel{}, store.NewMemoryStore())

	filter := r.generateFilter(context.Background(), "anything",
		extraction{EntityType: "hologram"}, testSnapshot())
	assert.True(t, filter.IsEmpty())
}
