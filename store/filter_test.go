package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func sampleDoc() Document {
	return Document{
		ID:      "doc-1",
		Content: "Engine oil specification and change interval",
		Metadata: Metadata{
			Source:   "gv80_manual.pdf",
			Page:     12,
			Category: CategoryTable,
			Caption:  "Engine oil grades",
			Entity: &Entity{
				Type:     "table",
				Title:    "Oil specification table",
				Keywords: []string{"oil", "viscosity"},
			},
		},
	}
}

func TestFilter_IsEmpty(t *testing.T) {
	assert.True(t, Filter{}.IsEmpty())
	assert.False(t, Filter{Pages: []int{1}}.IsEmpty())
	assert.False(t, Filter{Entity: &EntityFilter{Type: "table"}}.IsEmpty())
}

func TestFilter_Matches(t *testing.T) {
	doc := sampleDoc()

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty filter matches all", Filter{}, true},
		{"source match", Filter{Sources: []string{"gv80_manual.pdf"}}, true},
		{"source mismatch", Filter{Sources: []string{"other.pdf"}}, false},
		{"page match", Filter{Pages: []int{11, 12}}, true},
		{"page mismatch", Filter{Pages: []int{1}}, false},
		{"category match", Filter{Categories: []string{CategoryTable, CategoryFigure}}, true},
		{"category mismatch", Filter{Categories: []string{CategoryParagraph}}, false},
		{"caption substring case-insensitive", Filter{CaptionContains: "ENGINE OIL"}, true},
		{"caption mismatch", Filter{CaptionContains: "brake"}, false},
		{"entity type match", Filter{Entity: &EntityFilter{Type: "table"}}, true},
		{"entity type mismatch", Filter{Entity: &EntityFilter{Type: "figure"}}, false},
		{"entity keyword overlap", Filter{Entity: &EntityFilter{Keywords: []string{"viscosity", "unrelated"}}}, true},
		{"entity keyword disjoint", Filter{Entity: &EntityFilter{Keywords: []string{"brake"}}}, false},
		{"entity title substring", Filter{Entity: &EntityFilter{Title: "specification"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(doc))
		})
	}
}

func TestFilter_EntityRequiresAnnotation(t *testing.T) {
	doc := sampleDoc()
	doc.Metadata.Entity = nil
	assert.False(t, Filter{Entity: &EntityFilter{Type: "table"}}.Matches(doc))
}

func TestFilter_WithoutEntity(t *testing.T) {
	f := Filter{
		Pages:  []int{5},
		Entity: &EntityFilter{Type: "table"},
	}
	stripped := f.WithoutEntity()

	assert.Nil(t, stripped.Entity)
	assert.Equal(t, []int{5}, stripped.Pages)
	// The original filter is untouched.
	assert.NotNil(t, f.Entity)
}

func TestFilter_WithCategories(t *testing.T) {
	f := Filter{Entity: &EntityFilter{Type: "table"}}
	scoped := f.WithCategories([]string{CategoryFigure, CategoryTable})

	assert.Equal(t, []string{CategoryFigure, CategoryTable}, scoped.Categories)
	assert.Empty(t, f.Categories)
	assert.NotNil(t, scoped.Entity)
}

func TestBuildWhere(t *testing.T) {
	where, args := buildWhere(Filter{}, 2)
	assert.Equal(t, "1=1", where)
	assert.Empty(t, args)

	f := Filter{
		Sources:         []string{"manual.pdf"},
		Pages:           []int{1, 2},
		CaptionContains: "engine",
		Entity:          &EntityFilter{Type: "table", Keywords: []string{"oil"}},
	}
	where, args = buildWhere(f, 2)
	assert.Equal(t, "source = ANY($2) AND page = ANY($3) AND caption ILIKE $4 AND (entity->>'type' = $5 AND entity->'keywords' ?| $6)", where)
	assert.Len(t, args, 5)
	assert.Equal(t, "%engine%", args[2])
}

func TestVectorLiteral(t *testing.T) {
	assert.Equal(t, "[0.5,-1,0.25]", vectorLiteral([]float32{0.5, -1, 0.25}))
	assert.Equal(t, "[]", vectorLiteral(nil))
}
