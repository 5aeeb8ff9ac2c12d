// Package store defines the document model and the contract with the
// document store: dense-vector search, lexical full-text search and
// filterable metadata access. A Postgres adapter and an in-memory store
// implement the contract.
package store

// Document layout categories. Every stored document carries exactly one.
const (
	CategoryHeading1  = "heading1"
	CategoryHeading2  = "heading2"
	CategoryHeading3  = "heading3"
	CategoryParagraph = "paragraph"
	CategoryList      = "list"
	CategoryTable     = "table"
	CategoryFigure    = "figure"
	CategoryChart     = "chart"
	CategoryEquation  = "equation"
	CategoryCaption   = "caption"
	CategoryFootnote  = "footnote"
	CategoryHeader    = "header"
	CategoryFooter    = "footer"
	CategoryReference = "reference"

	// CategoryWeb marks documents produced by the web fallback tool.
	CategoryWeb = "web"
)

// Categories lists the fixed document category vocabulary.
var Categories = []string{
	CategoryHeading1, CategoryHeading2, CategoryHeading3,
	CategoryParagraph, CategoryList, CategoryTable, CategoryFigure,
	CategoryChart, CategoryEquation, CategoryCaption, CategoryFootnote,
	CategoryHeader, CategoryFooter, CategoryReference,
}

// Entity is an optional structured annotation attached to a document.
// Type comes from a closed vocabulary discovered from store metadata at
// runtime; it may be a non-ASCII literal and is never hard-coded.
type Entity struct {
	Type                  string   `json:"type"`
	Title                 string   `json:"title,omitempty"`
	Details               string   `json:"details,omitempty"`
	Keywords              []string `json:"keywords,omitempty"`
	HypotheticalQuestions []string `json:"hypothetical_questions,omitempty"`
}

// Metadata is the structured record attached to every document.
type Metadata struct {
	Source        string  `json:"source"`
	Page          int     `json:"page"`
	Category      string  `json:"category"`
	Caption       string  `json:"caption,omitempty"`
	Entity        *Entity `json:"entity,omitempty"`
	HumanFeedback string  `json:"human_feedback,omitempty"`
	ImagePath     string  `json:"image_path,omitempty"`
}

// Document is the unit returned by retrieval and consumed by synthesis.
// Similarity, LexicalRank, RRFScore and SearchType are derived per result
// by the retriever.
type Document struct {
	ID       string   `json:"id"`
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`

	Similarity  float64 `json:"similarity,omitempty"`
	LexicalRank int     `json:"lexical_rank,omitempty"`
	RRFScore    float64 `json:"rrf_score,omitempty"`
	SearchType  string  `json:"search_type,omitempty"`
}

// PageRange is the inclusive page span present in the store.
type PageRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// MetadataSnapshot is the live metadata summary returned by GetMetadata.
// Filter generation validates every candidate predicate against it.
// EntityCategories lists the categories with at least one entity-annotated
// document; the retriever scopes its entity pass to them.
type MetadataSnapshot struct {
	Sources          []string  `json:"sources"`
	Pages            PageRange `json:"pages"`
	Categories       []string  `json:"categories"`
	EntityTypes      []string  `json:"entity_types"`
	EntityCategories []string  `json:"entity_categories"`
}

// HasSource reports whether source is present in the snapshot.
func (m MetadataSnapshot) HasSource(source string) bool {
	return contains(m.Sources, source)
}

// HasCategory reports whether category is present in the snapshot.
func (m MetadataSnapshot) HasCategory(category string) bool {
	return contains(m.Categories, category)
}

// HasEntityType reports whether the entity type literal is present in the
// snapshot's live vocabulary.
func (m MetadataSnapshot) HasEntityType(entityType string) bool {
	return contains(m.EntityTypes, entityType)
}

// InPageRange reports whether page falls inside the snapshot's page span.
func (m MetadataSnapshot) InPageRange(page int) bool {
	return page >= m.Pages.Min && page <= m.Pages.Max
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
