package store

import "context"

// Search languages selecting the dense-vector column and the lexical
// tsvector to query.
const (
	LanguageKorean  = "korean"
	LanguageEnglish = "english"
)

// Store is the contract with the document store. The store applies filters
// server-side; callers never post-filter results.
type Store interface {
	// DenseSearch returns up to limit documents ranked by cosine
	// similarity of embedding against the language's vector column.
	// Each result carries Similarity.
	DenseSearch(ctx context.Context, language string, embedding []float32, filter Filter, limit int) ([]Document, error)

	// LexicalSearch returns up to limit documents matching the boolean
	// keyword expression (tsquery syntax: `a & b`, `(a & b) | c`) against
	// the language's full-text vector. Each result carries LexicalRank.
	LexicalSearch(ctx context.Context, language string, expression string, filter Filter, limit int) ([]Document, error)

	// GetDocument returns a single document by id.
	GetDocument(ctx context.Context, id string) (Document, error)

	// GetMetadata returns the live metadata summary used for filter
	// generation and validation.
	GetMetadata(ctx context.Context) (MetadataSnapshot, error)
}
