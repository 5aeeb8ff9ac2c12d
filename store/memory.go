package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-memory Store used by tests and local development.
// Dense search runs cosine similarity against per-language vectors
// registered alongside each document; lexical search evaluates the boolean
// keyword expression against document content.
type MemoryStore struct {
	mu         sync.RWMutex
	docs       []Document
	embeddings map[string]map[string][]float32 // doc id -> language -> vector
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		embeddings: make(map[string]map[string][]float32),
	}
}

// Add inserts a document with optional per-language embeddings.
func (s *MemoryStore) Add(doc Document, embeddings map[string][]float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = append(s.docs, doc)
	if len(embeddings) > 0 {
		byLang := make(map[string][]float32, len(embeddings))
		for lang, vec := range embeddings {
			byLang[lang] = append([]float32(nil), vec...)
		}
		s.embeddings[doc.ID] = byLang
	}
}

// Len returns the number of stored documents.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// DenseSearch implements Store.
func (s *MemoryStore) DenseSearch(ctx context.Context, language string, embedding []float32, filter Filter, limit int) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Document
	for _, doc := range s.docs {
		if !filter.Matches(doc) {
			continue
		}
		vec, ok := s.embeddings[doc.ID][language]
		if !ok {
			continue
		}
		d := doc
		d.Similarity = cosineSimilarity(embedding, vec)
		out = append(out, d)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Similarity > out[j].Similarity
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// LexicalSearch implements Store.
func (s *MemoryStore) LexicalSearch(ctx context.Context, language string, expression string, filter Filter, limit int) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	groups := parseExpression(expression)
	if len(groups) == 0 {
		return nil, nil
	}

	type scored struct {
		doc   Document
		score int
	}
	var matched []scored
	for _, doc := range s.docs {
		if !filter.Matches(doc) {
			continue
		}
		content := strings.ToLower(doc.Content + " " + doc.Metadata.Caption)
		if !matchesExpression(content, groups) {
			continue
		}
		matched = append(matched, scored{doc: doc, score: keywordHits(content, groups)})
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].score > matched[j].score
	})

	var out []Document
	for i, m := range matched {
		if i >= limit {
			break
		}
		d := m.doc
		d.LexicalRank = i + 1
		out = append(out, d)
	}
	return out, nil
}

// GetDocument implements Store.
func (s *MemoryStore) GetDocument(ctx context.Context, id string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, doc := range s.docs {
		if doc.ID == id {
			return doc, nil
		}
	}
	return Document{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// GetMetadata implements Store.
func (s *MemoryStore) GetMetadata(ctx context.Context) (MetadataSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var snap MetadataSnapshot
	seenSource := map[string]bool{}
	seenCategory := map[string]bool{}
	seenEntity := map[string]bool{}
	seenEntityCategory := map[string]bool{}

	for i, doc := range s.docs {
		md := doc.Metadata
		if !seenSource[md.Source] {
			seenSource[md.Source] = true
			snap.Sources = append(snap.Sources, md.Source)
		}
		if !seenCategory[md.Category] {
			seenCategory[md.Category] = true
			snap.Categories = append(snap.Categories, md.Category)
		}
		if md.Entity != nil && md.Entity.Type != "" && !seenEntity[md.Entity.Type] {
			seenEntity[md.Entity.Type] = true
			snap.EntityTypes = append(snap.EntityTypes, md.Entity.Type)
		}
		if md.Entity != nil && !seenEntityCategory[md.Category] {
			seenEntityCategory[md.Category] = true
			snap.EntityCategories = append(snap.EntityCategories, md.Category)
		}
		if i == 0 {
			snap.Pages.Min, snap.Pages.Max = md.Page, md.Page
		} else {
			if md.Page < snap.Pages.Min {
				snap.Pages.Min = md.Page
			}
			if md.Page > snap.Pages.Max {
				snap.Pages.Max = md.Page
			}
		}
	}
	sort.Strings(snap.Sources)
	sort.Strings(snap.Categories)
	sort.Strings(snap.EntityTypes)
	sort.Strings(snap.EntityCategories)
	return snap, nil
}

// parseExpression splits a tsquery-style expression into OR groups of
// AND-ed keywords: "(a & b) | c" -> [[a b], [c]].
func parseExpression(expression string) [][]string {
	var groups [][]string
	for _, part := range strings.Split(expression, "|") {
		part = strings.TrimSpace(part)
		part = strings.Trim(part, "()")
		var group []string
		for _, kw := range strings.Split(part, "&") {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" {
				group = append(group, kw)
			}
		}
		if len(group) > 0 {
			groups = append(groups, group)
		}
	}
	return groups
}

func matchesExpression(content string, groups [][]string) bool {
	for _, group := range groups {
		all := true
		for _, kw := range group {
			if !strings.Contains(content, kw) {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}

func keywordHits(content string, groups [][]string) int {
	seen := map[string]bool{}
	hits := 0
	for _, group := range groups {
		for _, kw := range group {
			if seen[kw] {
				continue
			}
			seen[kw] = true
			if strings.Contains(content, kw) {
				hits++
			}
		}
	}
	return hits
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
