package retriever

import (
	"sort"

	"github.com/smallnest/ragflow/store"
)

// rankedList is one contributing result list, tagged with the search type
// that produced it ("semantic", "keyword" or "entity").
type rankedList struct {
	searchType string
	docs       []store.Document
}

type fusedDoc struct {
	doc       store.Document
	score     float64
	lists     int
	firstRank int
	entity    bool
}

// fuseRRF merges ranked lists with reciprocal rank fusion: each list
// contributes 1/(k+rank) per document, rank counted from 1. Ties break by
// list count, then lowest first-seen rank, then id. The result is truncated
// to limit.
func fuseRRF(lists []rankedList, k, limit int) []store.Document {
	fused := make(map[string]*fusedDoc)
	order := make([]string, 0)

	for _, list := range lists {
		for rank, doc := range list.docs {
			f, ok := fused[doc.ID]
			if !ok {
				f = &fusedDoc{doc: doc, firstRank: rank + 1}
				fused[doc.ID] = f
				order = append(order, doc.ID)
			}
			f.score += 1.0 / float64(k+rank+1)
			f.lists++
			if rank+1 < f.firstRank {
				f.firstRank = rank + 1
			}
			if list.searchType == "entity" {
				f.entity = true
			}
			if doc.Similarity > f.doc.Similarity {
				f.doc.Similarity = doc.Similarity
			}
			if doc.LexicalRank > 0 && (f.doc.LexicalRank == 0 || doc.LexicalRank < f.doc.LexicalRank) {
				f.doc.LexicalRank = doc.LexicalRank
			}
		}
	}

	merged := make([]*fusedDoc, 0, len(fused))
	for _, id := range order {
		merged = append(merged, fused[id])
	}

	sort.SliceStable(merged, func(i, j int) bool {
		a, b := merged[i], merged[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.lists != b.lists {
			return a.lists > b.lists
		}
		if a.firstRank != b.firstRank {
			return a.firstRank < b.firstRank
		}
		return a.doc.ID < b.doc.ID
	})

	if len(merged) > limit {
		merged = merged[:limit]
	}

	out := make([]store.Document, 0, len(merged))
	for _, f := range merged {
		doc := f.doc
		doc.RRFScore = f.score
		if f.entity {
			doc.SearchType = "entity"
		} else if doc.SearchType == "" {
			doc.SearchType = "hybrid"
		}
		out = append(out, doc)
	}
	return out
}
