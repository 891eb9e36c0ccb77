// Package search implements hybrid retrieval over the item store: a lexical
// full-text leg fused with a semantic embedding leg, plus fallbacks that keep
// search usable when either leg is unavailable.
package search

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/neuralinbox/neuralinbox/internal/ai"
	"github.com/neuralinbox/neuralinbox/internal/storage"
	"github.com/neuralinbox/neuralinbox/internal/types"
)

const (
	defaultFTSWeight    = 0.5
	defaultVectorWeight = 0.5

	// Floors below which a leg's score does not qualify a result on its own.
	ftsFloor    = 0.05
	vectorFloor = 0.3

	// Each leg over-fetches so fusion has enough candidates to reorder.
	candidateMultiplier = 3

	// Queries this short fall back to substring matching when the hybrid
	// pass finds nothing; token matching is too strict for fragments.
	shortQueryTokens = 3

	// DefaultSimilarMinScore is the FindSimilar threshold used when the
	// caller does not supply one.
	DefaultSimilarMinScore = 0.7
)

// Result is one scored search hit. Score is the fused value; the per-leg
// scores are kept for diagnostics and linking decisions.
type Result struct {
	ItemID      int64          `json:"id"`
	Title       string         `json:"title"`
	Content     string         `json:"content,omitempty"`
	Type        types.ItemType `json:"type"`
	Score       float64        `json:"score"`
	FTSScore    float64        `json:"fts_score"`
	VectorScore float64        `json:"vector_score"`
}

// Engine runs hybrid search against a store using an embedder for the
// semantic leg.
type Engine struct {
	store        storage.Storage
	embedder     ai.Embedder
	ftsWeight    float64
	vectorWeight float64
}

// NewEngine creates a search engine with equal leg weights.
func NewEngine(store storage.Storage, embedder ai.Embedder) *Engine {
	return &Engine{
		store:        store,
		embedder:     embedder,
		ftsWeight:    defaultFTSWeight,
		vectorWeight: defaultVectorWeight,
	}
}

// Search runs the hybrid query. It never fails outward: provider or storage
// errors degrade to the surviving leg, then to substring fallback, then to an
// empty result, with the cause logged.
func (e *Engine) Search(ctx context.Context, userID int64, query string, limit int, typeFilter types.ItemType, statusFilter types.ItemStatus) []Result {
	if strings.TrimSpace(query) == "" {
		return nil
	}
	if limit <= 0 {
		limit = 10
	}

	ftsResults, err := e.store.FTSSearch(ctx, userID, query, limit*candidateMultiplier, typeFilter, statusFilter)
	if err != nil {
		fmt.Fprintf(os.Stderr, "search: fts leg failed: %v\n", err)
		ftsResults = nil
	}

	var queryVec []float32
	if e.embedder != nil {
		queryVec, err = e.embedder.Embed(ctx, query)
		if err != nil {
			fmt.Fprintf(os.Stderr, "search: query embedding failed, lexical only: %v\n", err)
			queryVec = nil
		}
	}

	merged := map[int64]*Result{}
	for _, r := range ftsResults {
		merged[r.ItemID] = &Result{
			ItemID: r.ItemID, Title: r.Title, Content: r.Content, Type: r.Type,
			FTSScore: r.Score,
		}
	}

	if queryVec != nil {
		candidates, err := e.store.VectorCandidates(ctx, userID, typeFilter, statusFilter)
		if err != nil {
			fmt.Fprintf(os.Stderr, "search: vector leg failed: %v\n", err)
			candidates = nil
		}
		for _, hit := range topVectorHits(queryVec, candidates, limit*candidateMultiplier) {
			if r, ok := merged[hit.ItemID]; ok {
				r.VectorScore = hit.Score
				continue
			}
			merged[hit.ItemID] = &Result{
				ItemID: hit.ItemID, Title: hit.Title, Content: hit.Content, Type: hit.Type,
				VectorScore: hit.Score,
			}
		}
	}

	results := make([]Result, 0, len(merged))
	for _, r := range merged {
		if r.FTSScore <= ftsFloor && r.VectorScore <= vectorFloor {
			continue
		}
		r.Score = fuse(r.FTSScore, r.VectorScore, e.ftsWeight, e.vectorWeight)
		results = append(results, *r)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ItemID < results[j].ItemID
	})
	if len(results) > limit {
		results = results[:limit]
	}

	if len(results) == 0 && len(strings.Fields(query)) <= shortQueryTokens {
		return e.substringFallback(ctx, userID, query, limit, typeFilter, statusFilter)
	}
	return results
}

// fuse combines leg scores: a weighted sum, except that a strong single-leg
// match is valuable on its own.
func fuse(fts, vec, ftsWeight, vecWeight float64) float64 {
	return math.Max(fts*ftsWeight+vec*vecWeight, math.Max(0.8*fts, 0.8*vec))
}

type vectorHit struct {
	ItemID  int64
	Title   string
	Content string
	Type    types.ItemType
	Score   float64
}

func topVectorHits(queryVec []float32, candidates []storage.VectorCandidate, limit int) []vectorHit {
	hits := make([]vectorHit, 0, len(candidates))
	for _, c := range candidates {
		score := cosine(queryVec, c.Embedding)
		if score <= 0 {
			continue
		}
		hits = append(hits, vectorHit{
			ItemID: c.ItemID, Title: c.Title, Content: c.Content, Type: c.Type,
			Score: score,
		})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

func (e *Engine) substringFallback(ctx context.Context, userID int64, query string, limit int, typeFilter types.ItemType, statusFilter types.ItemStatus) []Result {
	rows, err := e.store.SubstringSearch(ctx, userID, query, limit, typeFilter, statusFilter)
	if err != nil {
		fmt.Fprintf(os.Stderr, "search: substring fallback failed: %v\n", err)
		return nil
	}
	results := make([]Result, 0, len(rows))
	for _, r := range rows {
		results = append(results, Result{
			ItemID: r.ItemID, Title: r.Title, Content: r.Content, Type: r.Type,
			Score: r.Score,
		})
	}
	return results
}

// FindSimilar returns the user's items at least minScore close to the given
// item, for auto-linking. Non-positive minScore falls back to
// DefaultSimilarMinScore. Items without embeddings, including the source
// item itself when not yet embedded, yield no matches.
func (e *Engine) FindSimilar(ctx context.Context, itemID, userID int64, limit int, minScore float64) ([]Result, error) {
	if limit <= 0 {
		limit = 5
	}
	if minScore <= 0 {
		minScore = DefaultSimilarMinScore
	}
	item, err := e.store.GetItem(ctx, itemID, userID)
	if err != nil {
		return nil, err
	}
	if len(item.Embedding) == 0 {
		return nil, nil
	}

	candidates, err := e.store.VectorCandidates(ctx, userID, "", "")
	if err != nil {
		return nil, err
	}

	var results []Result
	for _, c := range candidates {
		if c.ItemID == itemID {
			continue
		}
		score := cosine(item.Embedding, c.Embedding)
		if score < minScore {
			continue
		}
		results = append(results, Result{
			ItemID: c.ItemID, Title: c.Title, Content: c.Content, Type: c.Type,
			Score: score, VectorScore: score,
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// cosine computes cosine similarity between two vectors. Mismatched or
// zero-norm vectors score 0.
func cosine(a, b []float32) float64 {
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
