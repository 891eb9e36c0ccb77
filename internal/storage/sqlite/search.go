package sqlite

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/neuralinbox/neuralinbox/internal/storage"
	"github.com/neuralinbox/neuralinbox/internal/types"
)

// bm25 column weights: a title hit outranks a content hit, which outranks a
// hit only in the raw input.
const ftsWeights = "10.0, 5.0, 2.0"

// ftsRankScale maps bm25 rank magnitudes onto [0,1]. Ranks beyond the scale
// saturate at 1.
const ftsRankScale = 10.0

// ftsMatchQuery converts free text into an FTS5 MATCH expression: each token
// is quoted and all tokens are required. Returns "" when the text contains no
// tokens.
func ftsMatchQuery(text string) string {
	tokens := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(tokens) == 0 {
		return ""
	}
	quoted := make([]string, len(tokens))
	for i, tok := range tokens {
		quoted[i] = `"` + strings.ReplaceAll(tok, `"`, `""`) + `"`
	}
	return strings.Join(quoted, " AND ")
}

// FTSSearch runs the lexical leg of hybrid search and returns rows with
// normalized scores, best first.
func (s *Store) FTSSearch(ctx context.Context, userID int64, query string, limit int, typeFilter types.ItemType, statusFilter types.ItemStatus) ([]storage.FTSResult, error) {
	match := ftsMatchQuery(query)
	if match == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	whereClauses := []string{"items_fts MATCH ?", "i.user_id = ?"}
	args := []any{match, userID}
	if typeFilter != "" {
		whereClauses = append(whereClauses, "i.type = ?")
		args = append(args, string(typeFilter))
	}
	if statusFilter != "" {
		whereClauses = append(whereClauses, "i.status = ?")
		args = append(args, string(statusFilter))
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT i.id, i.title, i.content, i.type, bm25(items_fts, %s) AS rank
		FROM items_fts
		JOIN items i ON i.id = items_fts.rowid
		WHERE %s
		ORDER BY rank ASC
		LIMIT ?`, ftsWeights, strings.Join(whereClauses, " AND ")), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to run fts search: %w", err)
	}
	defer rows.Close()

	var results []storage.FTSResult
	for rows.Next() {
		var (
			r    storage.FTSResult
			rank float64
		)
		if err := rows.Scan(&r.ItemID, &r.Title, &r.Content, &r.Type, &rank); err != nil {
			return nil, fmt.Errorf("failed to scan fts row: %w", err)
		}
		// bm25 ranks are negative, more negative is better.
		score := -rank / ftsRankScale
		if score > 1 {
			score = 1
		}
		if score < 0 {
			score = 0
		}
		r.Score = score
		results = append(results, r)
	}
	return results, rows.Err()
}

// VectorCandidates returns the user's embedded items for in-process
// similarity scoring.
func (s *Store) VectorCandidates(ctx context.Context, userID int64, typeFilter types.ItemType, statusFilter types.ItemStatus) ([]storage.VectorCandidate, error) {
	whereClauses := []string{"user_id = ?", "embedding IS NOT NULL"}
	args := []any{userID}
	if typeFilter != "" {
		whereClauses = append(whereClauses, "type = ?")
		args = append(args, string(typeFilter))
	}
	if statusFilter != "" {
		whereClauses = append(whereClauses, "status = ?")
		args = append(args, string(statusFilter))
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, content, type, embedding FROM items WHERE `+
			strings.Join(whereClauses, " AND "), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query vector candidates: %w", err)
	}
	defer rows.Close()

	var candidates []storage.VectorCandidate
	for rows.Next() {
		var (
			c    storage.VectorCandidate
			blob []byte
		)
		if err := rows.Scan(&c.ItemID, &c.Title, &c.Content, &c.Type, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		vec, err := decodeEmbedding(blob)
		if err != nil {
			return nil, err
		}
		c.Embedding = vec
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

// SubstringSearch is the fallback for short queries where FTS token matching
// is too strict. Case folding happens in Go so Cyrillic input matches
// regardless of case. Title matches sort before content matches, newest
// first within each group.
func (s *Store) SubstringSearch(ctx context.Context, userID int64, query string, limit int, typeFilter types.ItemType, statusFilter types.ItemStatus) ([]storage.FTSResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	whereClauses := []string{"user_id = ?", "status != ?"}
	args := []any{userID, types.StatusProcessing}
	if typeFilter != "" {
		whereClauses = append(whereClauses, "type = ?")
		args = append(args, string(typeFilter))
	}
	if statusFilter != "" {
		whereClauses = append(whereClauses, "status = ?")
		args = append(args, string(statusFilter))
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, content, original_input, type FROM items WHERE `+
			strings.Join(whereClauses, " AND ")+` ORDER BY created_at DESC, id DESC`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to run substring search: %w", err)
	}
	defer rows.Close()

	needle := strings.ToLower(query)
	type scored struct {
		result  storage.FTSResult
		inTitle bool
		order   int
	}
	var hits []scored
	order := 0
	for rows.Next() {
		var (
			r             storage.FTSResult
			originalInput string
		)
		if err := rows.Scan(&r.ItemID, &r.Title, &r.Content, &originalInput, &r.Type); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		inTitle := strings.Contains(strings.ToLower(r.Title), needle)
		inBody := strings.Contains(strings.ToLower(r.Content), needle) ||
			strings.Contains(strings.ToLower(originalInput), needle)
		if !inTitle && !inBody {
			continue
		}
		// Flat fallback score; ranking quality comes from the sort below.
		r.Score = 0.5
		hits = append(hits, scored{result: r, inTitle: inTitle, order: order})
		order++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].inTitle != hits[j].inTitle {
			return hits[i].inTitle
		}
		return hits[i].order < hits[j].order
	})

	results := make([]storage.FTSResult, 0, limit)
	for _, h := range hits {
		results = append(results, h.result)
		if len(results) == limit {
			break
		}
	}
	return results, nil
}
