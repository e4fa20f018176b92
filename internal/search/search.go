// Package search ranks notes by literal phrase occurrences across their
// fields, weighted by field importance.
package search

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/starford/notegraph/internal/models"
)

// DefaultLimit is the result count used when limit <= 0.
const DefaultLimit = 50

// Field weights. Title and subject outrank problem, solution and tags,
// which outrank details and limit.
const (
	WeightTitle    = 3
	WeightSubject  = 3
	WeightProblem  = 2
	WeightSolution = 2
	WeightTags     = 2
	WeightDetails  = 1
	WeightLimit    = 1
)

// Result is one ranked hit.
type Result struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	UpdatedAt time.Time `json:"updated_at"`
	Score     int       `json:"score"`
	Count     int       `json:"count"`
}

// Normalize lower-cases s, collapses whitespace runs to single spaces and
// trims the ends.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// CountOccurrences counts non-overlapping occurrences of needle in haystack,
// scanning left to right. An empty needle never matches.
func CountOccurrences(haystack, needle string) int {
	if needle == "" {
		return 0
	}
	n := 0
	for {
		i := strings.Index(haystack, needle)
		if i < 0 {
			return n
		}
		n++
		haystack = haystack[i+len(needle):]
	}
}

type weightedField struct {
	text   func(models.Note) string
	weight int
}

var fields = []weightedField{
	{func(n models.Note) string { return n.Title }, WeightTitle},
	{func(n models.Note) string { return n.Subject }, WeightSubject},
	{func(n models.Note) string { return n.Problem }, WeightProblem},
	{func(n models.Note) string { return n.Solution }, WeightSolution},
	{func(n models.Note) string { return n.Limit }, WeightLimit},
	{func(n models.Note) string { return n.Details }, WeightDetails},
	{func(n models.Note) string { return strings.Join(n.Tags, " ") }, WeightTags},
}

// Score returns the raw occurrence count and the weighted score of an
// already normalized phrase in n.
func Score(n models.Note, phrase string) (count, score int) {
	for _, f := range fields {
		c := CountOccurrences(Normalize(f.text(n)), phrase)
		count += c
		score += c * f.weight
	}
	return count, score
}

// Search ranks corpus against query. A query that normalizes to the empty
// string yields an empty result. Results are ordered by score descending,
// then by most recent update, and truncated to limit.
func Search(corpus []models.Note, query string, limit int) []Result {
	q := Normalize(query)
	if q == "" {
		return []Result{}
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	out := make([]Result, 0)
	for _, n := range corpus {
		count, score := Score(n, q)
		if score == 0 {
			continue
		}
		out = append(out, Result{
			ID:        n.ID,
			Title:     n.Title,
			UpdatedAt: n.UpdatedAt,
			Score:     score,
			Count:     count,
		})
	}
	slices.SortFunc(out, func(a, b Result) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
