// Package similarity ranks notes related to a target note or an unsaved
// draft by token overlap of their problem, solution and limit fields.
package similarity

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/models"
	"github.com/starford/notegraph/internal/tokenizer"
)

// DefaultLimit is the per-relation result count used when limit <= 0.
const DefaultLimit = 5

// Relation is one related note and its overlap score.
type Relation struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Score int    `json:"score"`
}

// Bundle holds the five relation lists for one target. Each list is ranked
// and truncated independently and is never nil.
type Bundle struct {
	ProblemSimilar  []Relation `json:"problem_similar"`
	SolutionSimilar []Relation `json:"solution_similar"`
	LimitSimilar    []Relation `json:"limit_similar"`
	// LimitToProblem pairs the target's limit with candidates' problems:
	// notes that pick up where the target stops.
	LimitToProblem []Relation `json:"limit_to_problem"`
	// ProblemToLimit pairs the target's problem with candidates' limits:
	// notes whose limits led to the target.
	ProblemToLimit []Relation `json:"problem_to_limit"`
}

// Draft carries the free-text fields of an unsaved note.
type Draft struct {
	Problem  string `json:"problem"`
	Solution string `json:"solution"`
	Limit    string `json:"limit"`
}

type fieldSets struct {
	id       string
	title    string
	problem  tokenizer.Set
	solution tokenizer.Set
	limit    tokenizer.Set
}

func setsOf(id, title, problem, solution, limit string) fieldSets {
	return fieldSets{
		id:       id,
		title:    title,
		problem:  tokenizer.SetOf(problem),
		solution: tokenizer.SetOf(solution),
		limit:    tokenizer.SetOf(limit),
	}
}

// ForNote computes the bundle for the note with the given id against the
// rest of corpus. It returns apperr.ErrNotFound when id is not in corpus.
func ForNote(corpus []models.Note, id string, limit int) (*Bundle, error) {
	idx := slices.IndexFunc(corpus, func(n models.Note) bool { return n.ID == id })
	if idx < 0 {
		return nil, fmt.Errorf("similarity: note %q: %w", id, apperr.ErrNotFound)
	}
	target := corpus[idx]
	cur := setsOf(target.ID, target.Title, target.Problem, target.Solution, target.Limit)
	return rank(cur, corpus, id, limit), nil
}

// ForDraft computes the bundle for an unsaved draft. A non-empty excludeID
// is left out of the corpus, so a note being edited never suggests itself.
func ForDraft(corpus []models.Note, draft Draft, limit int, excludeID string) *Bundle {
	cur := setsOf("", "", draft.Problem, draft.Solution, draft.Limit)
	return rank(cur, corpus, excludeID, limit)
}

type scored struct {
	Relation
	probProb  int
	solSol    int
	limLim    int
	limToProb int
	probToLim int
}

func rank(cur fieldSets, corpus []models.Note, skipID string, limit int) *Bundle {
	if limit <= 0 {
		limit = DefaultLimit
	}
	all := make([]scored, 0, len(corpus))
	for _, n := range corpus {
		if skipID != "" && n.ID == skipID {
			continue
		}
		o := setsOf(n.ID, n.Title, n.Problem, n.Solution, n.Limit)
		all = append(all, scored{
			Relation:  Relation{ID: o.id, Title: o.title},
			probProb:  tokenizer.Overlap(cur.problem, o.problem),
			solSol:    tokenizer.Overlap(cur.solution, o.solution),
			limLim:    tokenizer.Overlap(cur.limit, o.limit),
			limToProb: tokenizer.Overlap(cur.limit, o.problem),
			probToLim: tokenizer.Overlap(cur.problem, o.limit),
		})
	}
	return &Bundle{
		ProblemSimilar:  top(all, func(s scored) int { return s.probProb }, limit),
		SolutionSimilar: top(all, func(s scored) int { return s.solSol }, limit),
		LimitSimilar:    top(all, func(s scored) int { return s.limLim }, limit),
		LimitToProblem:  top(all, func(s scored) int { return s.limToProb }, limit),
		ProblemToLimit:  top(all, func(s scored) int { return s.probToLim }, limit),
	}
}

// CompareTitles orders titles case-insensitively, like the index's
// title COLLATE NOCASE sort, falling back to a byte-wise comparison so
// titles differing only in case still order deterministically.
func CompareTitles(a, b string) int {
	if c := cmp.Compare(strings.ToLower(a), strings.ToLower(b)); c != 0 {
		return c
	}
	return cmp.Compare(a, b)
}

// top keeps candidates with a positive score, orders them by score
// descending, then title and id ascending, and truncates to limit.
func top(all []scored, score func(scored) int, limit int) []Relation {
	out := make([]Relation, 0, min(limit, len(all)))
	for _, s := range all {
		if v := score(s); v > 0 {
			r := s.Relation
			r.Score = v
			out = append(out, r)
		}
	}
	slices.SortFunc(out, compareRelations)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func compareRelations(a, b Relation) int {
	if c := cmp.Compare(b.Score, a.Score); c != 0 {
		return c
	}
	if c := CompareTitles(a.Title, b.Title); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}
