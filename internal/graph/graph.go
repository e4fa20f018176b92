// Package graph builds the note relation graph shown by the graph browser.
package graph

import (
	"cmp"
	"slices"
	"strings"

	"github.com/starford/notegraph/internal/models"
	"github.com/starford/notegraph/internal/similarity"
	"github.com/starford/notegraph/internal/tokenizer"
)

// Edge types.
const (
	EdgeAfter = "after"
	EdgeTag   = "tag"
)

// afterLimit caps the "after" edges emitted per note.
const afterLimit = 5

// Node is a note in the graph.
type Node struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Edge connects two notes. "after" edges are directed from a note to the
// notes whose problems overlap its limit; "tag" edges are undirected and
// stored with source < target.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"`
	Weight int    `json:"weight"`
}

// Graph is the full node and edge list for one subject scope.
type Graph struct {
	Subject string `json:"subject,omitempty"`
	Nodes   []Node `json:"nodes"`
	Edges   []Edge `json:"edges"`
}

type edgeKey struct {
	source, target, kind string
}

// Build computes the graph for notes, optionally restricted to a subject
// (case-insensitive). Tag edges are only drawn for the idea subject.
func Build(notes []models.Note, subject string) Graph {
	subject = strings.ToLower(strings.TrimSpace(subject))
	if subject != "" {
		notes = slices.DeleteFunc(slices.Clone(notes), func(n models.Note) bool {
			return strings.ToLower(n.Subject) != subject
		})
	}

	g := Graph{Subject: subject, Nodes: make([]Node, 0, len(notes)), Edges: []Edge{}}
	for _, n := range notes {
		title := n.Title
		if title == "" {
			title = "Untitled"
		}
		g.Nodes = append(g.Nodes, Node{ID: n.ID, Title: title})
	}

	edges := make(map[edgeKey]Edge)
	add := func(e Edge) {
		k := edgeKey{e.Source, e.Target, e.Type}
		if prev, ok := edges[k]; !ok || e.Weight > prev.Weight {
			edges[k] = e
		}
	}

	for _, n := range notes {
		b, err := similarity.ForNote(notes, n.ID, afterLimit)
		if err != nil {
			continue
		}
		for _, r := range b.LimitToProblem {
			add(Edge{Source: n.ID, Target: r.ID, Type: EdgeAfter, Weight: r.Score})
		}
	}

	if subject == models.SubjectIdea {
		sets := make([]tokenizer.Set, len(notes))
		for i, n := range notes {
			sets[i] = tagSet(n.Tags)
		}
		for i := range notes {
			for j := i + 1; j < len(notes); j++ {
				if len(sets[i]) == 0 || len(sets[j]) == 0 {
					continue
				}
				w := tokenizer.Overlap(sets[i], sets[j])
				if w == 0 {
					continue
				}
				src, dst := notes[i].ID, notes[j].ID
				if dst < src {
					src, dst = dst, src
				}
				add(Edge{Source: src, Target: dst, Type: EdgeTag, Weight: w})
			}
		}
	}

	for _, e := range edges {
		g.Edges = append(g.Edges, e)
	}
	slices.SortFunc(g.Edges, func(a, b Edge) int {
		return cmp.Or(
			cmp.Compare(a.Source, b.Source),
			cmp.Compare(a.Target, b.Target),
			cmp.Compare(a.Type, b.Type),
		)
	})
	return g
}

func tagSet(tags []string) tokenizer.Set {
	s := make(tokenizer.Set, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			s[t] = struct{}{}
		}
	}
	return s
}
