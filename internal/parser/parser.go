// Package parser converts between note Markdown files and models.Note.
//
// A note file is YAML frontmatter followed by an optional H1 title and
// "## Problem", "## Solution", "## Limit" and "## Details" sections.
package parser

import (
	"bytes"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/starford/notegraph/internal/models"
)

const maxTitleRunes = 60

// Frontmatter is the YAML header of a note file.
type Frontmatter struct {
	ID        string            `yaml:"id,omitempty"`
	Title     string            `yaml:"title,omitempty"`
	Subject   string            `yaml:"subject,omitempty"`
	Tags      []string          `yaml:"tags,omitempty"`
	Status    string            `yaml:"status,omitempty"`
	Priority  *int              `yaml:"priority,omitempty"`
	DueDate   string            `yaml:"due_date,omitempty"`
	Props     map[string]string `yaml:"props,omitempty"`
	CreatedAt time.Time         `yaml:"created_at,omitempty"`
	UpdatedAt time.Time         `yaml:"updated_at,omitempty"`
}

// Result holds the output of parsing a note file.
type Result struct {
	Note models.Note
	// HasFrontmatter is false when the file had no (valid) YAML header.
	HasFrontmatter bool
}

// Parse extracts frontmatter and sections from raw Markdown bytes. Invalid
// or missing frontmatter is not an error: the whole file is parsed as body.
func Parse(data []byte) (*Result, error) {
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("parser: content is not valid UTF-8")
	}
	fm, body, ok := splitFrontmatter(data)

	sec := splitSections(body)
	n := models.Note{
		ID:        fm.ID,
		Title:     strings.TrimSpace(fm.Title),
		Subject:   strings.TrimSpace(fm.Subject),
		Problem:   sec.problem,
		Solution:  sec.solution,
		Limit:     sec.limit,
		Details:   sec.details,
		Tags:      CleanTags(fm.Tags),
		Status:    fm.Status,
		Priority:  fm.Priority,
		DueDate:   fm.DueDate,
		Props:     fm.Props,
		CreatedAt: fm.CreatedAt,
		UpdatedAt: fm.UpdatedAt,
	}
	if n.Title == "" {
		n.Title = sec.heading
	}
	n.Normalize()
	return &Result{Note: n, HasFrontmatter: ok}, nil
}

// splitFrontmatter separates YAML frontmatter (between leading --- delimiters)
// from the Markdown body. If no frontmatter is found the entire content is body.
func splitFrontmatter(data []byte) (Frontmatter, string, bool) {
	const delim = "---"
	var fm Frontmatter
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return fm, string(data), false
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return fm, string(data), false
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		return Frontmatter{}, string(data), false
	}
	return fm, body, true
}

type sections struct {
	heading  string
	problem  string
	solution string
	limit    string
	details  string
}

// splitSections walks the body line by line and routes text to the section
// named by the most recent "## " heading. Unknown sections, and text before
// the first heading, are kept in details. A leading H1 becomes the heading.
func splitSections(body string) sections {
	var s sections
	buf := map[string]*strings.Builder{}
	current := "details"
	seenContent := false

	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case !seenContent && s.heading == "" && strings.HasPrefix(trimmed, "# "):
			s.heading = strings.TrimSpace(trimmed[2:])
			continue
		case strings.HasPrefix(trimmed, "## "):
			seenContent = true
			if key, ok := sectionKey(trimmed[3:]); ok {
				current = key
				continue
			}
			current = "details"
		case trimmed != "":
			seenContent = true
		}
		b, ok := buf[current]
		if !ok {
			b = &strings.Builder{}
			buf[current] = b
		}
		b.WriteString(unescapeLine(line))
		b.WriteByte('\n')
	}

	text := func(key string) string {
		if b, ok := buf[key]; ok {
			return strings.TrimSpace(b.String())
		}
		return ""
	}
	s.problem = text("problem")
	s.solution = text("solution")
	s.limit = text("limit")
	s.details = text("details")
	return s
}

func sectionKey(heading string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(heading)) {
	case "problem", "problems":
		return "problem", true
	case "solution", "solutions":
		return "solution", true
	case "limit", "limits", "limitation", "limitations":
		return "limit", true
	case "details", "notes":
		return "details", true
	}
	return "", false
}

// Render writes n in the note file format. Limit and Details sections are
// omitted when empty.
func Render(n models.Note) ([]byte, error) {
	fm := Frontmatter{
		ID:        n.ID,
		Title:     n.Title,
		Subject:   n.Subject,
		Tags:      n.Tags,
		Status:    n.Status,
		Priority:  n.Priority,
		DueDate:   n.DueDate,
		Props:     n.Props,
		CreatedAt: n.CreatedAt.UTC(),
		UpdatedAt: n.UpdatedAt.UTC(),
	}
	header, err := yaml.Marshal(fm)
	if err != nil {
		return nil, fmt.Errorf("parser: marshal frontmatter: %w", err)
	}

	var b bytes.Buffer
	b.WriteString("---\n")
	b.Write(header)
	b.WriteString("---\n\n")
	if n.Title != "" {
		fmt.Fprintf(&b, "# %s\n\n", n.Title)
	}
	writeSection(&b, "Problem", n.Problem, true)
	writeSection(&b, "Solution", n.Solution, true)
	writeSection(&b, "Limit", n.Limit, false)
	writeSection(&b, "Details", n.Details, false)
	return b.Bytes(), nil
}

func writeSection(b *bytes.Buffer, heading, text string, always bool) {
	text = strings.TrimSpace(text)
	if text == "" && !always {
		return
	}
	fmt.Fprintf(b, "## %s\n\n", heading)
	if text != "" {
		for line := range strings.SplitSeq(text, "\n") {
			b.WriteString(escapeLine(line))
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}
}

// escapeLine prefixes a backslash to lines that would read back as a
// heading, and to lines already starting with an escape, so field text
// never opens a section. Leading indentation is kept.
func escapeLine(line string) string {
	rest := strings.TrimLeft(line, " \t")
	if !needsEscape(rest) {
		return line
	}
	indent := line[:len(line)-len(rest)]
	return indent + `\` + rest
}

// unescapeLine reverses escapeLine.
func unescapeLine(line string) string {
	rest := strings.TrimLeft(line, " \t")
	if after, ok := strings.CutPrefix(rest, `\`); ok && needsEscape(after) {
		return line[:len(line)-len(rest)] + after
	}
	return line
}

func needsEscape(s string) bool {
	return strings.HasPrefix(s, "#") || strings.HasPrefix(s, `\#`) || strings.HasPrefix(s, `\\`)
}

// ExtractTitle derives a title from the first line or sentence of problem.
func ExtractTitle(problem string) string {
	first := strings.FieldsFunc(problem, func(r rune) bool {
		return r == '\n' || r == '.' || r == '!' || r == '?'
	})
	title := ""
	if len(first) > 0 {
		title = strings.TrimSpace(first[0])
	}
	if utf8.RuneCountInString(title) > maxTitleRunes {
		title = strings.TrimSpace(string([]rune(title)[:maxTitleRunes]))
	}
	if title == "" {
		return "Untitled"
	}
	return title
}

// CleanTags trims tags, drops empty ones and removes duplicates while
// preserving order.
func CleanTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

