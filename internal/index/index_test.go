package index

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/models"
	"github.com/starford/notegraph/internal/storage"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "notegraph-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func testNote(id, title string, updated time.Time) models.Note {
	return models.Note{
		ID:        id,
		Path:      storage.NotePath(id),
		Title:     title,
		Tags:      []string{},
		Props:     map[string]string{},
		CreatedAt: updated,
		UpdatedAt: updated,
	}
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM notes`).Scan(&count); err != nil {
		t.Fatalf("notes table missing: %v", err)
	}
	if err := db.conn.QueryRow(`SELECT count(*) FROM subjects`).Scan(&count); err != nil {
		t.Fatalf("subjects table missing: %v", err)
	}
}

func TestUpsertAndGetNote(t *testing.T) {
	db := testDB(t)
	prio := 2
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	n := models.Note{
		ID:        "n1",
		Path:      "n1.md",
		Title:     "Hello",
		Subject:   "idea",
		Problem:   "slow builds",
		Solution:  "cache layers",
		Limit:     "cold cache",
		Details:   "more text",
		Tags:      []string{"go", "build"},
		Status:    "open",
		Priority:  &prio,
		DueDate:   "2024-04-01",
		Props:     map[string]string{"owner": "me"},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.UpsertNote(n, "abc123"); err != nil {
		t.Fatalf("UpsertNote: %v", err)
	}

	got, err := db.GetNote("n1")
	if err != nil {
		t.Fatalf("GetNote: %v", err)
	}
	if got.Title != "Hello" || got.Subject != "idea" || got.Problem != "slow builds" ||
		got.Solution != "cache layers" || got.Limit != "cold cache" || got.Details != "more text" {
		t.Errorf("text fields = %+v", got)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "go" || got.Tags[1] != "build" {
		t.Errorf("tags = %v", got.Tags)
	}
	if got.Priority == nil || *got.Priority != 2 {
		t.Errorf("priority = %v, want 2", got.Priority)
	}
	if got.Props["owner"] != "me" {
		t.Errorf("props = %v", got.Props)
	}
	if !got.UpdatedAt.Equal(now) || !got.CreatedAt.Equal(now) {
		t.Errorf("times = %v / %v, want %v", got.CreatedAt, got.UpdatedAt, now)
	}

	cs, err := db.GetChecksum("n1.md")
	if err != nil {
		t.Fatalf("GetChecksum: %v", err)
	}
	if cs != "abc123" {
		t.Errorf("checksum = %q, want %q", cs, "abc123")
	}
}

func TestGetNote_NotFound(t *testing.T) {
	db := testDB(t)
	_, err := db.GetNote("missing")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestGetNote_NilPriority(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertNote(testNote("p", "P", time.Now()), "1")
	got, err := db.GetNote("p")
	if err != nil {
		t.Fatal(err)
	}
	if got.Priority != nil {
		t.Errorf("priority = %v, want nil", *got.Priority)
	}
	if got.Tags == nil || got.Props == nil {
		t.Error("tags and props should be non-nil")
	}
}

func TestUpsertUpdatesExisting(t *testing.T) {
	db := testDB(t)
	now := time.Now()
	_ = db.UpsertNote(testNote("up", "Old", now), "1")
	n := testNote("up", "New", now)
	n.Tags = []string{"new"}
	_ = db.UpsertNote(n, "2")

	cs, _ := db.GetChecksum("up.md")
	if cs != "2" {
		t.Errorf("checksum = %q, want %q", cs, "2")
	}
	got, _ := db.GetNote("up")
	if got.Title != "New" || len(got.Tags) != 1 {
		t.Errorf("note = %+v, want updated title and tags", got)
	}
}

func TestUpsertReplacesOtherIDAtSamePath(t *testing.T) {
	db := testDB(t)
	now := time.Now()
	a := testNote("a", "A", now)
	a.Path = "shared.md"
	_ = db.UpsertNote(a, "1")
	b := testNote("b", "B", now)
	b.Path = "shared.md"
	if err := db.UpsertNote(b, "2"); err != nil {
		t.Fatalf("UpsertNote: %v", err)
	}
	if _, err := db.GetNote("a"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("old id at shared path should be gone, err = %v", err)
	}
	if _, err := db.GetNote("b"); err != nil {
		t.Errorf("GetNote(b): %v", err)
	}
}

func TestDeleteNote(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertNote(testNote("del", "Del", time.Now()), "x")

	if err := db.DeleteNote("del"); err != nil {
		t.Fatalf("DeleteNote: %v", err)
	}
	cs, _ := db.GetChecksum("del.md")
	if cs != "" {
		t.Errorf("deleted note still has checksum %q", cs)
	}
	if err := db.DeleteNote("del"); err != nil {
		t.Errorf("second delete should be a no-op, got %v", err)
	}
}

func TestDeleteByPath(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertNote(testNote("x", "X", time.Now()), "1")

	id, err := db.DeleteByPath("x.md")
	if err != nil {
		t.Fatalf("DeleteByPath: %v", err)
	}
	if id != "x" {
		t.Errorf("id = %q, want %q", id, "x")
	}
	id, err = db.DeleteByPath("x.md")
	if err != nil || id != "" {
		t.Errorf("missing path: id = %q err = %v, want empty and nil", id, err)
	}
}

func TestGetChecksum_NotFound(t *testing.T) {
	db := testDB(t)
	cs, err := db.GetChecksum("nonexistent.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cs != "" {
		t.Errorf("expected empty checksum, got %q", cs)
	}
}

func TestAllNotesOrder(t *testing.T) {
	db := testDB(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_ = db.UpsertNote(testNote("old", "Old", base), "1")
	_ = db.UpsertNote(testNote("new", "New", base.Add(time.Hour)), "2")
	_ = db.UpsertNote(testNote("tie", "Tie", base), "3")

	notes, err := db.AllNotes()
	if err != nil {
		t.Fatalf("AllNotes: %v", err)
	}
	var ids []string
	for _, n := range notes {
		ids = append(ids, n.ID)
	}
	want := []string{"new", "old", "tie"}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids = %v, want %v", ids, want)
			break
		}
	}
}

func TestListNotes_Filters(t *testing.T) {
	db := testDB(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a := testNote("a", "Banana", base)
	a.Subject = "idea"
	a.Tags = []string{"go"}
	b := testNote("b", "apple", base.Add(time.Minute))
	b.Subject = "paper"
	b.Tags = []string{"go", "db"}
	c := testNote("c", "Cherry", base.Add(2*time.Minute))
	c.Subject = "Idea"
	for _, n := range []models.Note{a, b, c} {
		if err := db.UpsertNote(n, n.ID); err != nil {
			t.Fatal(err)
		}
	}

	notes, total, err := db.ListNotes(ListQuery{Tag: "go"})
	if err != nil {
		t.Fatalf("ListNotes(tag): %v", err)
	}
	if total != 2 || len(notes) != 2 {
		t.Errorf("tag filter: total=%d len=%d, want 2", total, len(notes))
	}

	_, total, _ = db.ListNotes(ListQuery{Subject: "idea"})
	if total != 2 {
		t.Errorf("subject filter total = %d, want 2 (case-insensitive)", total)
	}

	notes, total, _ = db.ListNotes(ListQuery{Limit: 1, Offset: 1})
	if total != 3 || len(notes) != 1 || notes[0].ID != "b" {
		t.Errorf("paging: total=%d notes=%v", total, notes)
	}

	notes, _, _ = db.ListNotes(ListQuery{Sort: SortTitle})
	if len(notes) != 3 || notes[0].ID != "b" || notes[1].ID != "a" || notes[2].ID != "c" {
		t.Errorf("title sort order wrong: %v", notes)
	}
}

func TestCountBySubject(t *testing.T) {
	db := testDB(t)
	n := testNote("a", "A", time.Now())
	n.Subject = "paper"
	_ = db.UpsertNote(n, "1")

	got, err := db.CountBySubject("Paper")
	if err != nil {
		t.Fatal(err)
	}
	if got != 1 {
		t.Errorf("count = %d, want 1", got)
	}
	got, _ = db.CountBySubject("idea")
	if got != 0 {
		t.Errorf("count = %d, want 0", got)
	}
}

func TestSubjects_SeededAndCRUD(t *testing.T) {
	db := testDB(t)
	subjects, err := db.ListSubjects()
	if err != nil {
		t.Fatalf("ListSubjects: %v", err)
	}
	if len(subjects) != len(models.BaseSubjects()) {
		t.Fatalf("seeded %d subjects, want %d", len(subjects), len(models.BaseSubjects()))
	}
	for _, s := range subjects {
		if len(s.Schema.Fields) == 0 {
			t.Errorf("base subject %q has empty schema", s.Name)
		}
	}

	custom := models.Subject{
		Name:   "recipe",
		Schema: models.SubjectSchema{Fields: []models.SubjectField{{Title: "Time", Type: "text", Key: "time"}}},
	}
	if err := db.UpsertSubject(custom); err != nil {
		t.Fatalf("UpsertSubject: %v", err)
	}
	got, err := db.GetSubject("RECIPE")
	if err != nil {
		t.Fatalf("GetSubject: %v", err)
	}
	if got.Name != "recipe" || len(got.Schema.Fields) != 1 || got.Schema.Fields[0].Key != "time" {
		t.Errorf("subject = %+v", got)
	}
	created := got.CreatedAt

	custom.Schema.Fields = append(custom.Schema.Fields, models.SubjectField{Title: "Serves", Type: "number", Key: "serves"})
	custom.CreatedAt = created.Add(time.Hour)
	_ = db.UpsertSubject(custom)
	got, _ = db.GetSubject("recipe")
	if len(got.Schema.Fields) != 2 {
		t.Errorf("schema not replaced: %+v", got.Schema)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("created_at changed on update: %v -> %v", created, got.CreatedAt)
	}

	if err := db.DeleteSubject("recipe"); err != nil {
		t.Fatalf("DeleteSubject: %v", err)
	}
	if _, err := db.GetSubject("recipe"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSync_IndexesAndRemoves(t *testing.T) {
	db := testDB(t)
	vaultDir := t.TempDir()
	store, err := storage.NewFS(vaultDir)
	if err != nil {
		t.Fatal(err)
	}
	logger := quietLogger()

	withID := "---\nid: abc\ntitle: Framed\nsubject: idea\n---\n\n## Problem\nslow queries\n"
	_ = os.WriteFile(filepath.Join(vaultDir, "abc.md"), []byte(withID), 0o644)
	_ = os.WriteFile(filepath.Join(vaultDir, "plain.md"), []byte("# Plain\n\n## Problem\nno header\n"), 0o644)

	if err := Sync(db, store, logger); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	n, err := db.GetNote("abc")
	if err != nil {
		t.Fatalf("GetNote(abc): %v", err)
	}
	if n.Title != "Framed" || n.Problem != "slow queries" || n.Path != "abc.md" {
		t.Errorf("note = %+v", n)
	}
	p, err := db.GetNote("plain")
	if err != nil {
		t.Fatalf("GetNote(plain): %v", err)
	}
	if p.Title != "Plain" || p.UpdatedAt.IsZero() || p.CreatedAt.IsZero() {
		t.Errorf("plain note = %+v", p)
	}

	_ = os.Remove(filepath.Join(vaultDir, "plain.md"))
	if err := Sync(db, store, logger); err != nil {
		t.Fatalf("second Sync: %v", err)
	}
	if _, err := db.GetNote("plain"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("removed file still indexed, err = %v", err)
	}
}

func TestSync_SkipsUnchanged(t *testing.T) {
	db := testDB(t)
	vaultDir := t.TempDir()
	store, _ := storage.NewFS(vaultDir)
	_ = os.WriteFile(filepath.Join(vaultDir, "a.md"), []byte("# A\n"), 0o644)

	if err := Sync(db, store, quietLogger()); err != nil {
		t.Fatal(err)
	}
	// Tamper with the indexed title; an unchanged file must not be re-read.
	if _, err := db.conn.Exec(`UPDATE notes SET title = 'tampered' WHERE id = 'a'`); err != nil {
		t.Fatal(err)
	}
	if err := Sync(db, store, quietLogger()); err != nil {
		t.Fatal(err)
	}
	n, _ := db.GetNote("a")
	if n.Title != "tampered" {
		t.Errorf("title = %q, unchanged file was re-indexed", n.Title)
	}
}

func TestCorruptJSONColumnsAreLogged(t *testing.T) {
	db := testDB(t)
	var logs bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&logs, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	n := testNote("n1", "Broken", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	n.Tags = []string{"go"}
	if err := db.UpsertNote(n, "cs"); err != nil {
		t.Fatal(err)
	}
	if _, err := db.conn.Exec(`UPDATE notes SET tags = 'not json' WHERE id = 'n1'`); err != nil {
		t.Fatal(err)
	}
	if _, err := db.conn.Exec(`UPDATE subjects SET schema = '{' WHERE name = 'idea'`); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetNote("n1")
	if err != nil {
		t.Fatalf("GetNote: %v", err)
	}
	if got.Tags == nil || len(got.Tags) != 0 {
		t.Errorf("tags = %#v, want empty", got.Tags)
	}
	sub, err := db.GetSubject("idea")
	if err != nil {
		t.Fatalf("GetSubject: %v", err)
	}
	if sub.Schema.Fields == nil {
		t.Error("schema fields should be non-nil")
	}

	out := logs.String()
	for _, want := range []string{`"note_id":"n1"`, `"column":"tags"`, `"subject":"idea"`, `"column":"schema"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %s: %s", want, out)
		}
	}
}
