package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/notegraph/internal/models"
	"github.com/starford/notegraph/internal/noteservice"
	"github.com/starford/notegraph/internal/search"
	"github.com/starford/notegraph/internal/similarity"
	"github.com/starford/notegraph/internal/storage"
	"github.com/starford/notegraph/internal/testutil"
)

// testEnv sets up a temp vault, SQLite DB, service, and router for testing.
// An empty authToken disables auth.
func testEnv(t *testing.T, authToken string) (*noteservice.Service, http.Handler) {
	t.Helper()
	svc, router, _ := testEnvWithVault(t, authToken != "", authToken)
	return svc, router
}

func testEnvWithVault(t *testing.T, authEnabled bool, authToken string) (*noteservice.Service, http.Handler, string) {
	t.Helper()
	svc, store, _ := testutil.TestService(t)
	router := NewRouter(svc, authEnabled, authToken, nil, store.Root())
	return svc, router, store.Root()
}

func do(t *testing.T, router http.Handler, method, target string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, rd)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func createNote(t *testing.T, router http.Handler, in NoteRequest) NoteDetail {
	t.Helper()
	w := do(t, router, http.MethodPost, "/notes", in)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	var n NoteDetail
	if err := json.Unmarshal(w.Body.Bytes(), &n); err != nil {
		t.Fatal(err)
	}
	return n
}

func TestCreateAndGetNote(t *testing.T) {
	_, router := testEnv(t, "")

	created := createNote(t, router, NoteRequest{
		Problem:  "Hello problem. More text.",
		Solution: "World",
		Tags:     []string{"a", " ", "b"},
	})
	if created.ID == "" || created.Title != "Hello problem" {
		t.Fatalf("created = %+v", created)
	}

	w := do(t, router, http.MethodGet, "/notes/"+created.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	if got := w.Header().Get("ETag"); got != `"`+created.Checksum+`"` {
		t.Errorf("ETag = %q", got)
	}
	var note NoteDetail
	_ = json.Unmarshal(w.Body.Bytes(), &note)
	if note.Solution != "World" || len(note.Tags) != 2 {
		t.Errorf("note = %+v", note)
	}
}

func TestCreateNote_Validation(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPost, "/notes", NoteRequest{Problem: "only problem"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing solution = %d, want 400", w.Code)
	}
	if !strings.Contains(w.Body.String(), "solution") {
		t.Errorf("error body = %s", w.Body.String())
	}

	req := httptest.NewRequest(http.MethodPost, "/notes", strings.NewReader("{not json"))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad json = %d, want 400", w.Code)
	}
}

func TestUpdateWithOptimisticLocking(t *testing.T) {
	_, router := testEnv(t, "")
	created := createNote(t, router, NoteRequest{Problem: "v1", Solution: "s"})

	upd := NoteRequest{Problem: "v2", Solution: "s"}
	w := do(t, router, http.MethodPut, "/notes/"+created.ID, upd, "If-Match", `"`+created.Checksum+`"`)
	if w.Code != http.StatusOK {
		t.Fatalf("update with correct checksum = %d, body = %s", w.Code, w.Body.String())
	}

	w = do(t, router, http.MethodPut, "/notes/"+created.ID, upd, "If-Match", created.Checksum)
	if w.Code != http.StatusConflict {
		t.Errorf("update with stale checksum = %d, want 409", w.Code)
	}
}

func TestUpdateWithoutIfMatch(t *testing.T) {
	_, router := testEnv(t, "")
	created := createNote(t, router, NoteRequest{Problem: "v1", Solution: "s"})

	w := do(t, router, http.MethodPut, "/notes/"+created.ID, NoteRequest{Problem: "v2", Solution: "s"})
	if w.Code != http.StatusOK {
		t.Errorf("update without If-Match = %d, want 200", w.Code)
	}
}

func TestDeleteNote(t *testing.T) {
	_, router := testEnv(t, "")
	created := createNote(t, router, NoteRequest{Problem: "bye", Solution: "s"})

	if w := do(t, router, http.MethodDelete, "/notes/"+created.ID, nil); w.Code != http.StatusNoContent {
		t.Errorf("delete = %d, want 204", w.Code)
	}
	if w := do(t, router, http.MethodGet, "/notes/"+created.ID, nil); w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", w.Code)
	}
	if w := do(t, router, http.MethodDelete, "/notes/"+created.ID, nil); w.Code != http.StatusNotFound {
		t.Errorf("second delete = %d, want 404", w.Code)
	}
}

func TestListNotes(t *testing.T) {
	_, router := testEnv(t, "")
	createNote(t, router, NoteRequest{Subject: "idea", Problem: "a", Solution: "s"})
	createNote(t, router, NoteRequest{Subject: "paper", Problem: "b", Solution: "s"})

	w := do(t, router, http.MethodGet, "/notes?limit=10", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d", w.Code)
	}
	var resp NoteListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Total != 2 || len(resp.Notes) != 2 {
		t.Errorf("list = %+v", resp)
	}

	w = do(t, router, http.MethodGet, "/notes?subject=IDEA", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Total != 1 {
		t.Errorf("subject filter total = %d, want 1", resp.Total)
	}
}

func TestSimilarEndpoints(t *testing.T) {
	_, router := testEnv(t, "")
	a := createNote(t, router, NoteRequest{Title: "A", Problem: "cache eviction", Solution: "lru", Limit: "memory pressure"})
	b := createNote(t, router, NoteRequest{Title: "B", Problem: "memory pressure", Solution: "sharding"})

	w := do(t, router, http.MethodGet, "/notes/"+a.ID+"/similar", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("similar = %d", w.Code)
	}
	var bundle similarity.Bundle
	_ = json.Unmarshal(w.Body.Bytes(), &bundle)
	if len(bundle.LimitToProblem) != 1 || bundle.LimitToProblem[0].ID != b.ID {
		t.Errorf("limit_to_problem = %+v", bundle.LimitToProblem)
	}
	if bundle.ProblemSimilar == nil || len(bundle.ProblemSimilar) != 0 {
		t.Errorf("problem_similar = %#v, want empty list", bundle.ProblemSimilar)
	}
	if !strings.Contains(w.Body.String(), `"problem_to_limit":[]`) {
		t.Errorf("empty relations must encode as []: %s", w.Body.String())
	}

	if w := do(t, router, http.MethodGet, "/notes/missing/similar", nil); w.Code != http.StatusNotFound {
		t.Errorf("similar missing = %d, want 404", w.Code)
	}

	w = do(t, router, http.MethodPost, "/similar", SimilarDraftRequest{Problem: "memory pressure", ExcludeID: b.ID})
	if w.Code != http.StatusOK {
		t.Fatalf("similar draft = %d", w.Code)
	}
	bundle = similarity.Bundle{}
	_ = json.Unmarshal(w.Body.Bytes(), &bundle)
	if len(bundle.ProblemToLimit) != 1 || bundle.ProblemToLimit[0].ID != a.ID {
		t.Errorf("problem_to_limit = %+v", bundle.ProblemToLimit)
	}
	if len(bundle.ProblemSimilar) != 0 {
		t.Errorf("excluded note suggested: %+v", bundle.ProblemSimilar)
	}
}

func TestSearchEndpoint(t *testing.T) {
	_, router := testEnv(t, "")
	createNote(t, router, NoteRequest{Title: "Test Note", Problem: "p", Solution: "s"})

	w := do(t, router, http.MethodGet, "/search?q=test+note", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search = %d, body = %s", w.Code, w.Body.String())
	}
	var resp SearchResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Query != "test note" || len(resp.Results) != 1 {
		t.Fatalf("resp = %+v", resp)
	}
	if r := resp.Results[0]; r.Count != 1 || r.Score != search.WeightTitle {
		t.Errorf("result = %+v", r)
	}
}

func TestSearchMissingQuery(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/search", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search no query = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"results":[]`) {
		t.Errorf("body = %s, want empty results", w.Body.String())
	}
}

func TestGraphEndpoint(t *testing.T) {
	_, router := testEnv(t, "")
	createNote(t, router, NoteRequest{Subject: "idea", Problem: "p1", Solution: "s", Limit: "shared words", Tags: []string{"x"}})
	createNote(t, router, NoteRequest{Subject: "idea", Problem: "shared words", Solution: "s", Tags: []string{"x"}})

	w := do(t, router, http.MethodGet, "/graph?subject=idea", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("graph = %d", w.Code)
	}
	var resp GraphResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Subject == nil || *resp.Subject != "idea" {
		t.Errorf("subject = %v", resp.Subject)
	}
	if len(resp.Nodes) != 2 || len(resp.Edges) != 2 {
		t.Errorf("graph = %+v, want 2 nodes and an after plus a tag edge", resp)
	}

	w = do(t, router, http.MethodGet, "/graph", nil)
	if !strings.Contains(w.Body.String(), `"subject":null`) {
		t.Errorf("unscoped graph body = %s", w.Body.String())
	}
}

func TestSubjectsEndpoints(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/subjects", nil)
	var subjects []models.Subject
	_ = json.Unmarshal(w.Body.Bytes(), &subjects)
	if w.Code != http.StatusOK || len(subjects) != 3 {
		t.Fatalf("list = %d %v", w.Code, subjects)
	}

	if w := do(t, router, http.MethodPost, "/subjects", SubjectRequest{Name: "paper"}); w.Code != http.StatusOK {
		t.Errorf("save base = %d, want 200", w.Code)
	}
	if w := do(t, router, http.MethodPost, "/subjects", SubjectRequest{Name: "recipe"}); w.Code != http.StatusCreated {
		t.Errorf("save custom = %d, want 201", w.Code)
	}
	if w := do(t, router, http.MethodPost, "/subjects", SubjectRequest{}); w.Code != http.StatusBadRequest {
		t.Errorf("save blank = %d, want 400", w.Code)
	}
	if w := do(t, router, http.MethodDelete, "/subjects/idea", nil); w.Code != http.StatusBadRequest {
		t.Errorf("delete base = %d, want 400", w.Code)
	}

	createNote(t, router, NoteRequest{Subject: "recipe", Problem: "p", Solution: "s"})
	w = do(t, router, http.MethodDelete, "/subjects/recipe", nil)
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "existing notes") {
		t.Errorf("delete in use = %d %s", w.Code, w.Body.String())
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	w := do(t, router, http.MethodPost, "/notes", NoteRequest{Problem: "p", Solution: "s"}, "Authorization", "Bearer secret123")
	if w.Code != http.StatusCreated {
		t.Errorf("authed create = %d, want 201", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	if w := do(t, router, http.MethodGet, "/notes", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	if w := do(t, router, http.MethodGet, "/notes", nil, "Authorization", "Bearer wrong"); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	_, router := testEnv(t, "")

	if w := do(t, router, http.MethodGet, "/notes", nil); w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
}

func TestGetNote_NotFound(t *testing.T) {
	_, router := testEnv(t, "")

	if w := do(t, router, http.MethodGet, "/notes/nope", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing note = %d, want 404", w.Code)
	}
}

func TestUpdateNote_NotFound(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPut, "/notes/ghost", NoteRequest{Problem: "p", Solution: "s"})
	if w.Code != http.StatusNotFound {
		t.Errorf("update missing = %d, want 404", w.Code)
	}
}

// SSE endpoint auth tests.

// testEnvWithSSE creates a router with a stub SSE handler to test auth on /events.
func testEnvWithSSE(t *testing.T, authEnabled bool, token string) http.Handler {
	t.Helper()
	svc, store, _ := testutil.TestService(t)

	sseHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	})

	return NewRouter(svc, authEnabled, token, sseHandler, store.Root())
}

func TestSSEEvents_AuthProtected(t *testing.T) {
	router := testEnvWithSSE(t, true, "secret")

	if w := do(t, router, http.MethodGet, "/events", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	router := testEnvWithSSE(t, true, "tok")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("SSE with valid token = %d, want 200", w.Code)
	}
}

// Attachment tests.

func uploadFile(t *testing.T, router http.Handler, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = io.Copy(part, bytes.NewReader(content))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/attachments", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestUploadAndServeAttachment(t *testing.T) {
	_, router, vaultDir := testEnvWithVault(t, false, "")

	w := uploadFile(t, router, "diagram.PNG", []byte("fake-png-data"))
	if w.Code != http.StatusCreated {
		t.Fatalf("upload = %d, body = %s", w.Code, w.Body.String())
	}
	var resp AttachmentUploadResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if !strings.HasSuffix(resp.Filename, ".png") || resp.URL != "/attachments/"+resp.Filename || resp.Size != 13 {
		t.Errorf("resp = %+v", resp)
	}

	data, err := os.ReadFile(filepath.Join(vaultDir, storage.AttachDir, resp.Filename))
	if err != nil {
		t.Fatalf("file not on disk: %v", err)
	}
	if string(data) != "fake-png-data" {
		t.Errorf("content mismatch")
	}

	r := chi.NewRouter()
	r.Get("/attachments/{filename}", NewAttachmentHandler(vaultDir).ServeFile)
	req := httptest.NewRequest(http.MethodGet, resp.URL, nil)
	sw := httptest.NewRecorder()
	r.ServeHTTP(sw, req)
	if sw.Code != http.StatusOK || sw.Body.String() != "fake-png-data" {
		t.Errorf("serve = %d %q", sw.Code, sw.Body.String())
	}
}

func TestUploadAttachment_RejectsNonImage(t *testing.T) {
	_, router := testEnv(t, "")

	if w := uploadFile(t, router, "notes.txt", []byte("x")); w.Code != http.StatusBadRequest {
		t.Errorf("txt upload = %d, want 400", w.Code)
	}
}

func TestServeAttachment_NotFound(t *testing.T) {
	ah := NewAttachmentHandler(t.TempDir())
	r := chi.NewRouter()
	r.Get("/attachments/{filename}", ah.ServeFile)

	req := httptest.NewRequest(http.MethodGet, "/attachments/nope.png", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing attachment = %d, want 404", w.Code)
	}
}

func TestServeAttachment_SVGIsSandboxed(t *testing.T) {
	vaultDir := t.TempDir()
	dir := filepath.Join(vaultDir, storage.AttachDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	svg := `<svg xmlns="http://www.w3.org/2000/svg"><script>alert(1)</script></svg>`
	if err := os.WriteFile(filepath.Join(dir, "d.svg"), []byte(svg), 0o644); err != nil {
		t.Fatal(err)
	}

	r := chi.NewRouter()
	r.Get("/attachments/{filename}", NewAttachmentHandler(vaultDir).ServeFile)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/attachments/d.svg", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	csp := w.Header().Get("Content-Security-Policy")
	if !strings.Contains(csp, "default-src 'none'") || !strings.Contains(csp, "sandbox") {
		t.Errorf("Content-Security-Policy = %q", csp)
	}
}

func TestServeAttachment_TraversalBlocked(t *testing.T) {
	ah := NewAttachmentHandler(t.TempDir())
	r := chi.NewRouter()
	r.Get("/attachments/{filename}", ah.ServeFile)

	for _, name := range []string{"../secret.md", "../../etc/passwd", ".hidden"} {
		req := httptest.NewRequest(http.MethodGet, "/attachments/"+name, nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		// chi may not route traversal paths at all (404), or the handler rejects them (400).
		if w.Code == http.StatusOK {
			t.Errorf("traversal %q should not return 200", name)
		}
	}
}

func TestUploadAttachment_AuthProtected(t *testing.T) {
	_, router, _ := testEnvWithVault(t, true, "secret")

	if w := uploadFile(t, router, "x.png", []byte("data")); w.Code != http.StatusUnauthorized {
		t.Errorf("upload no auth = %d, want 401", w.Code)
	}
}

func TestUploadAttachment_MissingFileField(t *testing.T) {
	_, router, _ := testEnvWithVault(t, false, "")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("wrong", "data")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/attachments", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing field = %d, want 400", w.Code)
	}
}
