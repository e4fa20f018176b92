// Package mcpserver provides an MCP (Model Context Protocol) server that
// exposes notegraph tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/noteservice"
	"github.com/starford/notegraph/internal/similarity"
	"github.com/starford/notegraph/internal/storage"
)

const noteFormatURI = "notegraph://note-format"

// Server wraps the MCP server with notegraph tools.
type Server struct {
	mcp   *server.MCPServer
	svc   *noteservice.Service
	store storage.Provider
}

// New creates a new MCP server with all tools registered. store receives
// images added with attach_image.
func New(svc *noteservice.Service, store storage.Provider, version string) *Server {
	s := &Server{svc: svc, store: store}

	s.mcp = server.NewMCPServer(
		"notegraph",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Phrase search over note titles, subjects, problems, solutions, tags, details and limits. "+
			"Results are ranked by weighted occurrence count."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Phrase to search for (case and whitespace insensitive)")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 50)")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read a note with all its fields and its checksum."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Create a note. Problem and solution are required; the title defaults to the first "+
			"sentence of the problem. Read the contract via get_note_contract or the "+noteFormatURI+" resource first."),
		mcp.WithString("problem", mcp.Required(), mcp.Description("The problem the note addresses")),
		mcp.WithString("solution", mcp.Required(), mcp.Description("The solution")),
		mcp.WithString("limit", mcp.Description("Where the solution stops working")),
		mcp.WithString("details", mcp.Description("Free-form details")),
		mcp.WithString("title", mcp.Description("Title (optional)")),
		mcp.WithString("subject", mcp.Description("Subject name, e.g. paper, idea, plain-note")),
		mcp.WithString("tags", mcp.Description("Comma-separated tags (optional)")),
	), s.createNote)

	s.mcp.AddTool(mcp.NewTool("similar_notes",
		mcp.WithDescription("Related notes of a stored note: problem, solution and limit similarity, "+
			"plus limit_to_problem (notes that continue where it stops) and problem_to_limit (notes that led to it)."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
		mcp.WithNumber("limit", mcp.Description("Maximum results per relation (default 5)")),
	), s.similarNotes)

	s.mcp.AddTool(mcp.NewTool("suggest_related",
		mcp.WithDescription("Related notes for an unsaved draft. Call this while writing a note to find prior work."),
		mcp.WithString("problem", mcp.Description("Draft problem text")),
		mcp.WithString("solution", mcp.Description("Draft solution text")),
		mcp.WithString("limit_text", mcp.Description("Draft limit text")),
		mcp.WithString("exclude_id", mcp.Description("Note id to leave out, e.g. the note being edited")),
		mcp.WithNumber("limit", mcp.Description("Maximum results per relation (default 5)")),
	), s.suggestRelated)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List notes, most recently updated first. One line per note: id, subject, title."),
		mcp.WithString("subject", mcp.Description("Only notes of this subject")),
		mcp.WithString("tag", mcp.Description("Only notes with this tag")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of notes (default all)")),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("list_subjects",
		mcp.WithDescription("List note subjects and their field schemas."),
	), s.listSubjects)

	s.mcp.AddTool(mcp.NewTool("get_note_contract",
		mcp.WithDescription("Returns the notegraph note format contract. "+
			"Call this before creating notes to ensure correct structure."),
	), s.getNoteContract)

	s.mcp.AddTool(mcp.NewTool("attach_image",
		mcp.WithDescription("Store an image for use in note details. Returns a markdownImage field ready to paste."),
		mcp.WithString("data_uri", mcp.Required(), mcp.Description("base64 data URI, e.g. data:image/png;base64,....")),
		mcp.WithString("filename", mcp.Description("Preferred file name (optional)")),
	), s.attachImage)

	s.mcp.AddResource(
		mcp.NewResource(noteFormatURI, "Note Format Contract",
			mcp.WithResourceDescription("Markdown note format used by the vault."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readNoteFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func errorResult(err error, id string) *mcp.CallToolResult {
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id))
	}
	return mcp.NewToolResultError(err.Error())
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, req.GetInt("limit", 0))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results)
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.svc.GetNote(ctx, id)
	if err != nil {
		return errorResult(err, id), nil
	}
	return jsonResult(note)
}

func (s *Server) createNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	in := noteservice.NoteInput{
		Title:    req.GetString("title", ""),
		Subject:  req.GetString("subject", ""),
		Problem:  req.GetString("problem", ""),
		Solution: req.GetString("solution", ""),
		Limit:    req.GetString("limit", ""),
		Details:  req.GetString("details", ""),
		Tags:     strings.Split(req.GetString("tags", ""), ","),
	}
	note, err := s.svc.CreateNote(ctx, in)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(note)
}

func (s *Server) similarNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	bundle, err := s.svc.Similar(ctx, id, req.GetInt("limit", 0))
	if err != nil {
		return errorResult(err, id), nil
	}
	return jsonResult(bundle)
}

func (s *Server) suggestRelated(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	draft := similarity.Draft{
		Problem:  req.GetString("problem", ""),
		Solution: req.GetString("solution", ""),
		Limit:    req.GetString("limit_text", ""),
	}
	bundle, err := s.svc.SimilarDraft(ctx, draft, req.GetInt("limit", 0), req.GetString("exclude_id", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(bundle)
}

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	notes, total, err := s.svc.ListNotes(ctx, noteservice.ListQuery{
		Subject: req.GetString("subject", ""),
		Tag:     req.GetString("tag", ""),
		Limit:   req.GetInt("limit", 0),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if total == 0 {
		return mcp.NewToolResultText("no notes found"), nil
	}
	var b strings.Builder
	for _, n := range notes {
		fmt.Fprintf(&b, "%s\t%s\t%s\n", n.ID, n.Subject, n.Title)
	}
	return mcp.NewToolResultText(strings.TrimSuffix(b.String(), "\n")), nil
}

func (s *Server) listSubjects(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	subjects, err := s.svc.ListSubjects(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(subjects)
}

func (s *Server) getNoteContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(NoteFormatContract), nil
}

func (s *Server) readNoteFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      noteFormatURI,
			MIMEType: "text/markdown",
			Text:     NoteFormatContract,
		},
	}, nil
}
