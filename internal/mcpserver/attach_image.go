package mcpserver

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/notegraph/internal/storage"
)

const maxImageSize = 10 << 20

var (
	mimeToExt = map[string]string{
		"image/png":     ".png",
		"image/jpeg":    ".jpg",
		"image/gif":     ".gif",
		"image/webp":    ".webp",
		"image/svg+xml": ".svg",
	}

	safeFilenameRe = regexp.MustCompile(`[^a-zA-Z0-9._-]`)
)

type attachResult struct {
	URL           string `json:"url"`
	MarkdownImage string `json:"markdownImage"`
}

func (s *Server) attachImage(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	uri, err := req.RequireString("data_uri")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	data, ext, err := decodeDataURI(uri)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(data) > maxImageSize {
		return mcp.NewToolResultError(fmt.Sprintf("image too large: %d bytes (max %d)", len(data), maxImageSize)), nil
	}
	if err := validateMagicBytes(data, ext); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	name := imageFilename(req.GetString("filename", ""), ext)
	rel := path.Join(storage.AttachDir, name)
	if _, readErr := s.store.Read(rel); readErr == nil {
		return mcp.NewToolResultError(fmt.Sprintf("file already exists: %s", name)), nil
	}
	if err := s.store.Write(rel, data); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to save image: %v", err)), nil
	}

	url := "/attachments/" + name
	return jsonResult(attachResult{
		URL:           url,
		MarkdownImage: fmt.Sprintf("![%s](%s)", name, url),
	})
}

// decodeDataURI parses a data:<mediatype>;base64,<data> URI and returns the
// payload with the file extension of its media type.
func decodeDataURI(uri string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return nil, "", fmt.Errorf("expected a data: URI")
	}
	meta, encoded, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", fmt.Errorf("invalid data URI: missing comma separator")
	}
	mime, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return nil, "", fmt.Errorf("only base64 data URIs are supported")
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, "", fmt.Errorf("invalid base64 data: %w", err)
		}
	}

	ext := mimeToExt[strings.Split(mime, ";")[0]]
	if ext == "" {
		return nil, "", fmt.Errorf("unsupported image type: %s", mime)
	}
	return data, ext, nil
}

// imageFilename sanitizes the requested name and forces the detected
// extension. An empty request yields a random name.
func imageFilename(requested, ext string) string {
	base := strings.TrimSuffix(filepath.Base(requested), filepath.Ext(requested))
	base = safeFilenameRe.ReplaceAllString(base, "_")
	base = strings.TrimLeft(base, "._")
	if base == "" {
		base = uuid.NewString()
	}
	return base + ext
}

// validateMagicBytes verifies the content matches the declared type.
func validateMagicBytes(data []byte, ext string) error {
	if ext == ".svg" {
		prefix := data[:min(len(data), 1024)]
		if !bytes.Contains(prefix, []byte("<svg")) {
			return fmt.Errorf("content does not appear to be a valid SVG (missing <svg tag)")
		}
		return nil
	}
	detected := http.DetectContentType(data)
	if mimeToExt[strings.Split(detected, ";")[0]] != ext {
		return fmt.Errorf("content does not match type %s (detected: %s)", ext, detected)
	}
	return nil
}
