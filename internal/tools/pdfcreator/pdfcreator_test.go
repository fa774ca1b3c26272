package pdfcreator

import (
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sammcj/wrenchpdf/internal/registry"
)

func newTestTool(t *testing.T) (*PDFCreatorTool, *sync.Map, *logrus.Logger) {
	t.Helper()
	t.Setenv("ENABLE_ADDITIONAL_TOOLS", "pdf_creator")
	t.Setenv("HOME", t.TempDir())
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return &PDFCreatorTool{}, &sync.Map{}, logger
}

func writeTestPNG(t *testing.T, dir, name string) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 30, 40))
	for y := 0; y < 40; y++ {
		for x := 0; x < 30; x++ {
			img.Set(x, y, color.White)
		}
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

func resultJSON(t *testing.T, result *mcp.CallToolResult, out any) {
	t.Helper()
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)
	textContent, ok := mcp.AsTextContent(result.Content[0])
	require.True(t, ok, "expected text content")
	require.NoError(t, json.Unmarshal([]byte(textContent.Text), out))
}

func TestDefinition(t *testing.T) {
	tool := &PDFCreatorTool{}
	def := tool.Definition()

	assert.Equal(t, "pdf_creator", def.Name)
	assert.NotEmpty(t, def.Description)
	assert.Contains(t, def.InputSchema.Properties, "action")
	assert.Contains(t, def.InputSchema.Properties, "files")
	assert.Contains(t, def.InputSchema.Properties, "filename")
	assert.Contains(t, def.InputSchema.Properties, "compression")
	assert.Contains(t, def.InputSchema.Required, "action")
}

func TestExecuteRequiresEnablement(t *testing.T) {
	t.Setenv("ENABLE_ADDITIONAL_TOOLS", "")
	tool := &PDFCreatorTool{}
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	_, err := tool.Execute(context.Background(), logger, &sync.Map{}, map[string]any{
		"action": "status",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not enabled")
}

func TestExecuteRequiresAction(t *testing.T) {
	tool, cache, logger := newTestTool(t)

	_, err := tool.Execute(context.Background(), logger, cache, map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "action")
}

func TestExecuteRejectsUnknownAction(t *testing.T) {
	tool, cache, logger := newTestTool(t)

	_, err := tool.Execute(context.Background(), logger, cache, map[string]any{
		"action": "explode",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown action")
}

func TestUpdatePagesAndStatus(t *testing.T) {
	tool, cache, logger := newTestTool(t)
	dir := t.TempDir()
	a := writeTestPNG(t, dir, "a.png")
	b := writeTestPNG(t, dir, "b.png")

	result, err := tool.Execute(context.Background(), logger, cache, map[string]any{
		"action": "update_pages",
		"files":  []any{a, map[string]any{"path": b, "name": "Back cover"}},
	})
	require.NoError(t, err)

	var resp pagesResponse
	resultJSON(t, result, &resp)
	assert.Equal(t, "default", resp.Session)
	require.Len(t, resp.Pages, 2)
	assert.Equal(t, 1, resp.Pages[0].Position)
	assert.Equal(t, "a.png", resp.Pages[0].DisplayName)
	assert.Equal(t, "Back cover", resp.Pages[1].DisplayName)
	assert.Equal(t, "image", resp.Pages[0].Kind)

	status, err := tool.Execute(context.Background(), logger, cache, map[string]any{
		"action": "status",
	})
	require.NoError(t, err)

	var statusResp pagesResponse
	resultJSON(t, status, &statusResp)
	require.Len(t, statusResp.Pages, 2)
	assert.Empty(t, statusResp.OutputPath)
}

func TestUpdatePagesReorderByPreviewPath(t *testing.T) {
	tool, cache, logger := newTestTool(t)
	dir := t.TempDir()
	a := writeTestPNG(t, dir, "a.png")
	b := writeTestPNG(t, dir, "b.png")

	first, err := tool.Execute(context.Background(), logger, cache, map[string]any{
		"action": "update_pages",
		"files":  []any{a, b},
	})
	require.NoError(t, err)
	var firstResp pagesResponse
	resultJSON(t, first, &firstResp)

	second, err := tool.Execute(context.Background(), logger, cache, map[string]any{
		"action": "update_pages",
		"files":  []any{firstResp.Pages[1].PreviewPath, firstResp.Pages[0].PreviewPath},
	})
	require.NoError(t, err)

	var secondResp pagesResponse
	resultJSON(t, second, &secondResp)
	require.Len(t, secondResp.Pages, 2)
	assert.Equal(t, firstResp.Pages[1].ID, secondResp.Pages[0].ID)
	assert.Equal(t, firstResp.Pages[0].ID, secondResp.Pages[1].ID)
}

func TestUpdatePagesRejectsUnsupportedFile(t *testing.T) {
	tool, cache, logger := newTestTool(t)
	dir := t.TempDir()
	junk := filepath.Join(dir, "junk.txt")
	require.NoError(t, os.WriteFile(junk, []byte("x"), 0600))

	_, err := tool.Execute(context.Background(), logger, cache, map[string]any{
		"action": "update_pages",
		"files":  []any{junk},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file type")
}

func TestUpdatePagesRejectsMalformedFilesPayload(t *testing.T) {
	tool, cache, logger := newTestTool(t)

	_, err := tool.Execute(context.Background(), logger, cache, map[string]any{
		"action": "update_pages",
		"files":  "not-an-array",
	})
	require.Error(t, err)

	_, err = tool.Execute(context.Background(), logger, cache, map[string]any{
		"action": "update_pages",
		"files":  []any{42},
	})
	require.Error(t, err)
}

func TestCreatePDFAndClear(t *testing.T) {
	tool, cache, logger := newTestTool(t)
	dir := t.TempDir()
	a := writeTestPNG(t, dir, "a.png")

	_, err := tool.Execute(context.Background(), logger, cache, map[string]any{
		"action": "update_pages",
		"files":  []any{a},
	})
	require.NoError(t, err)

	created, err := tool.Execute(context.Background(), logger, cache, map[string]any{
		"action":      "create_pdf",
		"filename":    "My Report!!",
		"compression": "No compression",
	})
	require.NoError(t, err)

	var createResp convertResponse
	resultJSON(t, created, &createResp)
	assert.Equal(t, "My_Report.pdf", createResp.Filename)
	assert.Equal(t, 1, createResp.Pages)
	assert.Equal(t, "No compression", createResp.Compression)
	require.FileExists(t, createResp.OutputPath)

	cleared, err := tool.Execute(context.Background(), logger, cache, map[string]any{
		"action": "clear",
	})
	require.NoError(t, err)

	var clearResp clearResponse
	resultJSON(t, cleared, &clearResp)
	assert.True(t, clearResp.Cleared)

	_, statErr := os.Stat(createResp.OutputPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestShutdownReleasesLiveSessions(t *testing.T) {
	tool, cache, logger := newTestTool(t)
	dir := t.TempDir()
	a := writeTestPNG(t, dir, "a.png")

	_, err := tool.Execute(context.Background(), logger, cache, map[string]any{
		"action": "update_pages",
		"files":  []any{a},
	})
	require.NoError(t, err)

	created, err := tool.Execute(context.Background(), logger, cache, map[string]any{
		"action": "create_pdf",
	})
	require.NoError(t, err)

	var createResp convertResponse
	resultJSON(t, created, &createResp)
	require.FileExists(t, createResp.OutputPath)

	// Process shutdown runs the registered cleanup hooks
	registry.RunCleanups()

	_, statErr := os.Stat(createResp.OutputPath)
	assert.True(t, os.IsNotExist(statErr), "pending output is released at shutdown")

	status, err := tool.Execute(context.Background(), logger, cache, map[string]any{
		"action": "status",
	})
	require.NoError(t, err)

	var statusResp pagesResponse
	resultJSON(t, status, &statusResp)
	assert.Empty(t, statusResp.Pages)
	assert.Empty(t, statusResp.OutputPath)
}

func TestCreatePDFEmptySessionFails(t *testing.T) {
	tool, cache, logger := newTestTool(t)

	_, err := tool.Execute(context.Background(), logger, cache, map[string]any{
		"action": "create_pdf",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no pages")
}

func TestSessionsAreIsolated(t *testing.T) {
	tool, cache, logger := newTestTool(t)
	dir := t.TempDir()
	a := writeTestPNG(t, dir, "a.png")

	_, err := tool.Execute(context.Background(), logger, cache, map[string]any{
		"action":  "update_pages",
		"session": "alpha",
		"files":   []any{a},
	})
	require.NoError(t, err)

	status, err := tool.Execute(context.Background(), logger, cache, map[string]any{
		"action":  "status",
		"session": "beta",
	})
	require.NoError(t, err)

	var resp pagesResponse
	resultJSON(t, status, &resp)
	assert.Equal(t, "beta", resp.Session)
	assert.Empty(t, resp.Pages)
}

func TestParseUploadTokens(t *testing.T) {
	tokens, err := parseUploadTokens(nil)
	require.NoError(t, err)
	assert.Empty(t, tokens)

	tokens, err = parseUploadTokens([]any{
		"/tmp/a.png",
		map[string]any{"path": "/tmp/b.png", "name": "Back"},
		map[string]any{"path": "/tmp/c.png"},
	})
	require.NoError(t, err)
	require.Len(t, tokens, 3)
	assert.Equal(t, "a.png", tokens[0].DisplayName)
	assert.Equal(t, "Back", tokens[1].DisplayName)
	assert.Equal(t, "c.png", tokens[2].DisplayName)
}

func TestProvideExtendedInfo(t *testing.T) {
	tool := &PDFCreatorTool{}
	info := tool.ProvideExtendedInfo()

	require.NotNil(t, info)
	assert.NotEmpty(t, info.Examples)
	assert.NotEmpty(t, info.Troubleshooting)
	assert.NotEmpty(t, info.WhenToUse)
}
