// Package pdfcreator exposes the PDF-building session over MCP: assemble a
// document from uploaded images and pages of existing PDFs, reorder the
// pages, optionally compress image content, and hand back the merged file.
package pdfcreator

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sirupsen/logrus"

	"github.com/sammcj/wrenchpdf/internal/config"
	"github.com/sammcj/wrenchpdf/internal/pages"
	"github.com/sammcj/wrenchpdf/internal/registry"
	"github.com/sammcj/wrenchpdf/internal/session"
	"github.com/sammcj/wrenchpdf/internal/tempfiles"
	"github.com/sammcj/wrenchpdf/internal/tools"
)

const defaultSessionID = "default"

// sessionKeyPrefix namespaces session entries in the shared tool cache.
const sessionKeyPrefix = "pdfcreator:session:"

// PDFCreatorTool implements the tools.Tool interface for interactive PDF
// assembly.
type PDFCreatorTool struct {
	initOnce sync.Once
	registry *tempfiles.Registry
	config   *config.Config

	// sessionMu guards sessions, the live sessions this process created.
	// Tracked so shutdown can release their temp files.
	sessionMu sync.Mutex
	sessions  map[string]*session.Session
}

// init registers the tool with the registry
func init() {
	registry.Register(&PDFCreatorTool{})
}

// Definition returns the tool's definition for MCP registration
func (t *PDFCreatorTool) Definition() mcp.Tool {
	return mcp.NewTool(
		"pdf_creator",
		mcp.WithDescription(`Build a PDF from images and pages of existing PDFs. Send the full ordered file list with update_pages on every change (add, remove, reorder - previously ingested pages are recognised by their preview_path and never re-rendered), then create_pdf to produce the merged document.`),
		mcp.WithString("action",
			mcp.Required(),
			mcp.Description("Action to perform: update_pages, create_pdf, status, or clear"),
		),
		mcp.WithString("session",
			mcp.Description("Session identifier (default: 'default'). Each session has its own page list and temp files"),
			mcp.DefaultString(defaultSessionID),
		),
		mcp.WithArray("files",
			mcp.Description("For update_pages: the complete ordered list of files. Each entry is an absolute path string, or an object {path, name} to set a display name. For already-ingested pages pass their preview_path"),
			mcp.Items(map[string]any{}),
		),
		mcp.WithString("filename",
			mcp.Description("For create_pdf: output filename hint (sanitised, '.pdf' enforced, default 'output.pdf')"),
		),
		mcp.WithString("compression",
			mcp.Description("For create_pdf: 'No compression', 'Medium' (JPEG quality 85, default), or 'Aggressive' (quality 70). Affects image pages only; PDF pages are copied verbatim"),
		),
	)
}

// Execute dispatches the requested session action
func (t *PDFCreatorTool) Execute(ctx context.Context, logger *logrus.Logger, cache *sync.Map, args map[string]any) (*mcp.CallToolResult, error) {
	if !tools.IsToolEnabled("pdf_creator") {
		return nil, fmt.Errorf("pdf_creator tool is not enabled. Set ENABLE_ADDITIONAL_TOOLS environment variable to include 'pdf_creator'")
	}

	t.initOnce.Do(func() {
		t.config = config.Load(logger)
		t.registry = tempfiles.NewRegistryAt(tempfiles.DefaultPath(), t.config.TempTTL(), logger)
		t.sessions = make(map[string]*session.Session)
		registry.RegisterCleanup(t.releaseSessions)
	})

	action, ok := args["action"].(string)
	if !ok || action == "" {
		return nil, fmt.Errorf("missing required parameter: action")
	}

	sessionID := defaultSessionID
	if id, ok := args["session"].(string); ok && id != "" {
		sessionID = id
	}

	sess := t.sessionFor(cache, sessionID, logger)

	logger.WithFields(logrus.Fields{
		"action":  action,
		"session": sessionID,
	}).Debug("Executing pdf_creator tool")

	switch action {
	case "update_pages":
		return t.handleUpdatePages(logger, sess, sessionID, args)
	case "create_pdf":
		return t.handleCreatePDF(sess, sessionID, args)
	case "status":
		return t.handleStatus(sess, sessionID)
	case "clear":
		return t.handleClear(sess, sessionID)
	default:
		return nil, fmt.Errorf("unknown action: %s (expected update_pages, create_pdf, status, or clear)", action)
	}
}

// sessionFor returns the live session for id, creating it on first use.
// Sessions live in the shared tool cache so every transport sees the same
// state; state isolation between sessions is per entry.
func (t *PDFCreatorTool) sessionFor(cache *sync.Map, id string, logger *logrus.Logger) *session.Session {
	key := sessionKeyPrefix + id
	if existing, ok := cache.Load(key); ok {
		if sess, ok := existing.(*session.Session); ok {
			return sess
		}
	}
	sess := session.New(t.registry, t.config, logger)
	actual, _ := cache.LoadOrStore(key, sess)
	live := actual.(*session.Session)

	t.sessionMu.Lock()
	t.sessions[id] = live
	t.sessionMu.Unlock()

	return live
}

// releaseSessions clears every session this process created. Registered as a
// shutdown hook so process termination, not just an explicit clear action,
// releases previews and pending outputs.
func (t *PDFCreatorTool) releaseSessions() {
	t.sessionMu.Lock()
	live := make([]*session.Session, 0, len(t.sessions))
	for _, sess := range t.sessions {
		live = append(live, sess)
	}
	t.sessions = make(map[string]*session.Session)
	t.sessionMu.Unlock()

	for _, sess := range live {
		sess.Clear()
	}
}

// handleUpdatePages reconciles the submitted file list against the session
func (t *PDFCreatorTool) handleUpdatePages(logger *logrus.Logger, sess *session.Session, sessionID string, args map[string]any) (*mcp.CallToolResult, error) {
	tokens, err := parseUploadTokens(args["files"])
	if err != nil {
		return nil, err
	}

	result, err := sess.Reconcile(tokens)
	if err != nil {
		// The session still holds the last known-good page list; report
		// the failure as a user-facing status, not a crash.
		logger.WithError(err).Debug("Reconciliation rejected")
		return nil, err
	}

	resp := pagesResponse{
		Session:      sessionID,
		Pages:        pageInfos(sess),
		RemovedPages: len(result.Removed),
		Hints:        "Resubmit the full list in the desired order to reorder pages. Use create_pdf when ready.",
	}
	return newToolResultJSON(resp)
}

// handleCreatePDF assembles the session's pages into the output PDF
func (t *PDFCreatorTool) handleCreatePDF(sess *session.Session, sessionID string, args map[string]any) (*mcp.CallToolResult, error) {
	nameHint, _ := args["filename"].(string)
	if nameHint == "" {
		nameHint = session.DefaultFilenameFor(sess.Assets())
	}
	preset, _ := args["compression"].(string)
	if preset == "" {
		preset = t.config.DefaultCompression
	}

	outputPath, err := sess.Convert(nameHint, preset)
	if err != nil {
		return nil, err
	}

	resp := convertResponse{
		Session:     sessionID,
		OutputPath:  outputPath,
		Filename:    session.SanitizeFilename(nameHint),
		Pages:       len(sess.Assets()),
		Compression: preset,
	}
	return newToolResultJSON(resp)
}

// handleStatus reports the current page list and pending output
func (t *PDFCreatorTool) handleStatus(sess *session.Session, sessionID string) (*mcp.CallToolResult, error) {
	resp := pagesResponse{
		Session:    sessionID,
		Pages:      pageInfos(sess),
		OutputPath: sess.OutputPath(),
	}
	return newToolResultJSON(resp)
}

// handleClear releases every temp file the session created
func (t *PDFCreatorTool) handleClear(sess *session.Session, sessionID string) (*mcp.CallToolResult, error) {
	sess.Clear()
	return newToolResultJSON(clearResponse{Session: sessionID, Cleared: true})
}

// parseUploadTokens normalises the heterogeneous files payload into upload
// tokens at the boundary; nothing downstream branches on payload shape.
func parseUploadTokens(raw any) ([]pages.UploadToken, error) {
	if raw == nil {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("files must be an array of paths or {path, name} objects")
	}

	tokens := make([]pages.UploadToken, 0, len(list))
	for i, entry := range list {
		switch v := entry.(type) {
		case string:
			tokens = append(tokens, pages.UploadToken{Path: v, DisplayName: filepath.Base(v)})
		case map[string]any:
			path, _ := v["path"].(string)
			name, _ := v["name"].(string)
			if name == "" && path != "" {
				name = filepath.Base(path)
			}
			tokens = append(tokens, pages.UploadToken{Path: path, DisplayName: name})
		default:
			return nil, fmt.Errorf("files entry %d must be a string or an object with a 'path' field", i)
		}
	}
	return tokens, nil
}

// pageInfos renders the session's asset list for a response payload.
func pageInfos(sess *session.Session) []pageInfo {
	assets := sess.Assets()
	infos := make([]pageInfo, 0, len(assets))
	for i, asset := range assets {
		infos = append(infos, pageInfo{
			Position:    i + 1,
			ID:          asset.ID,
			Kind:        string(asset.Kind),
			DisplayName: asset.DisplayName,
			PreviewPath: asset.PreviewPath,
			SourcePath:  asset.SourcePath,
			PageIndex:   asset.PageIndex,
		})
	}
	return infos
}

// newToolResultJSON creates a new tool result with JSON content
func newToolResultJSON(data any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

// ProvideExtendedInfo provides detailed usage information for the tool
func (t *PDFCreatorTool) ProvideExtendedInfo() *tools.ExtendedHelp {
	return &tools.ExtendedHelp{
		Examples: []tools.ToolExample{
			{
				Description: "Start a document from two images and a PDF",
				Arguments: map[string]any{
					"action": "update_pages",
					"files":  []any{"/Users/username/scans/front.jpg", "/Users/username/scans/back.jpg", "/Users/username/docs/contract.pdf"},
				},
				ExpectedResult: "Returns one page entry per image plus one per PDF page, each with a preview_path to use in later calls",
			},
			{
				Description: "Move the last page first (resubmit preview paths in the new order)",
				Arguments: map[string]any{
					"action": "update_pages",
					"files":  []any{"/tmp/contract_p3_x.png", "/Users/username/scans/front.jpg", "/Users/username/scans/back.jpg"},
				},
				ExpectedResult: "Pages are reordered without re-rendering; identities and previews are preserved",
			},
			{
				Description: "Create the merged PDF with aggressive image compression",
				Arguments: map[string]any{
					"action":      "create_pdf",
					"filename":    "Signed Contract",
					"compression": "Aggressive",
				},
				ExpectedResult: "Writes the merged document to a temp file and returns its path; image pages are recompressed at JPEG quality 70, PDF pages are untouched",
			},
			{
				Description: "Discard the session and its temp files",
				Arguments: map[string]any{
					"action": "clear",
				},
				ExpectedResult: "Deletes every preview and output file the session created",
			},
		},
		CommonPatterns: []string{
			"Always send the complete ordered file list to update_pages - it replaces the previous order",
			"Reuse preview_path values from earlier responses to keep or move existing pages cheaply",
			"Call clear when the user abandons a document so temp previews are removed immediately",
		},
		Troubleshooting: []tools.TroubleshootingTip{
			{
				Problem:  "Unsupported file type error",
				Solution: "Only jpg, jpeg, png, bmp, tif, tiff, webp and pdf files are accepted. The session keeps its previous page list when an update is rejected.",
			},
			{
				Problem:  "Unable to open document error for a PDF",
				Solution: "The PDF could not be parsed or rendered. Check it opens in a viewer and is not encrypted.",
			},
			{
				Problem:  "Output PDF path from an earlier create_pdf no longer exists",
				Solution: "Generated outputs are invalidated whenever the page list changes and swept after their TTL. Re-run create_pdf to produce a fresh file.",
			},
		},
		ParameterDetails: map[string]string{
			"action":      "update_pages (reconcile the page list), create_pdf (assemble and persist), status (inspect), clear (reset the session)",
			"files":       "Complete ordered list for update_pages. New paths are ingested (a PDF expands to one entry per page); known preview paths are moved, not re-ingested",
			"filename":    "Hint for the output name. Characters outside [A-Za-z0-9_.-] are replaced and a .pdf suffix is enforced",
			"compression": "Image-page recompression preset. Unrecognised values fall back to Medium",
		},
		WhenToUse:    "Use to merge images and existing PDF pages into one document with interactive reordering, e.g. assembling scans, combining reports, or extracting and recombining pages.",
		WhenNotToUse: "Not a general PDF editor: no text or annotation editing, rotation, or cropping. For text extraction from PDFs use a dedicated extraction tool.",
	}
}
