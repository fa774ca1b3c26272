// Package pages turns uploaded files (raster images, multi-page PDFs) into
// a uniform, reorderable list of page assets and keeps that list in sync
// with user edits.
package pages

import (
	"errors"
	"path/filepath"
	"strings"
)

// Kind discriminates the origin of a page asset.
type Kind string

const (
	// KindImage is a page sourced from a single raster image file.
	KindImage Kind = "image"

	// KindPDFPage is a page sourced from one page of an existing PDF.
	KindPDFPage Kind = "pdf_page"
)

// Asset represents a single page destined for the output PDF. Kind,
// SourcePath and PageIndex are fixed at creation; only the asset's position
// in the session's ordered list changes afterwards.
type Asset struct {
	// ID is an opaque unique identifier, never reused.
	ID string `json:"id"`

	// Kind is the origin of the page.
	Kind Kind `json:"kind"`

	// SourcePath is the originating file: the image itself, or the source
	// PDF for a PDF page.
	SourcePath string `json:"source_path"`

	// DisplayName is the human-readable label shown in page listings and
	// used to build default output filenames.
	DisplayName string `json:"display_name"`

	// PreviewPath points at a raster usable for thumbnailing. For images
	// it equals SourcePath; for PDF pages it is a generated PNG.
	PreviewPath string `json:"preview_path"`

	// PageIndex is the zero-based page number within the source PDF.
	// Always 0 for images.
	PageIndex int `json:"page_index"`

	// TempPreview reports whether PreviewPath was generated by this
	// system and must be deleted when the asset is discarded.
	TempPreview bool `json:"temp_preview"`
}

// UploadToken is the normalised form of "a file reference" arriving from
// the surrounding surface. Heterogeneous upload payloads are converted into
// this shape at the boundary; the core never branches on payload shape.
type UploadToken struct {
	Path        string
	DisplayName string
}

// UIToken is a lightweight reference handed back to the surface for
// re-rendering its upload widget: the asset's stable preview path plus its
// label.
type UIToken struct {
	Path  string `json:"path"`
	Label string `json:"label"`
}

// Error kinds surfaced to the user. All are recoverable conditions shown as
// status messages, never process-fatal.
var (
	// ErrUnsupportedFileType reports a file whose extension is neither a
	// supported image nor a PDF.
	ErrUnsupportedFileType = errors.New("unsupported file type")

	// ErrDocumentOpen reports a source PDF that cannot be parsed or
	// rendered.
	ErrDocumentOpen = errors.New("unable to open document")
)

// FileClass is the coarse classification of an uploaded file.
type FileClass int

const (
	ClassUnsupported FileClass = iota
	ClassImage
	ClassPDF
)

var imageExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".bmp":  {},
	".tif":  {},
	".tiff": {},
	".webp": {},
}

// Classify buckets a path by its extension, case-insensitively.
func Classify(path string) FileClass {
	ext := strings.ToLower(filepath.Ext(path))
	if _, ok := imageExtensions[ext]; ok {
		return ClassImage
	}
	if ext == ".pdf" {
		return ClassPDF
	}
	return ClassUnsupported
}

// stem returns the file name without its extension.
func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
