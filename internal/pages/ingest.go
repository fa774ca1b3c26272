package pages

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"github.com/gen2brain/go-fitz"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sammcj/wrenchpdf/internal/tempfiles"
)

// DefaultPreviewDPI renders PDF previews at twice the PDF baseline of 72
// DPI, matching the 2.0x upscale used for thumbnails.
const DefaultPreviewDPI = 144

// Ingestor converts uploaded files into page assets. PDF previews it
// generates are registered with the session's tracker so they are cleaned
// up deterministically.
type Ingestor struct {
	Tracker    *tempfiles.Tracker
	Logger     *logrus.Logger
	PreviewDPI float64
}

// NewIngestor creates an ingestor with the default preview resolution.
func NewIngestor(tracker *tempfiles.Tracker, logger *logrus.Logger) *Ingestor {
	return &Ingestor{
		Tracker:    tracker,
		Logger:     logger,
		PreviewDPI: DefaultPreviewDPI,
	}
}

func (ing *Ingestor) previewDPI() float64 {
	if ing.PreviewDPI > 0 {
		return ing.PreviewDPI
	}
	return DefaultPreviewDPI
}

// Image wraps a raster image file into a single page asset. The source file
// doubles as its own preview, so nothing is generated or tracked.
func (ing *Ingestor) Image(path, displayName string) (*Asset, error) {
	if Classify(path) != ClassImage {
		return nil, fmt.Errorf("%w: %q is not a supported image", ErrUnsupportedFileType, filepath.Base(path))
	}
	if displayName == "" {
		displayName = filepath.Base(path)
	}
	return &Asset{
		ID:          uuid.New().String(),
		Kind:        KindImage,
		SourcePath:  path,
		DisplayName: displayName,
		PreviewPath: path,
		PageIndex:   0,
		TempPreview: false,
	}, nil
}

// PDF expands a PDF file into one asset per page, rendering each page to a
// tracked PNG preview. A failure rendering page k releases the previews
// already generated for pages 0..k-1 and closes the document before
// returning; partial results are never handed back.
func (ing *Ingestor) PDF(path string) ([]*Asset, error) {
	if Classify(path) != ClassPDF {
		return nil, fmt.Errorf("%w: %q is not a PDF", ErrUnsupportedFileType, filepath.Base(path))
	}

	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrDocumentOpen, filepath.Base(path), err)
	}
	defer func() {
		if err := doc.Close(); err != nil {
			ing.Logger.WithError(err).WithField("path", path).Debug("Failed to close PDF document")
		}
	}()

	pageCount := doc.NumPage()
	ing.Logger.WithFields(logrus.Fields{
		"path":  path,
		"pages": pageCount,
	}).Debug("Ingesting PDF")

	assets := make([]*Asset, 0, pageCount)
	cleanup := func() {
		for _, a := range assets {
			if a.TempPreview {
				ing.Tracker.Release(a.PreviewPath, true)
			}
		}
	}

	name := stem(path)
	for pageIndex := 0; pageIndex < pageCount; pageIndex++ {
		img, err := doc.ImageDPI(pageIndex, ing.previewDPI())
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("%w: %q page %d: %v", ErrDocumentOpen, filepath.Base(path), pageIndex+1, err)
		}

		previewPath, err := ing.writePreview(name, pageIndex, img)
		if err != nil {
			cleanup()
			return nil, err
		}
		ing.Tracker.Track(previewPath)

		assets = append(assets, &Asset{
			ID:          uuid.New().String(),
			Kind:        KindPDFPage,
			SourcePath:  path,
			DisplayName: fmt.Sprintf("%s — Page %d", name, pageIndex+1),
			PreviewPath: previewPath,
			PageIndex:   pageIndex,
			TempPreview: true,
		})
	}

	return assets, nil
}

// writePreview persists a rendered page as a PNG temp file and returns its
// path. The file is removed again if encoding fails partway.
func (ing *Ingestor) writePreview(name string, pageIndex int, img image.Image) (string, error) {
	tmp, err := os.CreateTemp("", fmt.Sprintf("%s_p%d_*.png", name, pageIndex+1))
	if err != nil {
		return "", fmt.Errorf("failed to create preview file: %w", err)
	}

	if err := png.Encode(tmp, img); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to encode preview for page %d: %w", pageIndex+1, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write preview for page %d: %w", pageIndex+1, err)
	}
	return tmp.Name(), nil
}
