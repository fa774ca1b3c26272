// Package assembly serialises an ordered list of page assets into a single
// PDF byte stream, optionally recompressing image-origin pages.
package assembly

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/sirupsen/logrus"

	"github.com/sammcj/wrenchpdf/internal/pages"

	// Decoders for the remaining supported upload formats; JPEG and PNG
	// register via the encoding imports above.
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var (
	// ErrEmptyDocument reports an assembly attempt with zero pages.
	ErrEmptyDocument = errors.New("document has no pages")

	// ErrImageProcessing reports a source image that cannot be decoded or
	// re-encoded for embedding.
	ErrImageProcessing = errors.New("unable to process image")
)

// Options controls image-origin page handling. Quality is a JPEG quality in
// 0-100 and only takes effect when Compress is set; PDF-origin pages are
// always copied verbatim from their source.
type Options struct {
	Compress bool
	Quality  int
}

// Assemble renders the ordered asset list into a complete PDF byte stream
// whose page order exactly matches the input. Consecutive pages drawn from
// the same source PDF are extracted with a single read of that document.
// All intermediate artifacts live in a per-call temp directory that is
// removed on every exit path.
func Assemble(assets []*pages.Asset, opts Options, logger *logrus.Logger) ([]byte, error) {
	if len(assets) == 0 {
		return nil, ErrEmptyDocument
	}

	workDir, err := os.MkdirTemp("", "wrenchpdf-assemble-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create assembly work directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			logger.WithError(err).Debug("Failed to clean up assembly work directory")
		}
	}()

	conf := model.NewDefaultConfiguration()

	// Each part is a PDF contributing its pages, in order, to the final
	// document. Runs of pages from one source collapse into one part; the
	// cache reuses a part when an identical run repeats.
	var parts []string
	partCache := make(map[string]string)

	for i := 0; i < len(assets); {
		asset := assets[i]
		if asset.Kind == pages.KindPDFPage {
			run := pdfRun(assets, i)
			part, err := extractRun(asset.SourcePath, run, workDir, len(parts), partCache, conf)
			if err != nil {
				return nil, err
			}
			parts = append(parts, part)
			i += len(run)
			continue
		}

		part := filepath.Join(workDir, fmt.Sprintf("part_%03d.pdf", len(parts)))
		if err := imageToPDF(asset, part, opts, workDir, conf); err != nil {
			return nil, err
		}
		parts = append(parts, part)
		i++
	}

	outFile := filepath.Join(workDir, "merged.pdf")
	if len(parts) == 1 {
		outFile = parts[0]
	} else if err := api.MergeCreateFile(parts, outFile, false, conf); err != nil {
		return nil, fmt.Errorf("failed to merge document parts: %w", err)
	}

	data, err := os.ReadFile(outFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read assembled document: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"pages": len(assets),
		"bytes": len(data),
	}).Debug("Assembled PDF")

	return data, nil
}

// pdfRun collects the 1-based page numbers of the maximal run of
// consecutive assets starting at index i that share the asset's source PDF.
func pdfRun(assets []*pages.Asset, i int) []string {
	src := assets[i].SourcePath
	var run []string
	for ; i < len(assets); i++ {
		if assets[i].Kind != pages.KindPDFPage || assets[i].SourcePath != src {
			break
		}
		run = append(run, strconv.Itoa(assets[i].PageIndex+1))
	}
	return run
}

// extractRun produces a PDF holding the given pages of src, in order.
// Identical runs are served from the cache instead of re-reading src; the
// cached part is copied so the merge input list never repeats a path.
func extractRun(src string, pageNumbers []string, workDir string, partIndex int, cache map[string]string, conf *model.Configuration) (string, error) {
	key := src + "|" + strings.Join(pageNumbers, ",")
	part := filepath.Join(workDir, fmt.Sprintf("part_%03d.pdf", partIndex))

	if cached, ok := cache[key]; ok {
		data, err := os.ReadFile(cached)
		if err != nil {
			return "", fmt.Errorf("failed to reuse extracted pages: %w", err)
		}
		if err := os.WriteFile(part, data, 0600); err != nil {
			return "", fmt.Errorf("failed to reuse extracted pages: %w", err)
		}
		return part, nil
	}

	if err := api.CollectFile(src, part, pageNumbers, conf); err != nil {
		return "", fmt.Errorf("%w: %q: %v", pages.ErrDocumentOpen, filepath.Base(src), err)
	}
	cache[key] = part
	return part, nil
}

// imageToPDF converts one image asset into a single-page PDF at outFile.
// The image is flattened onto a white background in an 8-bit RGB model and,
// when compression is requested, re-encoded as JPEG at the given quality;
// otherwise it is embedded losslessly.
func imageToPDF(asset *pages.Asset, outFile string, opts Options, workDir string, conf *model.Configuration) error {
	rgb, err := loadRGB(asset.SourcePath)
	if err != nil {
		return err
	}

	var encoded string
	if opts.Compress {
		encoded = strings.TrimSuffix(outFile, ".pdf") + ".jpg"
		if err := encodeJPEG(encoded, rgb, opts.Quality); err != nil {
			return fmt.Errorf("%w: %q: %v", ErrImageProcessing, filepath.Base(asset.SourcePath), err)
		}
	} else {
		encoded = strings.TrimSuffix(outFile, ".pdf") + ".png"
		if err := encodePNG(encoded, rgb); err != nil {
			return fmt.Errorf("%w: %q: %v", ErrImageProcessing, filepath.Base(asset.SourcePath), err)
		}
	}

	imp := pdfcpu.DefaultImportConfig()
	if err := api.ImportImagesFile([]string{encoded}, outFile, imp, conf); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrImageProcessing, filepath.Base(asset.SourcePath), err)
	}
	return nil
}

// loadRGB decodes an image file and flattens it over white into RGBA,
// discarding any alpha channel the source carried.
func loadRGB(path string) (*image.RGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrImageProcessing, filepath.Base(path), err)
	}
	defer func() { _ = f.Close() }()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrImageProcessing, filepath.Base(path), err)
	}

	bounds := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), src, bounds.Min, draw.Over)
	return dst, nil
}

func encodeJPEG(path string, img image.Image, quality int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: quality}); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func encodePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
