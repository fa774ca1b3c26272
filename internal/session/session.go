// Package session holds the per-session page list and pending output, and
// drives reconciliation, conversion and cleanup over it. One session is
// driven by one interactive actor at a time; concurrent sessions share only
// the temp file registry.
package session

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/sammcj/wrenchpdf/internal/assembly"
	"github.com/sammcj/wrenchpdf/internal/config"
	"github.com/sammcj/wrenchpdf/internal/pages"
	"github.com/sammcj/wrenchpdf/internal/tempfiles"
)

// Compression presets recognised by the surrounding surface.
const (
	PresetNone       = "No compression"
	PresetMedium     = "Medium"
	PresetAggressive = "Aggressive"

	qualityMedium     = 85
	qualityAggressive = 70
)

// ResolveCompression maps a preset name to assembly options. An
// unrecognised preset falls back to the medium default.
func ResolveCompression(preset string) assembly.Options {
	switch preset {
	case PresetNone:
		return assembly.Options{Compress: false, Quality: qualityMedium}
	case PresetAggressive:
		return assembly.Options{Compress: true, Quality: qualityAggressive}
	case PresetMedium:
		return assembly.Options{Compress: true, Quality: qualityMedium}
	default:
		return assembly.Options{Compress: true, Quality: qualityMedium}
	}
}

// Session is the state of one interactive PDF-building session: the ordered
// live assets, the most recently generated output (if any), and the tracker
// owning every temp file the session created.
type Session struct {
	logger   *logrus.Logger
	tracker  *tempfiles.Tracker
	ingestor *pages.Ingestor

	assets     []*pages.Asset
	outputPath string
}

// New creates an empty session on top of the shared temp registry.
func New(registry *tempfiles.Registry, cfg *config.Config, logger *logrus.Logger) *Session {
	tracker := tempfiles.NewTracker(registry)
	ingestor := pages.NewIngestor(tracker, logger)
	if cfg != nil {
		ingestor.PreviewDPI = cfg.PreviewDPI
	}
	return &Session{
		logger:   logger,
		tracker:  tracker,
		ingestor: ingestor,
	}
}

// Assets returns the current ordered asset list.
func (s *Session) Assets() []*pages.Asset {
	return s.assets
}

// OutputPath returns the path of the most recently generated PDF, or "".
func (s *Session) OutputPath() string {
	return s.outputPath
}

// Tracker exposes the session's temp tracker.
func (s *Session) Tracker() *tempfiles.Tracker {
	return s.tracker
}

// Reconcile applies an edited token list to the session. On success,
// removed assets' generated previews are deleted and any pending output is
// invalidated. On failure the previous asset list stays authoritative and
// untouched.
func (s *Session) Reconcile(tokens []pages.UploadToken) (*pages.ReconcileResult, error) {
	result, err := s.ingestor.Reconcile(tokens, s.assets)
	if err != nil {
		return nil, err
	}

	for _, asset := range result.Removed {
		if asset.TempPreview {
			s.tracker.Release(asset.PreviewPath, true)
		}
	}

	s.assets = result.Assets
	s.ReleaseOutput()

	s.logger.WithFields(logrus.Fields{
		"pages":   len(result.Assets),
		"removed": len(result.Removed),
	}).Debug("Session reconciled")

	return result, nil
}

// Convert assembles the session's pages into a PDF, persists it to a
// tracked temp file and returns its path. A previously generated output is
// deleted first. The filename hint is sanitised into a safe name used as
// the temp file prefix.
func (s *Session) Convert(nameHint, preset string) (string, error) {
	s.ReleaseOutput()

	opts := ResolveCompression(preset)
	data, err := assembly.Assemble(s.assets, opts, s.logger)
	if err != nil {
		return "", err
	}

	name := SanitizeFilename(nameHint)
	// The sanitiser preserves case, so the suffix may be .PDF
	prefix := name[:len(name)-len(".pdf")]
	tmp, err := os.CreateTemp("", prefix+"_*.pdf")
	if err != nil {
		return "", fmt.Errorf("failed to create output file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write output file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write output file: %w", err)
	}

	s.tracker.Track(tmp.Name())
	s.outputPath = tmp.Name()

	s.logger.WithFields(logrus.Fields{
		"output": s.outputPath,
		"pages":  len(s.assets),
	}).Info("Created PDF")

	return s.outputPath, nil
}

// ReleaseOutput deletes the pending output file, if any. Called whenever
// the page list changes and after a completed download handoff.
func (s *Session) ReleaseOutput() {
	if s.outputPath == "" {
		return
	}
	s.tracker.Release(s.outputPath, true)
	s.outputPath = ""
}

// Clear releases every temp path the session created and resets it to the
// empty state. Safe to call repeatedly.
func (s *Session) Clear() {
	s.tracker.CleanupAll()
	s.assets = nil
	s.outputPath = ""
}

var disallowedRunes = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// SanitizeFilename reduces a user-supplied hint to a safe output filename:
// characters outside [A-Za-z0-9_.-] collapse to single underscores, leading
// and trailing dots and underscores are trimmed, an empty result falls back
// to "output", and a .pdf suffix is enforced.
func SanitizeFilename(raw string) string {
	cleaned := disallowedRunes.ReplaceAllString(raw, "_")
	cleaned = strings.Trim(cleaned, "._")
	if cleaned == "" {
		cleaned = "output"
	}
	if !strings.HasSuffix(strings.ToLower(cleaned), ".pdf") {
		cleaned += ".pdf"
	}
	return cleaned
}

// DefaultFilenameFor derives an output name hint from the first asset, the
// way the surface labels the download when the user gave no name.
func DefaultFilenameFor(assets []*pages.Asset) string {
	if len(assets) == 0 {
		return "output.pdf"
	}
	base := assets[0].DisplayName
	if base == "" {
		base = filepath.Base(assets[0].SourcePath)
	}
	return SanitizeFilename(base)
}
