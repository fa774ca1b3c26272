package session

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sammcj/wrenchpdf/internal/assembly"
	"github.com/sammcj/wrenchpdf/internal/config"
	"github.com/sammcj/wrenchpdf/internal/pages"
	"github.com/sammcj/wrenchpdf/internal/tempfiles"
)

func newTestSession(t *testing.T) *Session {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	registry := tempfiles.NewRegistryAt(filepath.Join(t.TempDir(), "registry.json"), time.Hour, logger)
	return New(registry, config.Default(), logger)
}

func writeTestPNG(t *testing.T, dir, name string) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 60))
	for y := 0; y < 60; y++ {
		for x := 0; x < 40; x++ {
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

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "plain name gains pdf suffix",
			input:    "report",
			expected: "report.pdf",
		},
		{
			name:     "existing suffix kept",
			input:    "report.pdf",
			expected: "report.pdf",
		},
		{
			name:     "uppercase suffix accepted",
			input:    "My Report!!.PDF",
			expected: "My_Report_.PDF",
		},
		{
			name:     "disallowed runs collapse to one underscore",
			input:    "a   b///c",
			expected: "a_b_c.pdf",
		},
		{
			name:     "leading and trailing dots and underscores trimmed",
			input:    "..._secret_...",
			expected: "secret.pdf",
		},
		{
			name:     "empty input falls back",
			input:    "",
			expected: "output.pdf",
		},
		{
			name:     "only junk falls back",
			input:    "!!!",
			expected: "output.pdf",
		},
		{
			name:     "path separators neutralised",
			input:    "../../etc/passwd",
			expected: "etc_passwd.pdf",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeFilename(tt.input))
		})
	}
}

func TestResolveCompression(t *testing.T) {
	tests := []struct {
		preset   string
		expected assembly.Options
	}{
		{PresetNone, assembly.Options{Compress: false, Quality: 85}},
		{PresetMedium, assembly.Options{Compress: true, Quality: 85}},
		{PresetAggressive, assembly.Options{Compress: true, Quality: 70}},
		{"", assembly.Options{Compress: true, Quality: 85}},
		{"Extreme", assembly.Options{Compress: true, Quality: 85}},
	}

	for _, tt := range tests {
		t.Run(tt.preset, func(t *testing.T) {
			assert.Equal(t, tt.expected, ResolveCompression(tt.preset))
		})
	}
}

func TestDefaultFilenameFor(t *testing.T) {
	assert.Equal(t, "output.pdf", DefaultFilenameFor(nil))

	assets := []*pages.Asset{{DisplayName: "holiday scan.jpg", SourcePath: "/tmp/holiday scan.jpg"}}
	assert.Equal(t, "holiday_scan.jpg.pdf", DefaultFilenameFor(assets))

	assets = []*pages.Asset{{SourcePath: "/tmp/first.png"}}
	assert.Equal(t, "first.png.pdf", DefaultFilenameFor(assets))
}

func TestSessionReconcileAndConvert(t *testing.T) {
	sess := newTestSession(t)
	dir := t.TempDir()
	a := writeTestPNG(t, dir, "a.png")
	b := writeTestPNG(t, dir, "b.png")

	result, err := sess.Reconcile([]pages.UploadToken{
		{Path: a, DisplayName: "a.png"},
		{Path: b, DisplayName: "b.png"},
	})
	require.NoError(t, err)
	assert.Len(t, result.Assets, 2)
	assert.Len(t, sess.Assets(), 2)

	outputPath, err := sess.Convert("Holiday Scans", PresetMedium)
	require.NoError(t, err)
	defer sess.Clear()

	assert.Equal(t, outputPath, sess.OutputPath())
	require.FileExists(t, outputPath)
	assert.Contains(t, filepath.Base(outputPath), "Holiday_Scans")

	count, err := api.PageCountFile(outputPath)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSessionConvertUppercaseSuffixHint(t *testing.T) {
	sess := newTestSession(t)
	a := writeTestPNG(t, t.TempDir(), "a.png")

	_, err := sess.Reconcile([]pages.UploadToken{{Path: a}})
	require.NoError(t, err)

	outputPath, err := sess.Convert("My Report!!.PDF", PresetNone)
	require.NoError(t, err)
	defer sess.Clear()

	base := filepath.Base(outputPath)
	assert.Contains(t, base, "My_Report_")
	assert.NotContains(t, base, ".PDF_", "uppercase suffix is trimmed before the temp pattern")
	assert.True(t, strings.HasSuffix(base, ".pdf"))
}

func TestSessionConvertEmptyFails(t *testing.T) {
	sess := newTestSession(t)

	_, err := sess.Convert("empty", PresetNone)
	require.Error(t, err)
	assert.ErrorIs(t, err, assembly.ErrEmptyDocument)
	assert.Empty(t, sess.OutputPath())
}

func TestSessionReconcileInvalidatesOutput(t *testing.T) {
	sess := newTestSession(t)
	dir := t.TempDir()
	a := writeTestPNG(t, dir, "a.png")
	b := writeTestPNG(t, dir, "b.png")

	_, err := sess.Reconcile([]pages.UploadToken{{Path: a}})
	require.NoError(t, err)

	outputPath, err := sess.Convert("draft", PresetNone)
	require.NoError(t, err)
	require.FileExists(t, outputPath)

	// Any page-list change discards the stale output
	_, err = sess.Reconcile([]pages.UploadToken{{Path: a}, {Path: b}})
	require.NoError(t, err)

	assert.Empty(t, sess.OutputPath())
	_, statErr := os.Stat(outputPath)
	assert.True(t, os.IsNotExist(statErr))

	sess.Clear()
}

func TestSessionReconcileFailureKeepsState(t *testing.T) {
	sess := newTestSession(t)
	dir := t.TempDir()
	a := writeTestPNG(t, dir, "a.png")
	junk := filepath.Join(dir, "junk.txt")
	require.NoError(t, os.WriteFile(junk, []byte("x"), 0600))

	_, err := sess.Reconcile([]pages.UploadToken{{Path: a}})
	require.NoError(t, err)

	_, err = sess.Reconcile([]pages.UploadToken{{Path: a}, {Path: junk}})
	require.Error(t, err)
	assert.ErrorIs(t, err, pages.ErrUnsupportedFileType)

	// The previous page list stays authoritative
	require.Len(t, sess.Assets(), 1)
	assert.Equal(t, a, sess.Assets()[0].PreviewPath)
}

func TestSessionClear(t *testing.T) {
	sess := newTestSession(t)
	a := writeTestPNG(t, t.TempDir(), "a.png")

	_, err := sess.Reconcile([]pages.UploadToken{{Path: a}})
	require.NoError(t, err)

	outputPath, err := sess.Convert("draft", PresetNone)
	require.NoError(t, err)
	require.FileExists(t, outputPath)

	sess.Clear()

	assert.Empty(t, sess.Assets())
	assert.Empty(t, sess.OutputPath())
	assert.Equal(t, 0, sess.Tracker().Len())
	_, statErr := os.Stat(outputPath)
	assert.True(t, os.IsNotExist(statErr))

	// The uploaded source file is never touched
	assert.FileExists(t, a)

	// Clearing twice is safe
	sess.Clear()
}
