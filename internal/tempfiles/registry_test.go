package tempfiles

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T, ttl time.Duration) *Registry {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewRegistryAt(filepath.Join(t.TempDir(), "registry.json"), ttl, logger)
}

func touchFile(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("x"), 0600))
	return path
}

func TestRegistryRegisterAndEntries(t *testing.T) {
	reg := newTestRegistry(t, time.Hour)
	dir := t.TempDir()

	a := touchFile(t, dir, "a.png")
	b := touchFile(t, dir, "b.png")

	reg.Register(a)
	reg.Register(b)

	entries := reg.Entries()
	assert.Len(t, entries, 2)
	assert.Contains(t, entries, a)
	assert.Contains(t, entries, b)

	now := float64(time.Now().UnixNano()) / float64(time.Second)
	assert.Greater(t, entries[a], now, "expiry should be in the future")
}

func TestRegistryReRegisterRefreshesExpiry(t *testing.T) {
	reg := newTestRegistry(t, time.Hour)
	a := touchFile(t, t.TempDir(), "a.png")

	reg.RegisterTTL(a, time.Minute)
	first := reg.Entries()[a]

	reg.RegisterTTL(a, 2*time.Hour)
	second := reg.Entries()[a]

	assert.Greater(t, second, first)
}

func TestRegistrySweepExpired(t *testing.T) {
	reg := newTestRegistry(t, time.Hour)
	dir := t.TempDir()

	expired := touchFile(t, dir, "expired.png")
	live := touchFile(t, dir, "live.png")

	reg.RegisterTTL(expired, time.Second)
	reg.RegisterTTL(live, time.Hour)

	reg.SweepExpired(time.Now().Add(time.Minute))

	entries := reg.Entries()
	assert.NotContains(t, entries, expired)
	assert.Contains(t, entries, live)

	_, err := os.Stat(expired)
	assert.True(t, os.IsNotExist(err), "expired file should be deleted")
	assert.FileExists(t, live)
}

func TestRegistrySweepDropsExternallyDeletedFiles(t *testing.T) {
	reg := newTestRegistry(t, time.Hour)
	a := touchFile(t, t.TempDir(), "a.png")

	reg.Register(a)
	require.NoError(t, os.Remove(a))

	reg.SweepExpired(time.Now())
	assert.NotContains(t, reg.Entries(), a)
}

func TestRegistryRegisterPrunesOtherExpiredEntries(t *testing.T) {
	reg := newTestRegistry(t, time.Hour)
	dir := t.TempDir()

	stale := touchFile(t, dir, "stale.png")
	fresh := touchFile(t, dir, "fresh.png")

	reg.RegisterTTL(stale, time.Nanosecond)
	time.Sleep(10 * time.Millisecond)
	reg.Register(fresh)

	entries := reg.Entries()
	assert.NotContains(t, entries, stale)
	assert.Contains(t, entries, fresh)
}

func TestRegistryRemove(t *testing.T) {
	reg := newTestRegistry(t, time.Hour)
	a := touchFile(t, t.TempDir(), "a.png")

	reg.Register(a)
	reg.Remove(a)

	assert.NotContains(t, reg.Entries(), a)
	_, err := os.Stat(a)
	assert.True(t, os.IsNotExist(err))

	// Removing again is harmless
	reg.Remove(a)
}

func TestRegistryToleratesCorruptLedger(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	path := filepath.Join(t.TempDir(), "registry.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	reg := NewRegistryAt(path, time.Hour, logger)
	a := touchFile(t, t.TempDir(), "a.png")
	reg.Register(a)

	assert.Contains(t, reg.Entries(), a)
}

func TestDefaultPath(t *testing.T) {
	assert.Equal(t, filepath.Join(os.TempDir(), "wrenchpdf-temp-files.json"), DefaultPath())
}

func TestResolveTTLFromEnvironment(t *testing.T) {
	t.Setenv(TTLEnvVar, "2")
	assert.Equal(t, 2*time.Hour, resolveTTL())

	t.Setenv(TTLEnvVar, "not-a-number")
	assert.Equal(t, DefaultTTL, resolveTTL())

	t.Setenv(TTLEnvVar, "-1")
	assert.Equal(t, DefaultTTL, resolveTTL())
}

func TestTrackerCleanupAll(t *testing.T) {
	reg := newTestRegistry(t, time.Hour)
	tracker := NewTracker(reg)
	dir := t.TempDir()

	a := touchFile(t, dir, "a.png")
	b := touchFile(t, dir, "b.png")
	tracker.Track(a)
	tracker.Track(b)
	assert.Equal(t, 2, tracker.Len())

	tracker.CleanupAll()
	assert.Equal(t, 0, tracker.Len())
	assert.Empty(t, reg.Entries())

	_, err := os.Stat(a)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(b)
	assert.True(t, os.IsNotExist(err))
}

func TestTrackerReleaseKeepFile(t *testing.T) {
	reg := newTestRegistry(t, time.Hour)
	tracker := NewTracker(reg)
	a := touchFile(t, t.TempDir(), "a.png")

	tracker.Track(a)
	tracker.Release(a, false)

	assert.Equal(t, 0, tracker.Len())
	assert.NotContains(t, reg.Entries(), a)
	assert.FileExists(t, a)
}

func TestTrackerDoubleReleaseIsNoOp(t *testing.T) {
	reg := newTestRegistry(t, time.Hour)
	tracker := NewTracker(reg)
	a := touchFile(t, t.TempDir(), "a.png")

	tracker.Track(a)
	tracker.Release(a, true)
	tracker.Release(a, true)

	assert.Equal(t, 0, tracker.Len())
}
