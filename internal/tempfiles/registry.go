// Package tempfiles tracks temporary artifacts (page previews, generated
// PDFs) in a process-wide, disk-persisted registry so they are eventually
// removed even if a session never cleans up after itself.
package tempfiles

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultTTL is how long a registered temp file is kept before the
	// sweeper is allowed to delete it.
	DefaultTTL = 24 * time.Hour

	registryFileName = "wrenchpdf-temp-files.json"

	// TTLEnvVar overrides the default TTL (value in hours).
	TTLEnvVar = "WRENCHPDF_TEMP_TTL_HOURS"
)

// Registry is a shared ledger mapping absolute temp file paths to their
// expiry as a floating-point Unix timestamp. It is persisted as a single
// JSON object in the platform temp directory. Persistence is best effort:
// the registry only delays cleanup when lost, it is never a source of truth.
type Registry struct {
	path   string
	ttl    time.Duration
	logger *logrus.Logger

	// mu serialises every read-modify-write over the backing file within
	// this process. Cross-process callers are coordinated via a flock
	// sidecar next to the registry file.
	mu sync.Mutex
}

// DefaultPath is the well-known registry file location every process on the
// machine shares.
func DefaultPath() string {
	return filepath.Join(os.TempDir(), registryFileName)
}

// NewRegistry creates a registry backed by the well-known file in the
// platform temp directory.
func NewRegistry(logger *logrus.Logger) *Registry {
	return NewRegistryAt(DefaultPath(), resolveTTL(), logger)
}

// NewRegistryAt creates a registry backed by an explicit file. Used by
// tests and by callers that need an isolated ledger.
func NewRegistryAt(path string, ttl time.Duration, logger *logrus.Logger) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Registry{path: path, ttl: ttl, logger: logger}
}

// resolveTTL reads the TTL override from the environment.
func resolveTTL() time.Duration {
	if hoursStr := os.Getenv(TTLEnvVar); hoursStr != "" {
		if hours, err := strconv.Atoi(hoursStr); err == nil && hours > 0 {
			return time.Duration(hours) * time.Hour
		}
	}
	return DefaultTTL
}

// TTL returns the registry's default time-to-live.
func (r *Registry) TTL() time.Duration {
	return r.ttl
}

// Register records path with expiry now+TTL and, as a side effect, prunes
// every other entry that has expired or whose backing file has been deleted
// externally. Re-registering a path refreshes its expiry.
func (r *Registry) Register(path string) {
	r.RegisterTTL(path, r.ttl)
}

// RegisterTTL is Register with an explicit time-to-live.
func (r *Registry) RegisterTTL(path string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = r.ttl
	}
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()
	unlock := r.lockFile()
	defer unlock()

	entries := r.read()
	nowTS := float64(now.UnixNano()) / float64(time.Second)
	for p, expiry := range entries {
		if p == path {
			continue
		}
		if expiry <= nowTS || !fileExists(p) {
			removeQuiet(p)
			delete(entries, p)
		}
	}
	entries[path] = float64(now.Add(ttl).UnixNano()) / float64(time.Second)
	r.write(entries)
}

// Unregister drops the bookkeeping entry for path without touching the
// file itself.
func (r *Registry) Unregister(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	unlock := r.lockFile()
	defer unlock()

	entries := r.read()
	if _, ok := entries[path]; !ok {
		return
	}
	delete(entries, path)
	r.write(entries)
}

// Remove deletes the file at path if present and unregisters it. A missing
// file is not an error.
func (r *Registry) Remove(path string) {
	removeQuiet(path)
	r.Unregister(path)
}

// SweepExpired scans the ledger and deletes every entry whose expiry is at
// or before now, or whose backing file no longer exists. The registry file
// is rewritten only if something changed.
func (r *Registry) SweepExpired(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	unlock := r.lockFile()
	defer unlock()

	entries := r.read()
	nowTS := float64(now.UnixNano()) / float64(time.Second)
	changed := false
	for p, expiry := range entries {
		if expiry <= nowTS || !fileExists(p) {
			removeQuiet(p)
			delete(entries, p)
			changed = true
		}
	}
	if changed {
		r.write(entries)
	}
}

// Entries returns a snapshot of the ledger. Intended for diagnostics and
// tests.
func (r *Registry) Entries() map[string]float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.read()
}

// lockFile takes the cross-process advisory lock. The registry stays
// usable when the lock cannot be acquired; concurrent processes may then
// race on the ledger, which at worst delays cleanup.
func (r *Registry) lockFile() func() {
	fileLock := flock.New(r.path + ".lock")
	locked, err := fileLock.TryLock()
	if err != nil || !locked {
		r.logger.WithError(err).Debug("Temp registry file lock unavailable, continuing unlocked")
		return func() {}
	}
	return func() {
		if err := fileLock.Unlock(); err != nil {
			r.logger.WithError(err).Debug("Failed to release temp registry file lock")
		}
	}
}

// read loads the ledger, tolerating a missing or corrupt file.
func (r *Registry) read() map[string]float64 {
	entries := make(map[string]float64)
	data, err := os.ReadFile(r.path)
	if err != nil {
		if !os.IsNotExist(err) {
			r.logger.WithError(err).Debug("Failed to read temp registry")
		}
		return entries
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		r.logger.WithError(err).Debug("Discarding corrupt temp registry")
		return make(map[string]float64)
	}
	return entries
}

// write persists the ledger. Failures are swallowed.
func (r *Registry) write(entries map[string]float64) {
	data, err := json.Marshal(entries)
	if err != nil {
		r.logger.WithError(err).Debug("Failed to encode temp registry")
		return
	}
	if err := os.WriteFile(r.path, data, 0600); err != nil {
		r.logger.WithError(err).Debug("Failed to persist temp registry")
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func removeQuiet(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).WithField("path", path).Debug("Failed to remove temp file")
	}
}
