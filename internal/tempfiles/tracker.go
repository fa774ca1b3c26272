package tempfiles

import "sync"

// Tracker records which temp paths belong to one interactive session so
// they can be cleaned up eagerly, independent of the registry's TTL sweep.
// The surrounding server must call CleanupAll on every session-termination
// path; there is no finalizer fallback.
type Tracker struct {
	registry *Registry

	mu    sync.Mutex
	paths map[string]struct{}
}

// NewTracker creates a session-scoped tracker on top of the shared registry.
func NewTracker(registry *Registry) *Tracker {
	return &Tracker{
		registry: registry,
		paths:    make(map[string]struct{}),
	}
}

// Track registers path in the global registry and remembers it as owned by
// this session.
func (t *Tracker) Track(path string) {
	t.registry.Register(path)
	t.mu.Lock()
	t.paths[path] = struct{}{}
	t.mu.Unlock()
}

// Release forgets path. When deleteFile is true the file is removed from
// disk along with its registry entry, otherwise only the registry entry is
// dropped. Releasing a path twice is a no-op the second time.
func (t *Tracker) Release(path string, deleteFile bool) {
	if deleteFile {
		t.registry.Remove(path)
	} else {
		t.registry.Unregister(path)
	}
	t.mu.Lock()
	delete(t.paths, path)
	t.mu.Unlock()
}

// CleanupAll removes every tracked path from disk and clears the local set.
func (t *Tracker) CleanupAll() {
	t.mu.Lock()
	paths := make([]string, 0, len(t.paths))
	for p := range t.paths {
		paths = append(paths, p)
	}
	t.paths = make(map[string]struct{})
	t.mu.Unlock()

	for _, p := range paths {
		t.registry.Remove(p)
	}
}

// Len reports how many paths the session currently owns.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.paths)
}
