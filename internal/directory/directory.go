// Package directory maintains the ordered listing of supported media files
// in the current directory and reconciles filesystem changes against it.
//
// Indices are contiguous and name-ordered. External add/remove events from
// the fsnotify watcher are translated into the same Added/Removed events as
// explicit operations, carrying the index at which the listing changed, so
// every consumer holding index-based state (selection, keep-window,
// thumbnail strip) can shift by the same delta.
package directory

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"image-viewer/internal/filesystem"
	"image-viewer/internal/logging"
	"image-viewer/internal/mediatypes"
	"image-viewer/internal/metrics"

	"github.com/fsnotify/fsnotify"
)

// EventType discriminates listing change events.
type EventType int

const (
	// Added means a supported file appeared at Index.
	Added EventType = iota
	// Removed means the file previously at Index disappeared.
	Removed
)

// Event is a listing change. For Removed events Index is the position the
// entry had before removal (now stale, which is exactly what index-shifting
// consumers need).
type Event struct {
	Type  EventType
	Index int
	Name  string
}

// Manager owns the listing. All methods are safe for concurrent use; events
// are delivered on a channel the sequencing loop drains, so their
// application is serialized with navigation.
type Manager struct {
	mu    sync.RWMutex
	dir   string
	names []string // sorted

	watcher   *fsnotify.Watcher
	watchStop chan struct{}
	events    chan Event
}

// New creates a Manager with no directory set.
func New() *Manager {
	return &Manager{
		events: make(chan Event, 64),
	}
}

// Events returns the listing change channel.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// SetDirectory replaces the listing with the supported entries of path in
// name order and points the filesystem watcher at it.
func (m *Manager) SetDirectory(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", path, err)
	}
	entries, err := filesystem.ReadDir(abs)
	if err != nil {
		return fmt.Errorf("reading directory %s: %w", abs, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if mediatypes.IsSupported(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	m.mu.Lock()
	m.stopWatchLocked()
	m.dir = abs
	m.names = names
	err = m.startWatchLocked()
	m.mu.Unlock()

	metrics.DirectoryFiles.Set(float64(len(names)))
	logging.Info("directory %s: %d supported files", abs, len(names))
	if err != nil {
		// The listing is still valid without a watcher.
		logging.Warn("directory watch unavailable for %s: %v", abs, err)
	}
	return nil
}

// FileCount returns the number of entries.
func (m *Manager) FileCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.names)
}

// FileNameAt returns the name at index, or "" when out of range.
func (m *Manager) FileNameAt(index int) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if index < 0 || index >= len(m.names) {
		return ""
	}
	return m.names[index]
}

// FilePathAt returns the absolute path at index, or "" when out of range.
func (m *Manager) FilePathAt(index int) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if index < 0 || index >= len(m.names) {
		return ""
	}
	return filepath.Join(m.dir, m.names[index])
}

// IndexOf returns the index of name, or -1.
func (m *Manager) IndexOf(name string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.indexOfLocked(name)
}

func (m *Manager) indexOfLocked(name string) int {
	i := sort.SearchStrings(m.names, name)
	if i < len(m.names) && m.names[i] == name {
		return i
	}
	return -1
}

// CheckRange reports whether index is a valid position.
func (m *Manager) CheckRange(index int) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return index >= 0 && index < len(m.names)
}

// HasImages reports whether the listing is non-empty.
func (m *Manager) HasImages() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.names) > 0
}

// CurrentDirectoryPath returns the directory the listing reflects.
func (m *Manager) CurrentDirectoryPath() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dir
}

// IsSupported reports whether path names an existing regular file of a
// supported media type.
func (m *Manager) IsSupported(path string) bool {
	if !mediatypes.IsSupported(path) {
		return false
	}
	info, err := filesystem.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// IsDirectory reports whether path names an existing directory.
func (m *Manager) IsDirectory(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// RemoveAt deletes the underlying file and, on success, removes the entry
// and emits a Removed event carrying the now-stale index.
func (m *Manager) RemoveAt(index int) error {
	m.mu.Lock()
	if index < 0 || index >= len(m.names) {
		m.mu.Unlock()
		return fmt.Errorf("remove: index %d out of range", index)
	}
	name := m.names[index]
	path := filepath.Join(m.dir, name)
	if err := os.Remove(path); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("removing %s: %w", path, err)
	}
	m.names = append(m.names[:index], m.names[index+1:]...)
	count := len(m.names)
	m.mu.Unlock()

	metrics.DirectoryFiles.Set(float64(count))
	m.emit(Event{Type: Removed, Index: index, Name: name})
	return nil
}

// CopyTo copies the entry at index into destDir, preserving the file name.
// Move is copy plus RemoveAt, decided by the caller.
func (m *Manager) CopyTo(destDir string, index int) error {
	m.mu.RLock()
	if index < 0 || index >= len(m.names) {
		m.mu.RUnlock()
		return fmt.Errorf("copy: index %d out of range", index)
	}
	name := m.names[index]
	src := filepath.Join(m.dir, name)
	m.mu.RUnlock()

	in, err := filesystem.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	dst := filepath.Join(destDir, name)
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("copying to %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return fmt.Errorf("closing %s: %w", dst, err)
	}
	return nil
}

// Close stops the watcher. The events channel stays open; consumers stop
// reading it when they shut down.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopWatchLocked()
}

func (m *Manager) emit(e Event) {
	select {
	case m.events <- e:
	default:
		// The sequencing loop has stalled badly; dropping is better than
		// wedging the watcher goroutine.
		logging.Warn("directory: event channel full, dropping %v for %s", e.Type, e.Name)
	}
}

func (m *Manager) startWatchLocked() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(m.dir); err != nil {
		w.Close()
		return err
	}
	m.watcher = w
	m.watchStop = make(chan struct{})
	go m.watchLoop(w, m.watchStop)
	return nil
}

func (m *Manager) stopWatchLocked() {
	if m.watcher != nil {
		close(m.watchStop)
		if err := m.watcher.Close(); err != nil {
			logging.Warn("closing watcher: %v", err)
		}
		m.watcher = nil
	}
}

func (m *Manager) watchLoop(w *fsnotify.Watcher, stop chan struct{}) {
	for {
		select {
		case event, ok := <-w.Events:
			if !ok {
				return
			}
			m.handleFsEvent(event)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			logging.Error("directory watcher: %v", err)
			metrics.WatcherErrorsTotal.Inc()
		case <-stop:
			return
		}
	}
}

func (m *Manager) handleFsEvent(event fsnotify.Event) {
	metrics.WatcherEventsTotal.WithLabelValues(eventType(event.Op)).Inc()

	name := filepath.Base(event.Name)
	switch {
	case event.Op&fsnotify.Create != 0:
		if !m.IsSupported(event.Name) {
			return
		}
		m.insertName(name)
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		m.removeName(name)
	}
}

// insertName adds name at its sorted position and emits Added. A name that
// is already present (our own copy landing, or a duplicate event) is
// ignored.
func (m *Manager) insertName(name string) {
	m.mu.Lock()
	if m.indexOfLocked(name) >= 0 {
		m.mu.Unlock()
		return
	}
	i := sort.SearchStrings(m.names, name)
	m.names = append(m.names, "")
	copy(m.names[i+1:], m.names[i:])
	m.names[i] = name
	count := len(m.names)
	m.mu.Unlock()

	metrics.DirectoryFiles.Set(float64(count))
	logging.Debug("directory: %s appeared at index %d", name, i)
	m.emit(Event{Type: Added, Index: i, Name: name})
}

// removeName drops name if present and emits Removed. Events for names we
// already removed ourselves (RemoveAt) resolve to no index and are ignored,
// so explicit removals are not double-reported.
func (m *Manager) removeName(name string) {
	m.mu.Lock()
	i := m.indexOfLocked(name)
	if i < 0 {
		m.mu.Unlock()
		return
	}
	m.names = append(m.names[:i], m.names[i+1:]...)
	count := len(m.names)
	m.mu.Unlock()

	metrics.DirectoryFiles.Set(float64(count))
	logging.Debug("directory: %s disappeared from index %d", name, i)
	m.emit(Event{Type: Removed, Index: i, Name: name})
}

func eventType(op fsnotify.Op) string {
	switch {
	case op&fsnotify.Create != 0:
		return "create"
	case op&fsnotify.Write != 0:
		return "write"
	case op&fsnotify.Remove != 0:
		return "remove"
	case op&fsnotify.Rename != 0:
		return "rename"
	case op&fsnotify.Chmod != 0:
		return "chmod"
	default:
		return "unknown"
	}
}
