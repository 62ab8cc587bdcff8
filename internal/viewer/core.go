// Package viewer sequences the pipeline. A single goroutine owns selection
// state, applies directory change events, and drains the completion channels
// of the loader, scaler and thumbnailer, so no worker ever touches shared
// state directly. Commands are closures posted to that goroutine; results
// flow back out as events.
//
// Every asynchronous completion is relevance-checked against the selection
// at completion time, not request time: decode results must land inside the
// keep-window, scale results must match the displayed path, thumbnails must
// still resolve to an index. Anything stale is discarded here, which is what
// keeps abandoned background work from corrupting the view.
package viewer

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"image-viewer/internal/cache"
	"image-viewer/internal/config"
	"image-viewer/internal/directory"
	"image-viewer/internal/loader"
	"image-viewer/internal/logging"
	"image-viewer/internal/media"
	"image-viewer/internal/metrics"
	"image-viewer/internal/scaler"
	"image-viewer/internal/thumbnailer"
)

// State is a snapshot of the selection, taken on the sequencing goroutine.
type State struct {
	CurrentIndex     int
	HasActiveImage   bool
	WaitingForLoader bool
	DisplayingName   string
}

// Core wires the pipeline components together and runs the sequencing loop.
type Core struct {
	dirs   *directory.Manager
	cache  *cache.Cache
	loader *loader.Loader
	scaler *scaler.Scaler
	thumbs *thumbnailer.Thumbnailer

	// Owned by the sequencing goroutine.
	state    State
	window   int
	infinite bool
	preload  bool

	cmds    chan func()
	events  chan Event
	quit    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

// New builds a Core over already-constructed components. The configuration
// manager's change notifications keep navigation and preload behavior
// current without a process-wide settings object.
func New(cfgm *config.Manager, dirs *directory.Manager, c *cache.Cache, l *loader.Loader, s *scaler.Scaler, th *thumbnailer.Thumbnailer) *Core {
	core := &Core{
		dirs:    dirs,
		cache:   c,
		loader:  l,
		scaler:  s,
		thumbs:  th,
		cmds:    make(chan func(), 64),
		events:  make(chan Event, 128),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	cfgm.Subscribe(func(cfg *config.Config) {
		core.do(func() {
			core.window = cfg.Cache.Window
			core.infinite = cfg.Navigation.InfiniteScrolling
			core.preload = cfg.Preloader.Enabled
		})
	})
	return core
}

// Start launches the sequencing goroutine.
func (c *Core) Start() {
	go c.run()
}

// Close cancels background work and stops the sequencing loop.
func (c *Core) Close() {
	c.once.Do(func() {
		c.thumbs.ClearTasks()
		c.loader.ClearTasks()
		close(c.quit)
	})
	<-c.stopped
}

// Events returns the outbound event stream.
func (c *Core) Events() <-chan Event {
	return c.events
}

// State returns a snapshot taken on the sequencing goroutine.
func (c *Core) State() State {
	ch := make(chan State, 1)
	c.do(func() { ch <- c.state })
	select {
	case s := <-ch:
		return s
	case <-c.stopped:
		return State{}
	}
}

func (c *Core) run() {
	defer close(c.stopped)
	for {
		select {
		case fn := <-c.cmds:
			fn()
		case res := <-c.loader.Completed():
			c.onLoadFinished(res)
		case res := <-c.scaler.Results():
			c.onScalingFinished(res)
		case th := <-c.thumbs.Ready():
			c.onThumbnail(th)
		case ev := <-c.dirs.Events():
			c.onDirectoryEvent(ev)
		case <-c.quit:
			return
		}
	}
}

// do posts a command to the sequencing goroutine.
func (c *Core) do(fn func()) {
	select {
	case c.cmds <- fn:
	case <-c.quit:
	}
}

func (c *Core) emit(e Event) {
	select {
	case c.events <- e:
	default:
		logging.Warn("core: event channel full, dropping %v", e.Type)
	}
}

func (c *Core) emitError(msg string) {
	logging.Warn("core: %s", msg)
	c.emit(Event{Type: EventError, Message: msg})
}

// ---- commands -----------------------------------------------------------

// SetDirectory loads the listing of path without opening a file.
func (c *Core) SetDirectory(path string) {
	c.do(func() { c.setDirectory(path) })
}

// OpenPath opens a file or directory. With blocking set, the decode of the
// opened file completes before the command finishes, which is what the
// command-line startup path wants; either way the same load-finished event
// is published.
func (c *Core) OpenPath(path string, blocking bool) {
	c.do(func() { c.openPath(path, blocking) })
}

// LoadIndex displays the entry at index.
func (c *Core) LoadIndex(index int) {
	c.do(func() { c.loadIndex(index, false) })
}

// LoadIndexBlocking is LoadIndex with the decode completing before the
// command finishes.
func (c *Core) LoadIndexBlocking(index int) {
	c.do(func() { c.loadIndex(index, true) })
}

// Preload queues a low-priority decode of the entry at index.
func (c *Core) Preload(index int) {
	c.do(func() { c.preloadIndex(index) })
}

// Next advances the selection, wrapping when infinite scrolling is on.
func (c *Core) Next() { c.do(c.nextImage) }

// Prev moves the selection back, wrapping when infinite scrolling is on.
func (c *Core) Prev() { c.do(c.prevImage) }

// First jumps to the first entry.
func (c *Core) First() {
	c.do(func() {
		if c.dirs.HasImages() {
			c.loadIndex(0, false)
		}
	})
}

// Last jumps to the last entry.
func (c *Core) Last() {
	c.do(func() {
		if c.dirs.HasImages() {
			c.loadIndex(c.dirs.FileCount()-1, false)
		}
	})
}

// RemoveCurrent deletes the selected file from disk.
func (c *Core) RemoveCurrent() {
	c.do(c.removeCurrent)
}

// CopyTo copies the selected file into destDir.
func (c *Core) CopyTo(destDir string) {
	c.do(func() { c.copyCurrent(destDir) })
}

// MoveTo moves the selected file into destDir (copy, then remove).
func (c *Core) MoveTo(destDir string) {
	c.do(func() { c.moveCurrent(destDir) })
}

// ResizeCurrent rescales the selected still in place.
func (c *Core) ResizeCurrent(width, height int) {
	c.do(func() {
		c.editCurrent("resize", func(img *media.Image) error {
			still, ok := img.Static()
			if !ok {
				return media.ErrNotEditable
			}
			return img.SetEdited(media.Scale(still, width, height))
		})
	})
}

// RotateCurrent rotates the selected still by degrees, clockwise positive.
func (c *Core) RotateCurrent(degrees int) {
	c.do(func() {
		c.editCurrent("rotate", func(img *media.Image) error {
			still, ok := img.Static()
			if !ok {
				return media.ErrNotEditable
			}
			return img.SetEdited(media.Rotate(still, degrees))
		})
	})
}

// RequestScaling asks for the displayed image rescaled to the viewport.
func (c *Core) RequestScaling(width, height int) {
	c.do(func() { c.scalingRequest(width, height) })
}

// RequestThumbnails queues thumbnail generation for the given indices,
// typically the ones scrolled into view.
func (c *Core) RequestThumbnails(indexes []int) {
	c.do(func() { c.thumbs.Generate(indexes) })
}

// ClearCache evicts every unreserved cache entry.
func (c *Core) ClearCache() {
	c.do(c.clearCache)
}

// Reset drops selection state and empties the cache.
func (c *Core) Reset() {
	c.do(c.reset)
}

// ---- sequencing-goroutine internals -------------------------------------

func (c *Core) setDirectory(path string) bool {
	if c.dirs.HasImages() && c.dirs.CurrentDirectoryPath() == path {
		return false
	}
	c.reset()
	if err := c.dirs.SetDirectory(path); err != nil {
		c.emitError(fmt.Sprintf("Could not open directory %s: %v", path, err))
		return false
	}
	return true
}

func (c *Core) openPath(path string, blocking bool) {
	path = strings.TrimPrefix(path, "file://")
	switch {
	case c.dirs.IsSupported(path):
		c.setDirectory(filepath.Dir(path))
		index := c.dirs.IndexOf(filepath.Base(path))
		if index < 0 {
			c.emitError("File does not exist or is not supported: " + path)
			return
		}
		c.loadIndex(index, blocking)
	case c.dirs.IsDirectory(path):
		c.loadDirectory(path, blocking)
	default:
		c.emitError("File does not exist or is not supported: " + path)
	}
}

func (c *Core) loadDirectory(path string, blocking bool) {
	if !c.setDirectory(path) && !c.dirs.HasImages() {
		return
	}
	if c.dirs.HasImages() {
		c.loadIndex(0, blocking)
	} else {
		c.emitError("Directory does not contain supported files.")
	}
}

func (c *Core) loadIndex(index int, blocking bool) bool {
	if !c.dirs.CheckRange(index) {
		return false
	}
	c.state.CurrentIndex = index
	c.emit(Event{Type: EventSelectionChanged, Index: index})
	c.onLoadStarted()

	name := c.dirs.FileNameAt(index)
	c.cache.Lock()
	img := c.cache.Get(name)
	c.cache.Unlock()

	if img != nil {
		c.displayImage(img)
	} else if blocking {
		// Publishes the same completion event as the async path; the
		// loop picks it up right after this command returns. The return
		// value lets retargeting fall back when the decode fails.
		if c.loader.LoadBlocking(c.dirs.FilePathAt(index)) == nil {
			return false
		}
	} else {
		c.loader.LoadExclusive(c.dirs.FilePathAt(index))
	}
	return true
}

func (c *Core) nextImage() {
	if !c.dirs.HasImages() {
		return
	}
	index := c.state.CurrentIndex + 1
	if index >= c.dirs.FileCount() {
		if !c.infinite {
			c.emit(Event{Type: EventInfo, Message: "End of directory."})
			return
		}
		index = 0
	}
	c.loadIndex(index, false)
	c.preloadIndex(index + 1)
}

func (c *Core) prevImage() {
	if !c.dirs.HasImages() {
		return
	}
	index := c.state.CurrentIndex - 1
	if index < 0 {
		if !c.infinite {
			c.emit(Event{Type: EventInfo, Message: "Beginning of directory."})
			return
		}
		index = c.dirs.FileCount() - 1
	}
	c.loadIndex(index, false)
	c.preloadIndex(index - 1)
}

func (c *Core) preloadIndex(index int) {
	if !c.preload || !c.dirs.CheckRange(index) {
		return
	}
	name := c.dirs.FileNameAt(index)
	c.cache.Lock()
	cached := c.cache.Contains(name)
	c.cache.Unlock()
	if !cached {
		c.loader.Load(c.dirs.FilePathAt(index))
	}
}

func (c *Core) onLoadStarted() {
	c.state.WaitingForLoader = true
	c.emit(Event{Type: EventLoadStarted, Index: c.state.CurrentIndex})
	c.updateInfoString()
	c.trimCache()
}

// trimCache evicts everything outside the keep-window around the selection.
func (c *Core) trimCache() {
	keep := make([]string, 0, 2*c.window+1)
	for i := c.state.CurrentIndex - c.window; i <= c.state.CurrentIndex+c.window; i++ {
		if name := c.dirs.FileNameAt(i); name != "" {
			keep = append(keep, name)
		}
	}
	c.cache.Lock()
	c.cache.TrimTo(keep)
	c.cache.Unlock()
}

func (c *Core) clearCache() {
	c.cache.Lock()
	c.cache.Clear()
	c.cache.Unlock()
}

func (c *Core) reset() {
	c.state = State{}
	c.clearCache()
}

func (c *Core) onLoadFinished(res loader.Result) {
	if res.Image == nil {
		// Only a failure for the file we are waiting on clears the
		// waiting state and surfaces an error.
		if c.state.WaitingForLoader && res.Path == c.dirs.FilePathAt(c.state.CurrentIndex) {
			c.state.WaitingForLoader = false
			c.emit(Event{Type: EventLoadFinished, Index: c.state.CurrentIndex})
			c.emitError(fmt.Sprintf("Could not load %s.", filepath.Base(res.Path)))
		} else {
			metrics.ResultsDiscardedTotal.WithLabelValues("loader").Inc()
		}
		return
	}

	img := res.Image
	index := c.dirs.IndexOf(img.Name())
	relevant := index >= 0 &&
		index >= c.state.CurrentIndex-c.window &&
		index <= c.state.CurrentIndex+c.window

	if relevant {
		name := img.Name()
		c.cache.Lock()
		if !c.cache.Insert(name, img) {
			// Two decodes for the same key raced; keep the cached one.
			img = c.cache.Get(name)
		}
		c.cache.Unlock()
	} else {
		metrics.ResultsDiscardedTotal.WithLabelValues("loader").Inc()
		return
	}

	if index == c.state.CurrentIndex {
		c.displayImage(img)
	}
}

func (c *Core) displayImage(img *media.Image) {
	c.state.WaitingForLoader = false
	if img == nil {
		c.emitError("Could not load image.")
		return
	}
	c.state.HasActiveImage = true
	c.state.DisplayingName = img.Name()
	c.emit(Event{Type: EventLoadFinished, Index: c.state.CurrentIndex, Image: img})
	c.updateInfoString()
}

func (c *Core) onScalingFinished(res scaler.Result) {
	if c.state.HasActiveImage && c.dirs.FilePathAt(c.state.CurrentIndex) == res.Request.Path {
		c.emit(Event{Type: EventScalingFinished, Scaled: res.Scaled, ScaleRequest: res.Request})
		return
	}
	metrics.ResultsDiscardedTotal.WithLabelValues("scaler").Inc()
}

func (c *Core) onThumbnail(th *thumbnailer.Thumbnail) {
	index := c.dirs.IndexOf(th.Name)
	if index < 0 {
		metrics.ResultsDiscardedTotal.WithLabelValues("thumbnailer").Inc()
		return
	}
	c.emit(Event{Type: EventThumbnailReady, Index: index, Thumbnail: th})
}

func (c *Core) onDirectoryEvent(ev directory.Event) {
	selected := c.state.HasActiveImage || c.state.WaitingForLoader
	switch ev.Type {
	case directory.Added:
		c.emit(Event{Type: EventFileAdded, Index: ev.Index})
		if selected && ev.Index <= c.state.CurrentIndex {
			// The selected file shifted right; follow it.
			c.state.CurrentIndex++
			c.emit(Event{Type: EventSelectionChanged, Index: c.state.CurrentIndex})
			c.updateInfoString()
		}
	case directory.Removed:
		c.emit(Event{Type: EventFileRemoved, Index: ev.Index})
		switch {
		case ev.Index < c.state.CurrentIndex:
			c.state.CurrentIndex--
			c.emit(Event{Type: EventSelectionChanged, Index: c.state.CurrentIndex})
			c.updateInfoString()
		case ev.Index == c.state.CurrentIndex && selected:
			c.retarget()
		}
	}
}

// retarget picks a new selection after the current entry vanished: the
// entry that shifted into its index, else the one before it, else the
// explicit no-file state.
func (c *Core) retarget() {
	if !c.dirs.HasImages() {
		c.state = State{}
		c.clearCache()
		c.emit(Event{Type: EventInfo, Message: "No file opened."})
		return
	}
	if !c.loadIndex(c.state.CurrentIndex, true) {
		c.loadIndex(c.state.CurrentIndex-1, true)
	}
}

func (c *Core) removeCurrent() {
	if !c.state.HasActiveImage {
		return
	}
	index := c.state.CurrentIndex
	name := c.dirs.FileNameAt(index)
	if err := c.dirs.RemoveAt(index); err != nil {
		c.emitError(fmt.Sprintf("Error removing %s: %v", name, err))
		return
	}
	// The manager emits the removal event; retargeting happens when the
	// loop drains it, same as for an external delete.
	c.emit(Event{Type: EventInfo, Message: "File removed: " + name})
}

func (c *Core) copyCurrent(destDir string) {
	if !c.state.HasActiveImage {
		return
	}
	if err := c.dirs.CopyTo(destDir, c.state.CurrentIndex); err != nil {
		c.emitError(fmt.Sprintf("Error copying file to %s: %v", destDir, err))
		return
	}
	c.emit(Event{Type: EventInfo, Message: "File copied to: " + destDir})
}

func (c *Core) moveCurrent(destDir string) {
	if !c.state.HasActiveImage {
		return
	}
	if err := c.dirs.CopyTo(destDir, c.state.CurrentIndex); err != nil {
		c.emitError(fmt.Sprintf("Error moving file to %s: %v", destDir, err))
		return
	}
	c.removeCurrent()
	c.emit(Event{Type: EventInfo, Message: "File moved to: " + destDir})
}

// editCurrent runs a read-modify-write on the selected entry under its
// reservation. The container lock is only held around reserve/lookup and
// release, never across the pixel work. A reservation failure abandons the
// edit for this attempt; it is not retried.
func (c *Core) editCurrent(desc string, op func(img *media.Image) error) {
	if !c.state.HasActiveImage {
		return
	}
	name := c.dirs.FileNameAt(c.state.CurrentIndex)

	c.cache.Lock()
	if !c.cache.Reserve(name) {
		c.cache.Unlock()
		logging.Warn("core: %s: could not reserve %q, skipping", desc, name)
		return
	}
	img := c.cache.Get(name)
	c.cache.Unlock()

	if img == nil {
		// Evicted before we reserved; nothing to edit.
		c.cache.Lock()
		c.cache.Release(name)
		c.cache.Unlock()
		return
	}

	err := op(img)

	c.cache.Lock()
	c.cache.Release(name)
	c.cache.Unlock()

	if err != nil {
		c.emitError("Editing animations and video is not supported.")
		return
	}
	c.displayImage(img)
}

func (c *Core) scalingRequest(width, height int) {
	if !c.state.HasActiveImage || c.state.WaitingForLoader {
		return
	}
	name := c.dirs.FileNameAt(c.state.CurrentIndex)
	c.cache.Lock()
	img := c.cache.Get(name)
	c.cache.Unlock()
	if img == nil {
		return
	}
	c.scaler.RequestScaled(scaler.Request{
		Image:  img,
		Width:  width,
		Height: height,
		Path:   c.dirs.FilePathAt(c.state.CurrentIndex),
	})
}

func (c *Core) updateInfoString() {
	info := fmt.Sprintf("[ %d / %d ]", c.state.CurrentIndex+1, c.dirs.FileCount())
	if !c.state.WaitingForLoader {
		name := c.dirs.FileNameAt(c.state.CurrentIndex)
		c.cache.Lock()
		img := c.cache.Get(name)
		c.cache.Unlock()
		if img != nil {
			info += "   " + img.InfoString()
		}
	}
	c.emit(Event{Type: EventInfo, Message: info})
}
