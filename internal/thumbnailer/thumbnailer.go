// Package thumbnailer produces small preview bitmaps for directory entries.
// It bypasses the main decode/cache pipeline entirely: workers read files
// directly, consult a persistent sqlite store, and deliver thumbnails keyed
// by file name so the consumer can re-resolve the index at completion time.
package thumbnailer

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"os/exec"
	"sync"
	"time"

	"image-viewer/internal/filesystem"
	"image-viewer/internal/logging"
	"image-viewer/internal/media"
	"image-viewer/internal/mediatypes"
	"image-viewer/internal/metrics"
	"image-viewer/internal/workers"

	"github.com/disintegration/imaging"
)

// Thumbnail is a generated preview. Name is the source file name; consumers
// that find it no longer resolves to a directory index discard the
// thumbnail.
type Thumbnail struct {
	Name  string
	Path  string
	Image image.Image
}

// Source is the directory state thumbnail jobs read. *directory.Manager
// satisfies it.
type Source interface {
	FileNameAt(index int) string
	FilePathAt(index int) string
	CheckRange(index int) bool
}

// Thumbnailer runs a pool of workers over an index queue.
type Thumbnailer struct {
	src   Source
	store *Store
	size  int

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []int
	closed bool

	ready chan *Thumbnail
	done  chan struct{}
}

// New creates a Thumbnailer and starts its worker pool. store may be nil to
// run without persistence. workerCap caps the pool; 0 sizes it from
// GOMAXPROCS for mixed read/decode/store work.
func New(src Source, store *Store, size, workerCap int) *Thumbnailer {
	if workerCap <= 0 {
		workerCap = 8
	}
	t := &Thumbnailer{
		src:   src,
		store: store,
		size:  size,
		ready: make(chan *Thumbnail, 64),
		done:  make(chan struct{}),
	}
	t.cond = sync.NewCond(&t.mu)

	n := workers.ForMixed(workerCap)
	logging.Debug("thumbnailer: starting %d workers", n)
	for i := 0; i < n; i++ {
		go t.worker()
	}
	return t
}

// Ready returns the delivery channel.
func (t *Thumbnailer) Ready() <-chan *Thumbnail {
	return t.ready
}

// Generate queues thumbnail jobs for the given directory indices. Indices
// already pending are not queued twice.
func (t *Thumbnailer) Generate(indexes []int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	for _, idx := range indexes {
		if !t.src.CheckRange(idx) {
			continue
		}
		pending := false
		for _, q := range t.queue {
			if q == idx {
				pending = true
				break
			}
		}
		if !pending {
			t.queue = append(t.queue, idx)
		}
	}
	t.cond.Broadcast()
}

// ClearTasks drops all queued jobs. Safe while workers are mid-decode;
// running jobs finish and deliver, the consumer's relevance check is the
// backstop.
func (t *Thumbnailer) ClearTasks() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.queue = nil
}

// Close stops the pool.
func (t *Thumbnailer) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.queue = nil
	t.cond.Broadcast()
	t.mu.Unlock()
	close(t.done)
}

func (t *Thumbnailer) worker() {
	for {
		t.mu.Lock()
		for len(t.queue) == 0 && !t.closed {
			t.cond.Wait()
		}
		if t.closed {
			t.mu.Unlock()
			return
		}
		idx := t.queue[0]
		t.queue = t.queue[1:]
		t.mu.Unlock()

		// The listing may have shifted since the job was queued; the
		// name is resolved now and rechecked by the consumer later.
		name := t.src.FileNameAt(idx)
		path := t.src.FilePathAt(idx)
		if name == "" || path == "" {
			continue
		}

		thumb, err := t.generate(name, path)
		if err != nil {
			logging.Debug("thumbnailer: %s: %v", name, err)
			continue
		}
		select {
		case t.ready <- thumb:
		case <-t.done:
			return
		}
	}
}

func (t *Thumbnailer) generate(name, path string) (*Thumbnail, error) {
	start := time.Now()
	defer func() {
		metrics.ThumbnailDuration.Observe(time.Since(start).Seconds())
	}()

	info, err := filesystem.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat: %w", err)
	}
	mtime := info.ModTime().UnixNano()

	if t.store != nil {
		if data, ok := t.store.Get(path, mtime, t.size); ok {
			img, err := imaging.Decode(bytes.NewReader(data))
			if err == nil {
				metrics.ThumbnailsTotal.WithLabelValues("store").Inc()
				return &Thumbnail{Name: name, Path: path, Image: img}, nil
			}
			logging.Warn("thumbnailer: stored thumbnail for %s is corrupt: %v", path, err)
			if derr := t.store.Delete(path); derr != nil {
				logging.Warn("thumbnailer: %v", derr)
			}
		}
	}

	var src image.Image
	source := "decode"
	if mediatypes.KindOf(path) == mediatypes.KindVideo {
		source = "video"
		src, err = extractVideoFrame(path)
	} else {
		src, err = t.openSource(path)
	}
	if err != nil {
		return nil, err
	}

	thumb := imaging.Fit(src, t.size, t.size, imaging.Lanczos)
	metrics.ThumbnailsTotal.WithLabelValues(source).Inc()

	if t.store != nil {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: 80}); err == nil {
			if err := t.store.Put(path, mtime, t.size, buf.Bytes()); err != nil {
				logging.Warn("thumbnailer: %v", err)
			}
		}
	}

	return &Thumbnail{Name: name, Path: path, Image: thumb}, nil
}

// openSource decodes the source pixels for a still or animated file. Large
// stills go through the vips decode-shrink path when available since the
// target is tiny anyway.
func (t *Thumbnailer) openSource(path string) (image.Image, error) {
	if media.VipsAvailable() {
		if img, err := media.LoadShrunk(path, t.size*2, t.size*2); err == nil {
			return img, nil
		}
	}
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return img, nil
}

// extractVideoFrame pulls a single frame out of a clip with ffmpeg, trying
// one second in first and falling back to the first frame for very short
// clips.
func extractVideoFrame(path string) (image.Image, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}

	frame, err := runFFmpeg(path, true)
	if err != nil {
		frame, err = runFFmpeg(path, false)
	}
	if err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(frame))
	if err != nil {
		return nil, fmt.Errorf("decoding extracted frame: %w", err)
	}
	return img, nil
}

func runFFmpeg(path string, seek bool) ([]byte, error) {
	args := []string{"-i", path}
	if seek {
		args = append([]string{"-ss", "00:00:01"}, args...)
	}
	args = append(args, "-vframes", "1", "-f", "image2pipe", "-vcodec", "png", "-")

	cmd := exec.Command("ffmpeg", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg: %v: %s", err, stderr.String())
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg produced no output for %s", path)
	}
	return stdout.Bytes(), nil
}
