// Package loader decodes media files off the sequencing goroutine and
// delivers completions as events. It enforces the exclusivity contract: at
// most one exclusive decode is wanted at a time, and submitting a new one
// cancels whatever was running or pending before it.
package loader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"image-viewer/internal/logging"
	"image-viewer/internal/media"
	"image-viewer/internal/memory"
	"image-viewer/internal/metrics"
)

// Result is a decode completion. Image is nil when the decode failed; a
// Result is always delivered so consumers can drop their waiting state.
type Result struct {
	Path  string
	Image *media.Image
	Err   error
}

// Loader runs decode tasks on a single worker goroutine. Exclusive tasks
// preempt the pending slot and cancel the running decode; preload tasks
// queue FIFO behind it and may be silently superseded.
type Loader struct {
	mon *memory.Monitor

	mu        sync.Mutex
	cond      *sync.Cond
	exclusive *task   // pending exclusive task, nil if none
	queue     []*task // pending preloads
	cancel    context.CancelFunc
	closed    bool

	results chan Result
	done    chan struct{}
}

type task struct {
	path      string
	exclusive bool
}

// New creates a Loader and starts its worker. mon may be nil to disable
// memory backpressure.
func New(mon *memory.Monitor) *Loader {
	l := &Loader{
		mon:     mon,
		results: make(chan Result, 16),
		done:    make(chan struct{}),
	}
	l.cond = sync.NewCond(&l.mu)
	go l.worker()
	return l
}

// Completed returns the completion event channel. Events arrive in the
// order work finished, which is not necessarily request order.
func (l *Loader) Completed() <-chan Result {
	return l.results
}

// Load queues a low-priority preload. Duplicate pending paths are dropped.
func (l *Loader) Load(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	if l.exclusive != nil && l.exclusive.path == path {
		return
	}
	for _, t := range l.queue {
		if t.path == path {
			return
		}
	}
	l.queue = append(l.queue, &task{path: path})
	l.cond.Signal()
}

// LoadExclusive replaces any pending exclusive task and cancels the running
// decode, then queues path with top priority. The superseded task's result,
// if it still arrives, is filtered out by the consumer's relevance check.
func (l *Loader) LoadExclusive(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.exclusive = &task{path: path, exclusive: true}
	if l.cancel != nil {
		l.cancel()
	}
	l.cond.Signal()
}

// LoadBlocking decodes path on the calling goroutine and returns the image,
// nil on failure. The same completion event as the asynchronous variants is
// still published so downstream handling stays uniform.
func (l *Loader) LoadBlocking(path string) *media.Image {
	res := decode(context.Background(), l.mon, path)
	l.deliver(res)
	return res.Image
}

// ClearTasks drops all queued work and cancels the running decode. Safe to
// call while tasks are executing; an in-flight decode may still deliver its
// completion, which relevance filtering discards.
func (l *Loader) ClearTasks() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.exclusive = nil
	l.queue = nil
	if l.cancel != nil {
		l.cancel()
	}
}

// Close stops the worker. Pending tasks are dropped.
func (l *Loader) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.exclusive = nil
	l.queue = nil
	if l.cancel != nil {
		l.cancel()
	}
	l.cond.Signal()
	l.mu.Unlock()
	close(l.done)
}

func (l *Loader) worker() {
	for {
		l.mu.Lock()
		for l.exclusive == nil && len(l.queue) == 0 && !l.closed {
			l.cond.Wait()
		}
		if l.closed {
			l.mu.Unlock()
			return
		}
		var t *task
		if l.exclusive != nil {
			t = l.exclusive
			l.exclusive = nil
		} else {
			t = l.queue[0]
			l.queue = l.queue[1:]
		}
		ctx, cancel := context.WithCancel(context.Background())
		l.cancel = cancel
		l.mu.Unlock()

		res := decode(ctx, l.mon, t.path)

		l.mu.Lock()
		l.cancel = nil
		l.mu.Unlock()
		cancel()

		if res.Err == context.Canceled {
			// Cancelled before work began; nothing to report.
			metrics.DecodesTotal.WithLabelValues("cancelled").Inc()
			continue
		}
		l.deliver(res)
	}
}

func (l *Loader) deliver(res Result) {
	select {
	case l.results <- res:
	case <-l.done:
	}
}

// decode runs one decode task. Panics at this boundary (allocation failure
// on a pathological file) are converted into a decode-failure Result instead
// of taking down the process.
func decode(ctx context.Context, mon *memory.Monitor, path string) (res Result) {
	res.Path = path

	defer func() {
		if r := recover(); r != nil {
			logging.Error("decode of %s panicked: %v", path, r)
			res.Image = nil
			res.Err = fmt.Errorf("decoding %s: %v", path, r)
			metrics.DecodesTotal.WithLabelValues("error").Inc()
		}
	}()

	if mon != nil && !mon.WaitIfPaused() {
		res.Err = context.Canceled
		return res
	}
	if ctx.Err() != nil {
		res.Err = context.Canceled
		return res
	}

	start := time.Now()
	img, err := media.Open(path)
	metrics.DecodeDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		logging.Warn("decode failed for %s: %v", path, err)
		metrics.DecodesTotal.WithLabelValues("error").Inc()
		res.Err = err
		return res
	}

	metrics.DecodesTotal.WithLabelValues("success").Inc()
	res.Image = img
	return res
}
