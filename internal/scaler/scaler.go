// Package scaler rescales decoded stills to display size on a background
// goroutine. Results carry a copy of the originating request so the consumer
// can match them against the currently displayed path; a stale result is the
// consumer's to discard, the scaler does not chase cancellations.
package scaler

import (
	"image"
	"sync"
	"time"

	"image-viewer/internal/logging"
	"image-viewer/internal/media"
	"image-viewer/internal/metrics"

	"github.com/nfnt/resize"
)

// Request identifies one rescale: the source image, the target size, and the
// source path used purely as an identity tag.
type Request struct {
	Image  *media.Image
	Width  int
	Height int
	Path   string
}

// Result pairs the scaled bitmap with the request that produced it.
type Result struct {
	Request Request
	Scaled  image.Image
}

// Scaler holds a single pending slot: a newer request overwrites an older
// one that has not started yet, so a burst of viewport resizes collapses to
// the latest geometry.
type Scaler struct {
	filter resize.InterpolationFunction

	mu      sync.Mutex
	cond    *sync.Cond
	pending *Request
	closed  bool

	results chan Result
	done    chan struct{}
}

// filterFor maps a config filter name to an interpolation function. The
// default is bilinear, the fixed interactive-resize tradeoff.
func filterFor(name string) resize.InterpolationFunction {
	switch name {
	case "bicubic":
		return resize.Bicubic
	case "lanczos":
		return resize.Lanczos3
	case "nearest":
		return resize.NearestNeighbor
	default:
		return resize.Bilinear
	}
}

// New creates a Scaler and starts its worker.
func New(filterName string) *Scaler {
	s := &Scaler{
		filter:  filterFor(filterName),
		results: make(chan Result, 4),
		done:    make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	go s.worker()
	return s
}

// Results returns the result channel.
func (s *Scaler) Results() <-chan Result {
	return s.results
}

// RequestScaled queues a rescale, superseding any not-yet-started request.
// The source image is read, never mutated.
func (s *Scaler) RequestScaled(req Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.pending = &req
	s.cond.Signal()
}

// Close stops the worker.
func (s *Scaler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.cond.Signal()
	s.mu.Unlock()
	close(s.done)
}

func (s *Scaler) worker() {
	for {
		s.mu.Lock()
		for s.pending == nil && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			s.mu.Unlock()
			return
		}
		req := *s.pending
		s.pending = nil
		s.mu.Unlock()

		res, ok := s.scale(req)
		if !ok {
			continue
		}
		select {
		case s.results <- res:
		case <-s.done:
			return
		}
	}
}

func (s *Scaler) scale(req Request) (Result, bool) {
	src, ok := req.Image.Static()
	if !ok {
		// Animated frames and video are sized by their players.
		logging.Debug("scaler: skipping non-still %s", req.Path)
		return Result{}, false
	}
	if req.Width < 1 || req.Height < 1 {
		logging.Warn("scaler: dropping degenerate request %dx%d for %s", req.Width, req.Height, req.Path)
		return Result{}, false
	}

	start := time.Now()
	scaled := resize.Resize(uint(req.Width), uint(req.Height), src, s.filter)
	metrics.ScaleDuration.Observe(time.Since(start).Seconds())
	metrics.ScaleOperationsTotal.Inc()

	return Result{Request: req, Scaled: scaled}, true
}
