// Package media holds the decoded image model and the decode/edit primitives
// the pipeline works with.
//
// A decoded file is one of three closed variants: a still bitmap, an animated
// frame sequence, or a video clip reference. The variant is fixed at decode
// time; consumers switch on Kind and use the matching accessor.
package media

import (
	"errors"
	"fmt"
	"image"
	"image/gif"
	"os"
	"path/filepath"
	"strings"

	"image-viewer/internal/filesystem"
	"image-viewer/internal/logging"
	"image-viewer/internal/mediatypes"

	"github.com/disintegration/imaging"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	// MaxDimension is the largest width or height decoded at full size.
	// Larger stills are downscaled during load to bound peak memory.
	MaxDimension = 4096

	// MaxPixels caps total decoded pixels (~80MB as RGBA).
	MaxPixels = 20_000_000
)

// Sentinel errors surfaced at the pipeline boundary.
var (
	ErrUnsupported = errors.New("unsupported file type")
	ErrNotEditable = errors.New("only still images can be edited")
)

// Kind discriminates the decoded image variants.
type Kind int

const (
	// KindStatic is a still bitmap.
	KindStatic Kind = iota
	// KindAnimated is a decoded frame sequence.
	KindAnimated
	// KindVideo is a clip reference; pixels are decoded by the player.
	KindVideo
)

// String returns the variant name.
func (k Kind) String() string {
	switch k {
	case KindStatic:
		return "static"
	case KindAnimated:
		return "animated"
	case KindVideo:
		return "video"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Image is an owned decoded media file. Exactly one variant payload is set,
// selected by Kind. Image carries no internal locking: once inserted into
// the cache, mutation requires holding that entry's reservation.
type Image struct {
	name     string
	path     string
	kind     Kind
	fileSize int64
	width    int
	height   int

	static image.Image // KindStatic: current frame, replaced by edits
	edited bool
	anim   *gif.GIF // KindAnimated
}

// NewStatic wraps an already-decoded bitmap as a still Image. Used when the
// pixels did not come from a file decode (pasted content, test fixtures).
func NewStatic(name, path string, img image.Image) *Image {
	b := img.Bounds()
	return &Image{
		name:   name,
		path:   path,
		kind:   KindStatic,
		static: img,
		width:  b.Dx(),
		height: b.Dy(),
	}
}

// NewClip wraps a video path as a clip-reference Image without decoding.
func NewClip(name, path string) *Image {
	return &Image{name: name, path: path, kind: KindVideo}
}

// Open decodes the file at path into an Image. The variant is chosen by
// extension, with a single-frame GIF demoted to a still. Video files are
// never pixel-decoded here; the returned Image only references the clip.
func Open(path string) (*Image, error) {
	info, err := filesystem.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupported)
	}

	m := &Image{
		name:     filepath.Base(path),
		path:     path,
		fileSize: info.Size(),
	}

	switch mediatypes.KindOf(path) {
	case mediatypes.KindStatic:
		return m.decodeStatic()
	case mediatypes.KindAnimated:
		return m.decodeAnimated()
	case mediatypes.KindVideo:
		m.kind = KindVideo
		return m, nil
	default:
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupported)
	}
}

func (m *Image) decodeStatic() (*Image, error) {
	img, err := loadConstrained(m.path, MaxDimension, MaxPixels)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", m.name, err)
	}
	m.kind = KindStatic
	m.static = img
	b := img.Bounds()
	m.width, m.height = b.Dx(), b.Dy()
	return m, nil
}

func (m *Image) decodeAnimated() (*Image, error) {
	f, err := filesystem.Open(m.path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", m.name, err)
	}
	defer f.Close()

	g, err := gif.DecodeAll(f)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", m.name, err)
	}
	if len(g.Image) == 0 {
		return nil, fmt.Errorf("decoding %s: no frames", m.name)
	}

	m.width = g.Config.Width
	m.height = g.Config.Height
	if m.width == 0 || m.height == 0 {
		b := g.Image[0].Bounds()
		m.width, m.height = b.Dx(), b.Dy()
	}

	if len(g.Image) == 1 {
		// Single frame, treat as a still so it stays editable.
		m.kind = KindStatic
		m.static = g.Image[0]
		return m, nil
	}
	m.kind = KindAnimated
	m.anim = g
	return m, nil
}

// loadConstrained decodes a still, downscaling oversized images during or
// after decode. The vips path shrinks at decode time when available; the
// fallback chain is imaging.Open with EXIF orientation, then a plain decode.
func loadConstrained(path string, maxDim, maxPixels int) (image.Image, error) {
	if w, h, err := probeDimensions(path); err == nil {
		if w > maxDim || h > maxDim || w*h > maxPixels {
			tw, th := constrain(w, h, maxDim, maxPixels)
			logging.Info("constraining large image %s from %dx%d to %dx%d", filepath.Base(path), w, h, tw, th)
			if VipsAvailable() {
				if img, err := LoadShrunk(path, tw, th); err == nil {
					return img, nil
				} else {
					logging.Debug("vips decode failed for %s: %v, falling back", path, err)
				}
			}
			img, err := openStill(path)
			if err != nil {
				return nil, err
			}
			return imaging.Fit(img, tw, th, imaging.Lanczos), nil
		}
	}
	return openStill(path)
}

func openStill(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err == nil {
		return img, nil
	}
	logging.Debug("imaging.Open failed for %s: %v, trying plain decode", path, err)

	f, ferr := os.Open(path)
	if ferr != nil {
		return nil, ferr
	}
	defer f.Close()
	img, format, derr := image.Decode(f)
	if derr != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	logging.Debug("decoded %s as %s", path, format)
	return img, nil
}

// probeDimensions reads image dimensions without a full decode.
func probeDimensions(path string) (int, int, error) {
	f, err := filesystem.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}

// constrain computes target dimensions under both the per-axis and total
// pixel limits, preserving aspect ratio.
func constrain(w, h, maxDim, maxPixels int) (int, int) {
	tw, th := w, h
	if tw > maxDim || th > maxDim {
		if tw > th {
			th = th * maxDim / tw
			tw = maxDim
		} else {
			tw = tw * maxDim / th
			th = maxDim
		}
	}
	if tw*th > maxPixels {
		scale := float64(maxPixels) / float64(tw*th)
		tw = int(float64(tw) * scale)
		th = int(float64(th) * scale)
	}
	if tw < 1 {
		tw = 1
	}
	if th < 1 {
		th = 1
	}
	return tw, th
}

// Name returns the file name the image was decoded from. It is the cache key.
func (m *Image) Name() string { return m.name }

// Path returns the absolute source path.
func (m *Image) Path() string { return m.path }

// Kind returns the variant discriminant.
func (m *Image) Kind() Kind { return m.kind }

// Width returns the pixel width, 0 for video.
func (m *Image) Width() int { return m.width }

// Height returns the pixel height, 0 for video.
func (m *Image) Height() int { return m.height }

// FileSize returns the source file size in bytes.
func (m *Image) FileSize() int64 { return m.fileSize }

// Static returns the still bitmap. ok is false for other variants.
func (m *Image) Static() (img image.Image, ok bool) {
	if m.kind != KindStatic {
		return nil, false
	}
	return m.static, true
}

// Animation returns the decoded frame sequence. ok is false for other
// variants.
func (m *Image) Animation() (g *gif.GIF, ok bool) {
	if m.kind != KindAnimated {
		return nil, false
	}
	return m.anim, true
}

// ClipPath returns the clip location for the player. ok is false for other
// variants.
func (m *Image) ClipPath() (path string, ok bool) {
	if m.kind != KindVideo {
		return "", false
	}
	return m.path, true
}

// Edited reports whether the still has been modified since decode.
func (m *Image) Edited() bool { return m.edited }

// SetEdited replaces the still bitmap with an edited version. The caller
// must hold this entry's cache reservation. Returns ErrNotEditable for
// animated and video variants.
func (m *Image) SetEdited(img image.Image) error {
	if m.kind != KindStatic {
		return fmt.Errorf("%s (%s): %w", m.name, m.kind, ErrNotEditable)
	}
	if img == nil {
		return errors.New("nil edited image")
	}
	m.static = img
	b := img.Bounds()
	m.width, m.height = b.Dx(), b.Dy()
	m.edited = true
	return nil
}

// DisplayName returns the name shortened for the info string, keeping the
// head and the tail of very long file names.
func (m *Image) DisplayName() string {
	const limit = 95
	if len(m.name) <= limit {
		return m.name
	}
	return m.name[:limit] + " (...) " + m.name[len(m.name)-12:]
}

// InfoString formats the "name (w x h  size KB)" fragment shown in the
// window title bar.
func (m *Image) InfoString() string {
	var b strings.Builder
	b.WriteString(m.DisplayName())
	fmt.Fprintf(&b, "  (%d x %d  %d KB)", m.width, m.height, m.fileSize/1024)
	return b.String()
}
