package media

import (
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writePNG(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: uint8(x), A: 255})
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	return path
}

func writeGIF(t *testing.T, dir, name string, frames int) string {
	t.Helper()
	g := &gif.GIF{}
	pal := color.Palette{color.Black, color.White}
	for i := 0; i < frames; i++ {
		g.Image = append(g.Image, image.NewPaletted(image.Rect(0, 0, 8, 8), pal))
		g.Delay = append(g.Delay, 10)
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := gif.EncodeAll(f, g); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestOpenStatic(t *testing.T) {
	path := writePNG(t, t.TempDir(), "still.png", 20, 10)

	m, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if m.Kind() != KindStatic {
		t.Fatalf("Kind = %v, want KindStatic", m.Kind())
	}
	if m.Width() != 20 || m.Height() != 10 {
		t.Errorf("dimensions = %dx%d, want 20x10", m.Width(), m.Height())
	}
	if m.Name() != "still.png" {
		t.Errorf("Name = %q", m.Name())
	}
	if m.FileSize() <= 0 {
		t.Error("FileSize not recorded")
	}
	if _, ok := m.Static(); !ok {
		t.Error("Static() not available for still")
	}
	if _, ok := m.Animation(); ok {
		t.Error("Animation() available for still")
	}
	if _, ok := m.ClipPath(); ok {
		t.Error("ClipPath() available for still")
	}
}

func TestOpenAnimated(t *testing.T) {
	path := writeGIF(t, t.TempDir(), "anim.gif", 3)

	m, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if m.Kind() != KindAnimated {
		t.Fatalf("Kind = %v, want KindAnimated", m.Kind())
	}
	g, ok := m.Animation()
	if !ok {
		t.Fatal("Animation() not available")
	}
	if len(g.Image) != 3 {
		t.Errorf("frames = %d, want 3", len(g.Image))
	}
	if err := m.SetEdited(image.NewRGBA(image.Rect(0, 0, 1, 1))); err == nil {
		t.Error("SetEdited on animated image succeeded, want ErrNotEditable")
	}
}

func TestOpenSingleFrameGIFIsStatic(t *testing.T) {
	path := writeGIF(t, t.TempDir(), "single.gif", 1)

	m, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if m.Kind() != KindStatic {
		t.Errorf("Kind = %v, want KindStatic for single-frame gif", m.Kind())
	}
}

func TestOpenVideoIsReference(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clip.mp4")
	if err := os.WriteFile(path, []byte("not really a video"), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if m.Kind() != KindVideo {
		t.Fatalf("Kind = %v, want KindVideo", m.Kind())
	}
	clip, ok := m.ClipPath()
	if !ok || clip != path {
		t.Errorf("ClipPath = %q, %v", clip, ok)
	}
	if err := m.SetEdited(image.NewRGBA(image.Rect(0, 0, 1, 1))); err == nil {
		t.Error("SetEdited on video succeeded, want ErrNotEditable")
	}
}

func TestOpenUnsupported(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte("hi"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Open(path); err == nil {
		t.Error("Open succeeded on unsupported file")
	}
	if _, err := Open(filepath.Join(dir, "missing.png")); err == nil {
		t.Error("Open succeeded on missing file")
	}
	if _, err := Open(dir); err == nil {
		t.Error("Open succeeded on a directory")
	}
}

func TestOpenCorruptStill(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.jpg")
	if err := os.WriteFile(path, []byte("this is not a jpeg"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path); err == nil {
		t.Error("Open succeeded on corrupt jpeg")
	}
}

func TestSetEdited(t *testing.T) {
	path := writePNG(t, t.TempDir(), "a.png", 10, 10)
	m, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}

	if m.Edited() {
		t.Error("fresh image reports edited")
	}
	if err := m.SetEdited(image.NewRGBA(image.Rect(0, 0, 5, 7))); err != nil {
		t.Fatalf("SetEdited: %v", err)
	}
	if !m.Edited() {
		t.Error("Edited() = false after SetEdited")
	}
	if m.Width() != 5 || m.Height() != 7 {
		t.Errorf("dimensions after edit = %dx%d, want 5x7", m.Width(), m.Height())
	}
	if err := m.SetEdited(nil); err == nil {
		t.Error("SetEdited(nil) succeeded")
	}
}

func TestDisplayNameTruncation(t *testing.T) {
	m := &Image{name: "short.png"}
	if m.DisplayName() != "short.png" {
		t.Errorf("DisplayName = %q", m.DisplayName())
	}

	long := strings.Repeat("x", 120) + ".png"
	m = &Image{name: long}
	got := m.DisplayName()
	if !strings.Contains(got, "(...)") {
		t.Errorf("long DisplayName not truncated: %q", got)
	}
	if !strings.HasSuffix(got, long[len(long)-12:]) {
		t.Errorf("DisplayName lost the tail: %q", got)
	}
}

func TestConstrain(t *testing.T) {
	tests := []struct {
		name       string
		w, h       int
		maxDim     int
		maxPixels  int
		wantWithin bool
	}{
		{"fits", 100, 100, 4096, 20_000_000, true},
		{"wide", 10000, 100, 4096, 20_000_000, true},
		{"tall", 100, 10000, 4096, 20_000_000, true},
		{"pixel bound", 4000, 4000, 4096, 1_000_000, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := constrain(tt.w, tt.h, tt.maxDim, tt.maxPixels)
			if w > tt.maxDim || h > tt.maxDim {
				t.Errorf("constrain(%d, %d) = %dx%d exceeds max dimension", tt.w, tt.h, w, h)
			}
			if w*h > tt.maxPixels {
				t.Errorf("constrain(%d, %d) = %dx%d exceeds pixel budget", tt.w, tt.h, w, h)
			}
			if w < 1 || h < 1 {
				t.Errorf("constrain(%d, %d) = %dx%d collapsed", tt.w, tt.h, w, h)
			}
		})
	}
}
