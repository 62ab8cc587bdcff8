package scaler

import (
	"image"
	"testing"
	"time"

	"image-viewer/internal/media"
)

func testStill(name string, w, h int) *media.Image {
	return media.NewStatic(name, "/pics/"+name, image.NewRGBA(image.Rect(0, 0, w, h)))
}

func waitResult(t *testing.T, s *Scaler) Result {
	t.Helper()
	select {
	case res := <-s.Results():
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for scale result")
		return Result{}
	}
}

func TestScaleCarriesIdentity(t *testing.T) {
	s := New("bilinear")
	defer s.Close()

	img := testStill("a.jpg", 100, 50)
	s.RequestScaled(Request{Image: img, Width: 50, Height: 25, Path: "/pics/a.jpg"})

	res := waitResult(t, s)
	if res.Request.Path != "/pics/a.jpg" {
		t.Errorf("result identity path = %q", res.Request.Path)
	}
	if b := res.Scaled.Bounds(); b.Dx() != 50 || b.Dy() != 25 {
		t.Errorf("scaled to %dx%d, want 50x25", b.Dx(), b.Dy())
	}
}

func TestSourceNotMutated(t *testing.T) {
	s := New("bilinear")
	defer s.Close()

	src := image.NewRGBA(image.Rect(0, 0, 40, 40))
	img := media.NewStatic("a.jpg", "/pics/a.jpg", src)
	s.RequestScaled(Request{Image: img, Width: 10, Height: 10, Path: "/pics/a.jpg"})
	waitResult(t, s)

	if b := src.Bounds(); b.Dx() != 40 || b.Dy() != 40 {
		t.Error("scaler mutated the source image")
	}
	if got, _ := img.Static(); got != src {
		t.Error("scaler replaced the source image")
	}
}

func TestLatestWinsUnderBurst(t *testing.T) {
	s := New("bilinear")
	defer s.Close()

	img := testStill("a.jpg", 200, 200)
	for i := 1; i <= 20; i++ {
		s.RequestScaled(Request{Image: img, Width: i * 10, Height: i * 10, Path: "/pics/a.jpg"})
	}

	// Drain until quiet; the final result must match the final geometry.
	var last Result
	got := false
	for {
		select {
		case res := <-s.Results():
			last = res
			got = true
		case <-time.After(500 * time.Millisecond):
			if !got {
				t.Fatal("no results delivered")
			}
			if last.Request.Width != 200 || last.Request.Height != 200 {
				t.Errorf("final result is %dx%d, want the latest request 200x200",
					last.Request.Width, last.Request.Height)
			}
			return
		}
	}
}

func TestNonStillSkipped(t *testing.T) {
	s := New("bilinear")
	defer s.Close()

	clip := media.NewClip("v.mp4", "/pics/v.mp4")
	s.RequestScaled(Request{Image: clip, Width: 100, Height: 100, Path: "/pics/v.mp4"})

	select {
	case res := <-s.Results():
		t.Fatalf("unexpected result for a video: %+v", res.Request)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestFilterNames(t *testing.T) {
	for _, name := range []string{"bilinear", "bicubic", "lanczos", "nearest", "unknown-falls-back"} {
		s := New(name)
		img := testStill("a.jpg", 10, 10)
		s.RequestScaled(Request{Image: img, Width: 5, Height: 5, Path: "p"})
		res := waitResult(t, s)
		if b := res.Scaled.Bounds(); b.Dx() != 5 || b.Dy() != 5 {
			t.Errorf("filter %q scaled to %dx%d", name, b.Dx(), b.Dy())
		}
		s.Close()
	}
}
