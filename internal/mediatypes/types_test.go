package mediatypes

import "testing"

func TestKindForExt(t *testing.T) {
	tests := []struct {
		ext  string
		want Kind
	}{
		{".jpg", KindStatic},
		{".jpeg", KindStatic},
		{".png", KindStatic},
		{".webp", KindStatic},
		{".tif", KindStatic},
		{".gif", KindAnimated},
		{".mp4", KindVideo},
		{".webm", KindVideo},
		{".txt", KindOther},
		{".JPG", KindOther}, // callers must lowercase
		{"", KindOther},
	}

	for _, tt := range tests {
		if got := KindForExt(tt.ext); got != tt.want {
			t.Errorf("KindForExt(%q) = %q, want %q", tt.ext, got, tt.want)
		}
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		path string
		want Kind
	}{
		{"/media/photos/cat.jpg", KindStatic},
		{"/media/photos/CAT.JPG", KindStatic}, // KindOf lowercases
		{"banner.GIF", KindAnimated},
		{"clip.mkv", KindVideo},
		{"notes.txt", KindOther},
		{"noextension", KindOther},
		{".hidden", KindOther},
	}

	for _, tt := range tests {
		if got := KindOf(tt.path); got != tt.want {
			t.Errorf("KindOf(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestIsSupported(t *testing.T) {
	if !IsSupported("a.png") {
		t.Error("expected a.png to be supported")
	}
	if IsSupported("a.doc") {
		t.Error("expected a.doc to be unsupported")
	}
}
