// Package mediatypes classifies file paths into the media kinds the viewer
// understands. Classification is extension based; the decoder makes the
// final call (a single-frame GIF is demoted to a still at decode time).
package mediatypes

import (
	"path/filepath"
	"strings"
)

// Kind is the media kind of a directory entry or path.
type Kind string

const (
	// KindStatic is a still image.
	KindStatic Kind = "static"
	// KindAnimated is an animated image (frame sequence).
	KindAnimated Kind = "animated"
	// KindVideo is a video clip.
	KindVideo Kind = "video"
	// KindOther is anything the viewer does not handle.
	KindOther Kind = "other"
)

// StaticExtensions maps extensions of still image formats the decoder accepts.
var StaticExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
	".webp": true,
	".tiff": true,
	".tif":  true,
}

// AnimatedExtensions maps extensions that may carry a frame sequence.
var AnimatedExtensions = map[string]bool{
	".gif": true,
}

// VideoExtensions maps extensions of supported video clips.
var VideoExtensions = map[string]bool{
	".mp4":  true,
	".mkv":  true,
	".webm": true,
	".avi":  true,
	".mov":  true,
	".m4v":  true,
}

// KindForExt returns the Kind for a file extension. The extension should be
// lowercase and include the leading dot (e.g. ".jpg").
func KindForExt(ext string) Kind {
	if StaticExtensions[ext] {
		return KindStatic
	}
	if AnimatedExtensions[ext] {
		return KindAnimated
	}
	if VideoExtensions[ext] {
		return KindVideo
	}
	return KindOther
}

// KindOf classifies a path by its extension.
func KindOf(path string) Kind {
	return KindForExt(strings.ToLower(filepath.Ext(path)))
}

// IsSupported reports whether the path has a supported media extension.
func IsSupported(path string) bool {
	return KindOf(path) != KindOther
}
