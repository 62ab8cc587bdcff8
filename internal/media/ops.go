package media

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// Scale resizes a still to the exact target size. The source image is never
// modified; callers apply the result with SetEdited under a cache
// reservation.
func Scale(img image.Image, width, height int) image.Image {
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	return imaging.Resize(img, width, height, imaging.Linear)
}

// Rotate returns the image rotated by the given degrees, positive values
// rotating clockwise. Right angles use lossless transposes; anything else
// rasterizes onto a transparent background.
func Rotate(img image.Image, degrees int) image.Image {
	deg := degrees % 360
	if deg < 0 {
		deg += 360
	}
	switch deg {
	case 0:
		return img
	case 90:
		return imaging.Rotate270(img)
	case 180:
		return imaging.Rotate180(img)
	case 270:
		return imaging.Rotate90(img)
	default:
		return imaging.Rotate(img, float64(-deg), color.Transparent)
	}
}
