package media

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

// DisplaySize is the edge length of the square gallery thumbnails.
const DisplaySize = 256

// PadToSize scales img to fit a w×h box, preserving aspect ratio (never
// cropping or stretching), and pastes it centered on a black canvas of
// exactly that size. Pure and deterministic; the input is not modified.
func PadToSize(img image.Image, w, h int) *image.NRGBA {
	canvas := imaging.New(w, h, color.NRGBA{A: 255})

	srcW := img.Bounds().Dx()
	srcH := img.Bounds().Dy()
	if srcW == 0 || srcH == 0 {
		return canvas
	}

	scale := math.Min(float64(w)/float64(srcW), float64(h)/float64(srcH))
	dstW := int(math.Round(float64(srcW) * scale))
	dstH := int(math.Round(float64(srcH) * scale))
	resized := imaging.Resize(img, dstW, dstH, imaging.Lanczos)

	return imaging.PasteCenter(canvas, resized)
}

// PadForDisplay pads img to the standard gallery size.
func PadForDisplay(img image.Image) *image.NRGBA {
	return PadToSize(img, DisplaySize, DisplaySize)
}
