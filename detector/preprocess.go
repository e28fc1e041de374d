package detector

import (
	"image"

	"github.com/disintegration/imaging"
)

// fillInput resizes img to the model's square input and writes it into dst
// as planar NCHW float32 in [0, 1], R plane first. dst must hold
// size*size*3 values.
func fillInput(img image.Image, dst []float32, size int) {
	resized := imaging.Resize(img, size, size, imaging.Linear)
	channelSize := size * size

	for y := 0; y < size; y++ {
		offset := y * size
		for x := 0; x < size; x++ {
			i := offset + x
			r, g, b, _ := resized.At(x, y).RGBA()
			dst[i] = float32(r>>8) / 255.0
			dst[channelSize+i] = float32(g>>8) / 255.0
			dst[channelSize*2+i] = float32(b>>8) / 255.0
		}
	}
}
