// Package media turns user-supplied input (uploaded image bytes, a bundled
// example image, or one frame of an uploaded video) into a single canonical
// still image. The canonical in-memory format everywhere downstream is
// *image.NRGBA, R first.
package media

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
)

// DecodeImage decodes raw PNG/JPEG bytes into the canonical format.
func DecodeImage(data []byte) (*image.NRGBA, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return imaging.Clone(img), nil
}
