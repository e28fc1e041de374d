package results

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/GarentEcklesia/ObjectDetectionBrainTumor/models"
)

var labelFont *truetype.Font

func init() {
	var err error
	labelFont, err = truetype.Parse(goregular.TTF)
	if err != nil {
		panic(err)
	}
}

// Annotate draws each detection's bounding box and a "<label> <confidence>"
// tag onto a copy of img, colored by class. The input image is never
// modified; the result is in the same canonical channel order as every other
// image in the pipeline.
func Annotate(img image.Image, raws []models.RawDetection, labels []string) *image.NRGBA {
	if len(raws) == 0 {
		return imaging.Clone(img)
	}

	dc := gg.NewContextForImage(img)
	fontSize := labelFontSize(img)
	dc.SetFontFace(truetype.NewFace(labelFont, &truetype.Options{Size: fontSize}))

	for _, det := range raws {
		label := Label(det.ClassIndex, labels)
		col := classColor(label)
		x1 := float64(det.BBox[0])
		y1 := float64(det.BBox[1])
		x2 := float64(det.BBox[2])
		y2 := float64(det.BBox[3])

		dc.SetColor(col)
		dc.SetLineWidth(2)
		dc.DrawRectangle(x1, y1, x2-x1, y2-y1)
		dc.Stroke()

		caption := fmt.Sprintf("%s %.2f", label, det.Confidence)
		textW, textH := dc.MeasureString(caption)
		tagY := y1 - textH - 6
		if tagY < 0 {
			tagY = y1
		}
		dc.DrawRectangle(x1, tagY, textW+8, textH+6)
		dc.Fill()

		dc.SetColor(color.White)
		dc.DrawString(caption, x1+4, tagY+textH+1)
	}

	return imaging.Clone(dc.Image())
}

// labelFontSize scales the caption with the image so labels stay readable on
// large scans without swamping small ones.
func labelFontSize(img image.Image) float64 {
	size := float64(img.Bounds().Dx()) / 40
	if size < 12 {
		size = 12
	}
	return size
}
