package media

import (
	"fmt"
	"image"
)

// SourceKind tags which input variant a Source carries.
type SourceKind int

const (
	SourceUploadedImage SourceKind = iota
	SourceExampleImage
	SourceVideoFrame
)

// Source is the tagged union of input sources accepted by the pipeline.
// Exactly one variant's fields are meaningful, selected by Kind.
type Source struct {
	Kind SourceKind

	// SourceUploadedImage
	ImageData []byte

	// SourceExampleImage
	ExampleName string

	// SourceVideoFrame
	VideoData  []byte
	FrameIndex int
}

// Normalize converts any input source into one canonical still image.
func Normalize(src Source, examples *ExampleLibrary) (*image.NRGBA, error) {
	switch src.Kind {
	case SourceUploadedImage:
		return DecodeImage(src.ImageData)
	case SourceExampleImage:
		return examples.Open(src.ExampleName)
	case SourceVideoFrame:
		img, _, err := ExtractFrame(src.VideoData, src.FrameIndex)
		return img, err
	default:
		return nil, fmt.Errorf("unknown source kind %d", src.Kind)
	}
}
