package media

import (
	"fmt"
	"image"
	"os"

	"github.com/disintegration/imaging"
	"gocv.io/x/gocv"
)

// ExtractFrame materializes the uploaded video bytes into a temporary file,
// opens it as a video source and decodes the frame at frameIndex. The index
// is clamped to [0, total-1]: the frame-selection UI asks for frame 0 before
// it knows the real frame count, so an out-of-range index yields the last
// frame rather than an error.
//
// The total frame count is returned whenever it is known, including on a
// frame-read failure, so a caller can still render a valid selection range.
// The temporary file is removed on every exit path.
func ExtractFrame(video []byte, frameIndex int) (*image.NRGBA, int, error) {
	tmp, err := os.CreateTemp("", "scan-video-*.mp4")
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrVideoOpen, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(video); err != nil {
		tmp.Close()
		return nil, 0, fmt.Errorf("%w: %v", ErrVideoOpen, err)
	}
	if err := tmp.Close(); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrVideoOpen, err)
	}

	capture, err := gocv.VideoCaptureFile(tmpPath)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrVideoOpen, err)
	}
	defer capture.Close()

	total := int(capture.Get(gocv.VideoCaptureFrameCount))
	if total <= 0 {
		return nil, 0, ErrEmptyVideo
	}

	if frameIndex < 0 {
		frameIndex = 0
	}
	if frameIndex > total-1 {
		frameIndex = total - 1
	}
	capture.Set(gocv.VideoCapturePosFrames, float64(frameIndex))

	frame := gocv.NewMat()
	defer frame.Close()
	if !capture.Read(&frame) || frame.Empty() {
		return nil, total, fmt.Errorf("%w: frame %d of %d", ErrFrameRead, frameIndex, total)
	}

	// ToImage converts the BGR frame into RGB order.
	img, err := frame.ToImage()
	if err != nil {
		return nil, total, fmt.Errorf("%w: %v", ErrFrameRead, err)
	}
	return imaging.Clone(img), total, nil
}
