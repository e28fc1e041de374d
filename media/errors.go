package media

import "errors"

// Typed failures of the media normalizer. Each is recoverable at the
// boundary where it occurs; callers match with errors.Is.
var (
	// ErrDecode means the supplied bytes are not a supported raster format.
	ErrDecode = errors.New("unsupported or corrupt image data")

	// ErrAssetMissing means a bundled example image is unknown or absent.
	// Absence of an example is non-fatal to the rest of the library.
	ErrAssetMissing = errors.New("example image not available")

	// ErrVideoOpen means the video container could not be opened.
	ErrVideoOpen = errors.New("failed to open video file")

	// ErrEmptyVideo means the container opened but holds no frames.
	ErrEmptyVideo = errors.New("video has no frames")

	// ErrFrameRead means seeking/decoding the selected frame failed.
	ErrFrameRead = errors.New("failed to extract the selected frame")
)
