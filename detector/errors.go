package detector

import "errors"

// Typed failures of the gateway. All are reported to the caller rather than
// terminating the process; callers match with errors.Is.
var (
	// ErrCapabilityUnavailable means the ONNX runtime shared library could
	// not be initialized at all.
	ErrCapabilityUnavailable = errors.New("onnx runtime is not available")

	// ErrModelNotFound means the configured model path does not resolve to
	// an existing file.
	ErrModelNotFound = errors.New("model file not found")

	// ErrModelLoad covers any other initialization failure; the underlying
	// message is preserved in the wrap.
	ErrModelLoad = errors.New("failed to load model")

	// ErrBusy means every inference session was occupied for the whole
	// acquire timeout.
	ErrBusy = errors.New("no inference session available")

	// ErrClosed means the handle was closed while the request held it,
	// typically by a concurrent model reload.
	ErrClosed = errors.New("detector is closed")
)
