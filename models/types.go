package models

import (
	"image"
	"time"
)

// RawDetection is one detection as produced by the detector, before label
// mapping. BBox is [x1, y1, x2, y2] in original-image pixel coordinates.
type RawDetection struct {
	ClassIndex int
	Confidence float32
	BBox       [4]int32
}

// DetectionRecord is the display form of a detection. Value equality only.
type DetectionRecord struct {
	Class      string  `json:"class"`
	Confidence float32 `json:"confidence"`
}

// InferenceResult is the output of one analysis request. Detections are
// always sorted by non-increasing confidence before the result is handed
// to a consumer.
type InferenceResult struct {
	AnnotatedImage *image.NRGBA
	Detections     []DetectionRecord
}

// ProcessingTimings collects per-stage durations for one request, logged in
// debug mode.
type ProcessingTimings struct {
	RequestID   string
	ImageDecode time.Duration
	Inference   time.Duration
	Annotate    time.Duration
	Total       time.Duration
}
