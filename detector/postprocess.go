package detector

import (
	"fmt"
	"sort"

	"github.com/GarentEcklesia/ObjectDetectionBrainTumor/models"
)

type decodeConfig struct {
	NumClasses     int
	Anchors        int
	InputSize      int
	OriginalWidth  int
	OriginalHeight int
	ConfThreshold  float32
	IoUThreshold   float32
}

// decodePredictions converts a flattened (1, 4+C, anchors) YOLO output
// tensor into detections in original-image coordinates. The confidence
// threshold is applied here, exactly once: detections at or above the
// threshold survive. The result is sorted by descending confidence, ties in
// anchor order, and then deduplicated by IoU suppression.
func decodePredictions(predictions []float32, cfg decodeConfig) ([]models.RawDetection, error) {
	expected := (4 + cfg.NumClasses) * cfg.Anchors
	if len(predictions) != expected {
		return nil, fmt.Errorf("unexpected predictions length: got %d, want %d", len(predictions), expected)
	}

	detections := make([]models.RawDetection, 0, 64)
	for i := 0; i < cfg.Anchors; i++ {
		best := 0
		bestScore := predictions[4*cfg.Anchors+i]
		for c := 1; c < cfg.NumClasses; c++ {
			if score := predictions[(4+c)*cfg.Anchors+i]; score > bestScore {
				best, bestScore = c, score
			}
		}
		if bestScore < cfg.ConfThreshold {
			continue
		}

		bbox := scaleBBox(
			predictions[i],
			predictions[cfg.Anchors+i],
			predictions[2*cfg.Anchors+i],
			predictions[3*cfg.Anchors+i],
			cfg,
		)
		detections = append(detections, models.RawDetection{
			ClassIndex: best,
			Confidence: bestScore,
			BBox:       bbox,
		})
	}

	sort.SliceStable(detections, func(i, j int) bool {
		return detections[i].Confidence > detections[j].Confidence
	})
	return suppressOverlaps(detections, cfg.IoUThreshold), nil
}

// scaleBBox converts a center/size box in model-input pixels to a clamped
// corner box in original-image pixels.
func scaleBBox(centerX, centerY, width, height float32, cfg decodeConfig) [4]int32 {
	scaleX := float32(cfg.OriginalWidth) / float32(cfg.InputSize)
	scaleY := float32(cfg.OriginalHeight) / float32(cfg.InputSize)

	x1 := (centerX - width/2) * scaleX
	y1 := (centerY - height/2) * scaleY
	x2 := (centerX + width/2) * scaleX
	y2 := (centerY + height/2) * scaleY

	return [4]int32{
		int32(clamp(x1, 0, float32(cfg.OriginalWidth))),
		int32(clamp(y1, 0, float32(cfg.OriginalHeight))),
		int32(clamp(x2, 0, float32(cfg.OriginalWidth))),
		int32(clamp(y2, 0, float32(cfg.OriginalHeight))),
	}
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// suppressOverlaps keeps, in confidence order, every detection that does not
// overlap an already-kept detection of the same class beyond iouThreshold.
// Because suppressors always outrank the suppressed, raising the confidence
// threshold can only shrink the surviving set.
func suppressOverlaps(sorted []models.RawDetection, iouThreshold float32) []models.RawDetection {
	kept := make([]models.RawDetection, 0, len(sorted))
	for _, d := range sorted {
		suppressed := false
		for _, k := range kept {
			if k.ClassIndex == d.ClassIndex && boxIoU(k.BBox, d.BBox) > iouThreshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, d)
		}
	}
	return kept
}

func boxIoU(a, b [4]int32) float32 {
	interX1 := maxInt32(a[0], b[0])
	interY1 := maxInt32(a[1], b[1])
	interX2 := minInt32(a[2], b[2])
	interY2 := minInt32(a[3], b[3])

	interW := interX2 - interX1
	interH := interY2 - interY1
	if interW <= 0 || interH <= 0 {
		return 0
	}
	inter := float32(interW) * float32(interH)

	areaA := float32(a[2]-a[0]) * float32(a[3]-a[1])
	areaB := float32(b[2]-b[0]) * float32(b[3]-b[1])
	union := areaA + areaB - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func maxInt32(a, b int32) int32 {
	if a > b {
		return a
	}
	return b
}

func minInt32(a, b int32) int32 {
	if a < b {
		return a
	}
	return b
}
