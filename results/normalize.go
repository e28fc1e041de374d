package results

import (
	"image"
	"sort"

	"github.com/GarentEcklesia/ObjectDetectionBrainTumor/models"
)

// Normalize converts raw detections into labeled records sorted by
// non-increasing confidence. Ties keep their input order.
func Normalize(raws []models.RawDetection, labels []string) []models.DetectionRecord {
	records := make([]models.DetectionRecord, 0, len(raws))
	for _, d := range raws {
		records = append(records, models.DetectionRecord{
			Class:      Label(d.ClassIndex, labels),
			Confidence: d.Confidence,
		})
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Confidence > records[j].Confidence
	})
	return records
}

// Build produces the complete result for one analysis: the annotated image
// and the ordered detection records.
func Build(img image.Image, raws []models.RawDetection, labels []string) *models.InferenceResult {
	return &models.InferenceResult{
		AnnotatedImage: Annotate(img, raws, labels),
		Detections:     Normalize(raws, labels),
	}
}
