// Package results converts raw detector output into display-ready records:
// labeled, ordered by confidence, and burned into an annotated copy of the
// analyzed image.
package results

import (
	"fmt"
	"image/color"
)

// DefaultClassNames is the class-index order the bundled model was exported
// with. The ordering is a configuration contract with the model: if it does
// not match the training labels, every reported class will be wrong.
var DefaultClassNames = []string{"Glioma", "Meningioma", "No Tumor", "Pituitary"}

// Label maps a class index to its label. An index outside the known set
// yields an explicit unknown label instead of an error, so one bad index
// never fails a whole batch.
func Label(idx int, labels []string) string {
	if idx < 0 || idx >= len(labels) {
		return fmt.Sprintf("Unknown (%d)", idx)
	}
	return labels[idx]
}

// ClassInfo describes one known class for the UI.
type ClassInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Color       string `json:"color"`
}

// Classes returns the known class set with the descriptions and palette
// shown alongside results.
func Classes() []ClassInfo {
	return []ClassInfo{
		{
			Name:        "Glioma",
			Description: "A malignant tumor growing from the supporting (glial) tissue inside the brain. Tends to infiltrate surrounding normal tissue.",
			Color:       "#f44336",
		},
		{
			Name:        "Meningioma",
			Description: "A tumor growing on the membranes (meninges) lining the brain. Usually benign and slow-growing.",
			Color:       "#4caf50",
		},
		{
			Name:        "No Tumor",
			Description: "The model did not detect any significant tumor mass in the analyzed scan.",
			Color:       "#2196f3",
		},
		{
			Name:        "Pituitary",
			Description: "Abnormal cell growth on the pituitary gland, a gland at the base of the brain that regulates key hormones.",
			Color:       "#ff9800",
		},
	}
}

var classColors = map[string]color.NRGBA{
	"Glioma":     {R: 0xf4, G: 0x43, B: 0x36, A: 0xff},
	"Meningioma": {R: 0x4c, G: 0xaf, B: 0x50, A: 0xff},
	"No Tumor":   {R: 0x21, G: 0x96, B: 0xf3, A: 0xff},
	"Pituitary":  {R: 0xff, G: 0x98, B: 0x00, A: 0xff},
}

// classColor returns the box color for a label; unknown labels are gray.
func classColor(label string) color.NRGBA {
	if c, ok := classColors[label]; ok {
		return c
	}
	return color.NRGBA{R: 0x9e, G: 0x9e, B: 0x9e, A: 0xff}
}
