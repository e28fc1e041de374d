package media

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
)

// exampleFiles maps logical example names to their bundled filenames. The
// name order below is the display order of the gallery.
var exampleFiles = map[string]string{
	"Glioma":     "glioma.jpg",
	"Meningioma": "meningioma.jpg",
	"Pituitary":  "pituitary.jpg",
	"No Tumor":   "no tumor.jpg",
}

var exampleOrder = []string{"Glioma", "Meningioma", "Pituitary", "No Tumor"}

// ExampleLibrary resolves logical example names against a directory of
// bundled scan images. A missing file surfaces as ErrAssetMissing on Open
// but never prevents the rest of the library from working.
type ExampleLibrary struct {
	dir string
}

// NewExampleLibrary creates a library rooted at dir.
func NewExampleLibrary(dir string) *ExampleLibrary {
	return &ExampleLibrary{dir: dir}
}

// Names returns every logical example name in display order, whether or not
// the backing file is present.
func (l *ExampleLibrary) Names() []string {
	out := make([]string, len(exampleOrder))
	copy(out, exampleOrder)
	return out
}

// Available returns the subset of example names whose backing file exists.
func (l *ExampleLibrary) Available() []string {
	out := make([]string, 0, len(exampleOrder))
	for _, name := range exampleOrder {
		if _, err := os.Stat(l.path(name)); err == nil {
			out = append(out, name)
		}
	}
	return out
}

// Open loads the example image registered under name.
func (l *ExampleLibrary) Open(name string) (*image.NRGBA, error) {
	if _, ok := exampleFiles[name]; !ok {
		return nil, fmt.Errorf("%w: unknown example %q", ErrAssetMissing, name)
	}
	img, err := imaging.Open(l.path(name))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrAssetMissing, name, err)
	}
	return imaging.Clone(img), nil
}

func (l *ExampleLibrary) path(name string) string {
	return filepath.Join(l.dir, exampleFiles[name])
}
