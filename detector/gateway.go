// Package detector wraps a YOLO-style ONNX object-detection model behind a
// small gateway: models are loaded at most once per path, load failures are
// cached until explicitly invalidated, and a loaded handle is safe for
// concurrent read-only use.
package detector

import (
	"context"
	"image"
	"sort"
	"sync"

	"github.com/GarentEcklesia/ObjectDetectionBrainTumor/models"
)

// Handle is a loaded detection capability. Detect returns raw detections in
// original-image pixel coordinates, already filtered to the given confidence
// threshold; no downstream stage applies a second filter.
type Handle interface {
	Detect(ctx context.Context, img image.Image, confThreshold float32) ([]models.RawDetection, error)
	Close()
}

// LoaderFunc resolves a model path into a Handle. The default loader builds
// pooled ONNX sessions; tests inject their own.
type LoaderFunc func(path string) (Handle, error)

// Config configures a Gateway. Zero values fall back to the defaults below.
type Config struct {
	// SharedLibPath overrides the location of the ONNX runtime shared
	// library. Empty means the platform default search.
	SharedLibPath string

	// PoolSize is the number of concurrent inference sessions per model.
	PoolSize int

	// InputSize is the model's square input edge in pixels.
	InputSize int

	// ModelClasses is the number of class channels in the model output.
	// This must match the exported model; the label list may be shorter,
	// in which case out-of-range indices surface as "Unknown (<idx>)".
	ModelClasses int

	// IoUThreshold is the overlap threshold for suppressing duplicate boxes.
	IoUThreshold float32

	// Loader overrides the default ONNX loader.
	Loader LoaderFunc
}

const (
	DefaultPoolSize     = 4
	DefaultInputSize    = 640
	DefaultModelClasses = 4
	DefaultIoUThreshold = 0.45
)

type loadEntry struct {
	handle Handle
	err    error
}

// Gateway memoizes model loads by path. It replaces an implicit process-wide
// cache with an explicit table owned by the instance, with an explicit
// invalidation operation.
type Gateway struct {
	cfg    Config
	loader LoaderFunc

	mu      sync.Mutex
	entries map[string]*loadEntry
}

// NewGateway creates a gateway with the given configuration.
func NewGateway(cfg Config) *Gateway {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = DefaultPoolSize
	}
	if cfg.InputSize <= 0 {
		cfg.InputSize = DefaultInputSize
	}
	if cfg.ModelClasses <= 0 {
		cfg.ModelClasses = DefaultModelClasses
	}
	if cfg.IoUThreshold <= 0 {
		cfg.IoUThreshold = DefaultIoUThreshold
	}
	g := &Gateway{
		cfg:     cfg,
		entries: map[string]*loadEntry{},
	}
	g.loader = cfg.Loader
	if g.loader == nil {
		g.loader = g.loadONNX
	}
	return g
}

// Load returns the handle for path, loading it on first use. Repeated calls
// with the same path return the memoized result, including memoized
// failures: a failed load is not retried until Invalidate or Reload.
func (g *Gateway) Load(path string) (Handle, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if e, ok := g.entries[path]; ok {
		return e.handle, e.err
	}

	handle, err := g.loader(path)
	if err != nil {
		handle = nil
	}
	g.entries[path] = &loadEntry{handle: handle, err: err}
	return handle, err
}

// Invalidate closes and forgets the entry for path, if any. The next Load
// for the same path performs a fresh load attempt.
func (g *Gateway) Invalidate(path string) {
	g.mu.Lock()
	e, ok := g.entries[path]
	if ok {
		delete(g.entries, path)
	}
	g.mu.Unlock()

	if ok && e.handle != nil {
		e.handle.Close()
	}
}

// Reload invalidates path and immediately loads it again.
func (g *Gateway) Reload(path string) (Handle, error) {
	g.Invalidate(path)
	return g.Load(path)
}

// Close releases every loaded handle.
func (g *Gateway) Close() {
	g.mu.Lock()
	entries := g.entries
	g.entries = map[string]*loadEntry{}
	g.mu.Unlock()

	for _, e := range entries {
		if e.handle != nil {
			e.handle.Close()
		}
	}
}

// ModelStat describes one memoized model entry for the monitoring route.
type ModelStat struct {
	Path   string     `json:"path"`
	Loaded bool       `json:"loaded"`
	Error  string     `json:"error,omitempty"`
	Pool   *PoolStats `json:"pool,omitempty"`
}

// Stats reports every memoized entry, sorted by path.
func (g *Gateway) Stats() []ModelStat {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]ModelStat, 0, len(g.entries))
	for path, e := range g.entries {
		stat := ModelStat{Path: path, Loaded: e.err == nil}
		if e.err != nil {
			stat.Error = e.err.Error()
		}
		if od, ok := e.handle.(*onnxDetector); ok {
			s := od.poolStats()
			stat.Pool = &s
		}
		out = append(out, stat)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
