package detector

import (
	"context"
	"fmt"
	"image"
	"os"
	"runtime"
	"sync"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/GarentEcklesia/ObjectDetectionBrainTumor/models"
)

// AcquireTimeout bounds how long Detect waits for a free session.
const AcquireTimeout = 5 * time.Second

var (
	ortInitOnce sync.Once
	ortInitErr  error
)

// initRuntime initializes the ONNX runtime environment once per process.
// The environment is global to the runtime library, so an initialization
// failure is also remembered process-wide.
func initRuntime(sharedLibPath string) error {
	ortInitOnce.Do(func() {
		if sharedLibPath != "" {
			ort.SetSharedLibraryPath(sharedLibPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			ortInitErr = fmt.Errorf("%w: %v", ErrCapabilityUnavailable, err)
		}
	})
	return ortInitErr
}

// anchorCount returns the number of YOLO anchor cells for a square input:
// one cell per position at strides 8, 16 and 32.
func anchorCount(inputSize int) int {
	n := 0
	for _, stride := range []int{8, 16, 32} {
		side := inputSize / stride
		n += side * side
	}
	return n
}

type modelSession struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

func (s *modelSession) destroy() {
	if s.session != nil {
		s.session.Destroy()
	}
	if s.input != nil {
		s.input.Destroy()
	}
	if s.output != nil {
		s.output.Destroy()
	}
}

func newModelSession(modelPath string, inputSize, numClasses int) (*modelSession, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("error creating session options: %w", err)
	}
	defer options.Destroy()

	options.SetIntraOpNumThreads(runtime.NumCPU())
	options.SetInterOpNumThreads(runtime.NumCPU())

	inputShape := ort.NewShape(1, 3, int64(inputSize), int64(inputSize))
	outputShape := ort.NewShape(1, int64(4+numClasses), int64(anchorCount(inputSize)))

	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("error creating input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("error creating output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{"images"},
		[]string{"output0"},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
		options,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("error creating session: %w", err)
	}

	return &modelSession{
		session: session,
		input:   inputTensor,
		output:  outputTensor,
	}, nil
}

// PoolStats reports session-pool usage for one loaded model.
type PoolStats struct {
	Size     int   `json:"size"`
	InUse    int   `json:"in_use"`
	Acquired int64 `json:"total_acquired"`
	Released int64 `json:"total_released"`
}

// onnxDetector is the ONNX-backed Handle. Run on a session with preallocated
// tensors is not reentrant, so the handle keeps a fixed pool of sessions and
// serves each Detect call from one of them. The model itself is never
// mutated after load.
type onnxDetector struct {
	path       string
	inputSize  int
	numClasses int
	anchors    int
	iou        float32

	sessions chan *modelSession
	size     int

	// acquireTimeout defaults to AcquireTimeout; tests shorten it.
	acquireTimeout time.Duration

	mu       sync.Mutex
	closed   bool
	inUse    int
	acquired int64
	released int64
}

// loadONNX is the default loader: validate the model path, make sure the
// runtime is available, then build the session pool.
func (g *Gateway) loadONNX(path string) (Handle, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrModelNotFound, path)
		}
		return nil, fmt.Errorf("%w: %v", ErrModelLoad, err)
	}
	if err := initRuntime(g.cfg.SharedLibPath); err != nil {
		return nil, err
	}

	d := &onnxDetector{
		path:           path,
		inputSize:      g.cfg.InputSize,
		numClasses:     g.cfg.ModelClasses,
		anchors:        anchorCount(g.cfg.InputSize),
		iou:            g.cfg.IoUThreshold,
		sessions:       make(chan *modelSession, g.cfg.PoolSize),
		size:           g.cfg.PoolSize,
		acquireTimeout: AcquireTimeout,
	}
	for i := 0; i < g.cfg.PoolSize; i++ {
		s, err := newModelSession(path, d.inputSize, d.numClasses)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("%w: session %d: %v", ErrModelLoad, i, err)
		}
		d.sessions <- s
	}
	return d, nil
}

func (d *onnxDetector) acquire(ctx context.Context) (*modelSession, error) {
	timeout := d.acquireTimeout
	if timeout <= 0 {
		timeout = AcquireTimeout
	}
	select {
	case s, ok := <-d.sessions:
		if !ok {
			// Closed under the request's feet, e.g. a concurrent reload.
			return nil, fmt.Errorf("%w: %s", ErrClosed, d.path)
		}
		d.mu.Lock()
		d.inUse++
		d.acquired++
		d.mu.Unlock()
		return s, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("%w after %v", ErrBusy, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// release returns s to the pool, or destroys it when the pool was closed
// while s was checked out. The send happens under the same mutex that Close
// holds while closing the channel, so a send on a closed channel is
// impossible; the buffered channel always has room for a checked-out session.
func (d *onnxDetector) release(s *modelSession) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.inUse--
	d.released++
	if d.closed {
		s.destroy()
		return
	}
	d.sessions <- s
}

// Detect runs one inference over img and returns the detections at or above
// confThreshold, deduplicated by IoU suppression.
func (d *onnxDetector) Detect(ctx context.Context, img image.Image, confThreshold float32) ([]models.RawDetection, error) {
	if confThreshold < 0 || confThreshold > 1 {
		return nil, fmt.Errorf("confidence threshold %v is outside [0, 1]", confThreshold)
	}

	s, err := d.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer d.release(s)

	fillInput(img, s.input.GetData(), d.inputSize)

	if err := s.session.Run(); err != nil {
		return nil, fmt.Errorf("model inference: %w", err)
	}

	return decodePredictions(s.output.GetData(), decodeConfig{
		NumClasses:     d.numClasses,
		Anchors:        d.anchors,
		InputSize:      d.inputSize,
		OriginalWidth:  img.Bounds().Dx(),
		OriginalHeight: img.Bounds().Dy(),
		ConfThreshold:  confThreshold,
		IoUThreshold:   d.iou,
	})
}

// Close drains and destroys the session pool. Sessions still checked out are
// destroyed on release.
func (d *onnxDetector) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.sessions)
	d.mu.Unlock()

	for s := range d.sessions {
		s.destroy()
	}
}

func (d *onnxDetector) poolStats() PoolStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return PoolStats{
		Size:     d.size,
		InUse:    d.inUse,
		Acquired: d.acquired,
		Released: d.released,
	}
}
