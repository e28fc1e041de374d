// Package config loads service configuration from the environment, with an
// optional .env file for local runs.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/GarentEcklesia/ObjectDetectionBrainTumor/results"
)

// Config holds every tunable of the service.
type Config struct {
	// Addr is the listen address of the HTTP server.
	Addr string

	// ModelPath points at the exported ONNX detection model. The gateway
	// never writes to this path.
	ModelPath string

	// OrtSharedLib overrides the ONNX runtime shared library location.
	OrtSharedLib string

	// PoolSize is the number of concurrent inference sessions.
	PoolSize int

	// Confidence is the default detection threshold in [0, 1], used when a
	// request does not supply its own.
	Confidence float32

	// ExamplesDir holds the bundled example scan images.
	ExamplesDir string

	// ClassNames is the label list in the model's class-index order. This
	// ordering must match the model export exactly.
	ClassNames []string

	// ModelClasses is the number of class channels in the model output.
	// Defaults to len(ClassNames); a model with more classes than labels
	// reports the extras as "Unknown (<idx>)".
	ModelClasses int

	// Debug enables the development logger and per-request timing logs.
	Debug bool
}

// Load reads configuration from the environment. A missing .env file is not
// an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Addr:        "127.0.0.1:8080",
		ModelPath:   "best.onnx",
		PoolSize:    4,
		Confidence:  0.5,
		ExamplesDir: "examples",
		ClassNames:  results.DefaultClassNames,
		Debug:       os.Getenv("DEBUG") == "true",
	}

	if v := os.Getenv("ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("MODEL_PATH"); v != "" {
		cfg.ModelPath = v
	}
	if v := os.Getenv("ORT_SHARED_LIB"); v != "" {
		cfg.OrtSharedLib = v
	}
	if v := os.Getenv("EXAMPLES_DIR"); v != "" {
		cfg.ExamplesDir = v
	}
	if v := os.Getenv("POOL_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid POOL_SIZE %q", v)
		}
		cfg.PoolSize = n
	}
	if v := os.Getenv("CONFIDENCE_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 32)
		if err != nil || f < 0 || f > 1 {
			return nil, fmt.Errorf("invalid CONFIDENCE_THRESHOLD %q", v)
		}
		cfg.Confidence = float32(f)
	}
	if v := os.Getenv("CLASS_NAMES"); v != "" {
		names := strings.Split(v, ",")
		for i := range names {
			names[i] = strings.TrimSpace(names[i])
		}
		cfg.ClassNames = names
	}

	cfg.ModelClasses = len(cfg.ClassNames)
	if v := os.Getenv("MODEL_CLASSES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid MODEL_CLASSES %q", v)
		}
		cfg.ModelClasses = n
	}

	return cfg, nil
}
