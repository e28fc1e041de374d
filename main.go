package main

import (
	"log"
	"net/http"
	"time"

	"github.com/GarentEcklesia/ObjectDetectionBrainTumor/config"
	"github.com/GarentEcklesia/ObjectDetectionBrainTumor/detector"
	"github.com/GarentEcklesia/ObjectDetectionBrainTumor/logging"
	"github.com/GarentEcklesia/ObjectDetectionBrainTumor/media"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Debug)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	// The model is loaded lazily on the first analysis request; a load
	// failure is reported to the caller and cached until /model/reload.
	gateway := detector.NewGateway(detector.Config{
		SharedLibPath: cfg.OrtSharedLib,
		PoolSize:      cfg.PoolSize,
		ModelClasses:  cfg.ModelClasses,
	})
	defer gateway.Close()

	state := &AppState{
		cfg:      cfg,
		log:      sugar,
		gateway:  gateway,
		examples: media.NewExampleLibrary(cfg.ExamplesDir),
		started:  time.Now(),
	}

	srv := &http.Server{
		Handler:      state.router(),
		Addr:         cfg.Addr,
		WriteTimeout: 60 * time.Second,
		ReadTimeout:  60 * time.Second,
	}

	sugar.Infow("starting server", "addr", cfg.Addr, "model", cfg.ModelPath)
	if err := srv.ListenAndServe(); err != nil {
		sugar.Fatalw("server stopped", "error", err)
	}
}
