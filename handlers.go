package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/GarentEcklesia/ObjectDetectionBrainTumor/config"
	"github.com/GarentEcklesia/ObjectDetectionBrainTumor/detector"
	"github.com/GarentEcklesia/ObjectDetectionBrainTumor/media"
	"github.com/GarentEcklesia/ObjectDetectionBrainTumor/models"
	"github.com/GarentEcklesia/ObjectDetectionBrainTumor/results"
)

const noTumorClass = "No Tumor"

// AppState carries the long-lived pieces every handler needs. The pipeline
// itself is stateless between requests; the only cross-request state is the
// gateway's model memoization.
type AppState struct {
	cfg      *config.Config
	log      *zap.SugaredLogger
	gateway  *detector.Gateway
	examples *media.ExampleLibrary
	started  time.Time
}

// AnalyzeResponse is the result envelope for every analysis route.
type AnalyzeResponse struct {
	RequestID      string                   `json:"request_id"`
	Detections     []models.DetectionRecord `json:"detections"`
	AnnotatedImage string                   `json:"annotated_image"`
	Message        string                   `json:"message"`
	Disclaimer     string                   `json:"disclaimer"`
	FrameIndex     *int                     `json:"frame_index,omitempty"`
	TotalFrames    *int                     `json:"total_frames,omitempty"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *AppState) router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/analyze", s.handleAnalyze).Methods("POST")
	r.HandleFunc("/analyze/example/{name}", s.handleAnalyzeExample).Methods("POST")
	r.HandleFunc("/analyze/video", s.handleAnalyzeVideo).Methods("POST")
	r.HandleFunc("/video/probe", s.handleVideoProbe).Methods("POST")
	r.HandleFunc("/examples", s.handleExamples).Methods("GET")
	r.HandleFunc("/examples/{name}", s.handleExampleImage).Methods("GET")
	r.HandleFunc("/classes", s.handleClasses).Methods("GET")
	r.HandleFunc("/model/reload", s.handleModelReload).Methods("POST")
	r.HandleFunc("/metrics", s.handleMetrics).Methods("GET")
	r.HandleFunc("/healthz", s.handleHealthz).Methods("GET")
	return r
}

func (s *AppState) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	timings := newTimings(w)

	imgBytes, err := readImageBytes(r)
	if err != nil {
		sendErrorResponse(w, "invalid_request", err.Error(), http.StatusBadRequest)
		return
	}
	conf, err := s.confidenceFrom(r)
	if err != nil {
		sendErrorResponse(w, "invalid_request", err.Error(), http.StatusBadRequest)
		return
	}

	decodeStart := time.Now()
	img, err := media.DecodeImage(imgBytes)
	timings.ImageDecode = time.Since(decodeStart)
	if err != nil {
		s.sendPipelineError(w, err)
		return
	}

	s.respondAnalysis(r.Context(), w, img, conf, timings, nil, nil, start)
}

func (s *AppState) handleAnalyzeExample(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	timings := newTimings(w)

	conf, err := s.confidenceFrom(r)
	if err != nil {
		sendErrorResponse(w, "invalid_request", err.Error(), http.StatusBadRequest)
		return
	}

	img, err := media.Normalize(media.Source{
		Kind:        media.SourceExampleImage,
		ExampleName: mux.Vars(r)["name"],
	}, s.examples)
	if err != nil {
		s.sendPipelineError(w, err)
		return
	}

	s.respondAnalysis(r.Context(), w, img, conf, timings, nil, nil, start)
}

func (s *AppState) handleAnalyzeVideo(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	timings := newTimings(w)

	video, err := readVideoBytes(r)
	if err != nil {
		sendErrorResponse(w, "invalid_request", err.Error(), http.StatusBadRequest)
		return
	}
	frame := 0
	if v := r.FormValue("frame"); v != "" {
		frame, err = strconv.Atoi(v)
		if err != nil {
			sendErrorResponse(w, "invalid_request", "frame must be an integer", http.StatusBadRequest)
			return
		}
	}
	conf, err := s.confidenceFrom(r)
	if err != nil {
		sendErrorResponse(w, "invalid_request", err.Error(), http.StatusBadRequest)
		return
	}

	decodeStart := time.Now()
	img, total, err := media.ExtractFrame(video, frame)
	timings.ImageDecode = time.Since(decodeStart)
	if err != nil {
		s.sendPipelineError(w, err)
		return
	}

	// Report the frame that was actually analyzed after clamping.
	used := frame
	if used < 0 {
		used = 0
	}
	if used > total-1 {
		used = total - 1
	}
	s.respondAnalysis(r.Context(), w, img, conf, timings, &used, &total, start)
}

// handleVideoProbe extracts frame zero just to learn the frame count, so the
// UI can render a frame-selection range before a specific frame is chosen.
func (s *AppState) handleVideoProbe(w http.ResponseWriter, r *http.Request) {
	video, err := readVideoBytes(r)
	if err != nil {
		sendErrorResponse(w, "invalid_request", err.Error(), http.StatusBadRequest)
		return
	}

	_, total, err := media.ExtractFrame(video, 0)
	// The frame count is valid even when reading the frame itself failed.
	if err != nil && !errors.Is(err, media.ErrFrameRead) {
		s.sendPipelineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"total_frames": total})
}

func (s *AppState) handleExamples(w http.ResponseWriter, _ *http.Request) {
	type exampleStatus struct {
		Name      string `json:"name"`
		Available bool   `json:"available"`
	}

	available := map[string]bool{}
	for _, name := range s.examples.Available() {
		available[name] = true
	}
	out := make([]exampleStatus, 0, len(s.examples.Names()))
	for _, name := range s.examples.Names() {
		out = append(out, exampleStatus{Name: name, Available: available[name]})
	}
	writeJSON(w, http.StatusOK, map[string]any{"examples": out})
}

func (s *AppState) handleExampleImage(w http.ResponseWriter, r *http.Request) {
	img, err := s.examples.Open(mux.Vars(r)["name"])
	if err != nil {
		s.sendPipelineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	if err := png.Encode(w, media.PadForDisplay(img)); err != nil {
		s.log.Errorw("failed to encode example image", "error", err)
	}
}

func (s *AppState) handleClasses(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"classes": results.Classes()})
}

func (s *AppState) handleModelReload(w http.ResponseWriter, _ *http.Request) {
	s.gateway.Invalidate(s.cfg.ModelPath)
	s.log.Infow("model cache invalidated", "path", s.cfg.ModelPath)
	writeJSON(w, http.StatusOK, map[string]string{"message": "model cache invalidated"})
}

func (s *AppState) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"uptime_seconds": int(time.Since(s.started).Seconds()),
		"models":         s.gateway.Stats(),
	})
}

func (s *AppState) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// respondAnalysis runs the shared tail of every analysis route: load the
// memoized model, detect, normalize and annotate, and write the envelope.
func (s *AppState) respondAnalysis(
	ctx context.Context,
	w http.ResponseWriter,
	img image.Image,
	conf float32,
	timings *models.ProcessingTimings,
	frameIndex, totalFrames *int,
	start time.Time,
) {
	handle, err := s.gateway.Load(s.cfg.ModelPath)
	if err != nil {
		s.sendPipelineError(w, err)
		return
	}

	inferStart := time.Now()
	raws, err := handle.Detect(ctx, img, conf)
	timings.Inference = time.Since(inferStart)
	if err != nil {
		s.sendPipelineError(w, err)
		return
	}

	annotateStart := time.Now()
	result := results.Build(img, raws, s.cfg.ClassNames)
	timings.Annotate = time.Since(annotateStart)

	encoded, err := encodePNGBase64(result.AnnotatedImage)
	if err != nil {
		sendErrorResponse(w, "processing_error", err.Error(), http.StatusInternalServerError)
		return
	}

	message := detectionMessage(len(result.Detections))
	for _, d := range result.Detections {
		if d.Class != noTumorClass {
			message += " " + MsgConsultProfessional
			break
		}
	}

	timings.Total = time.Since(start)
	s.logTimings(timings, len(result.Detections))

	writeJSON(w, http.StatusOK, AnalyzeResponse{
		RequestID:      timings.RequestID,
		Detections:     result.Detections,
		AnnotatedImage: encoded,
		Message:        message,
		Disclaimer:     Disclaimer,
		FrameIndex:     frameIndex,
		TotalFrames:    totalFrames,
	})
}

// confidenceFrom reads the per-request threshold from the query string,
// falling back to the configured default. The query string is used so the
// request body stays untouched for raw image uploads.
func (s *AppState) confidenceFrom(r *http.Request) (float32, error) {
	v := r.URL.Query().Get("confidence")
	if v == "" {
		return s.cfg.Confidence, nil
	}
	f, err := strconv.ParseFloat(v, 32)
	if err != nil || f < 0 || f > 1 {
		return 0, errors.New("confidence must be a number in [0, 1]")
	}
	return float32(f), nil
}

func (s *AppState) sendPipelineError(w http.ResponseWriter, err error) {
	code, status := errorStatus(err)
	s.log.Warnw("request failed", "code", code, "error", err)
	sendErrorResponse(w, code, err.Error(), status)
}

func (s *AppState) logTimings(t *models.ProcessingTimings, detections int) {
	s.log.Debugw("request processed",
		"request_id", t.RequestID,
		"detections", detections,
		"decode", t.ImageDecode,
		"inference", t.Inference,
		"annotate", t.Annotate,
		"total", t.Total,
	)
}

// errorStatus maps the pipeline's typed failures onto response codes. The
// message itself is surfaced verbatim; nothing is masked here.
func errorStatus(err error) (string, int) {
	switch {
	case errors.Is(err, media.ErrDecode):
		return "invalid_image", http.StatusBadRequest
	case errors.Is(err, media.ErrAssetMissing):
		return "asset_missing", http.StatusNotFound
	case errors.Is(err, media.ErrVideoOpen):
		return "invalid_video", http.StatusBadRequest
	case errors.Is(err, media.ErrEmptyVideo):
		return "empty_video", http.StatusBadRequest
	case errors.Is(err, media.ErrFrameRead):
		return "frame_read_error", http.StatusUnprocessableEntity
	case errors.Is(err, detector.ErrModelNotFound):
		return "model_not_found", http.StatusServiceUnavailable
	case errors.Is(err, detector.ErrCapabilityUnavailable):
		return "capability_unavailable", http.StatusServiceUnavailable
	case errors.Is(err, detector.ErrModelLoad):
		return "model_load_error", http.StatusServiceUnavailable
	case errors.Is(err, detector.ErrBusy):
		return "busy", http.StatusServiceUnavailable
	case errors.Is(err, detector.ErrClosed):
		return "model_unavailable", http.StatusServiceUnavailable
	default:
		return "processing_error", http.StatusInternalServerError
	}
}

func newTimings(w http.ResponseWriter) *models.ProcessingTimings {
	requestID := uuid.New().String()
	w.Header().Set("X-Request-ID", requestID)
	return &models.ProcessingTimings{RequestID: requestID}
}

// readImageBytes accepts the image as base64 JSON, a multipart "file" field,
// or the raw request body.
func readImageBytes(r *http.Request) ([]byte, error) {
	contentType := r.Header.Get("Content-Type")
	switch {
	case strings.HasPrefix(contentType, "application/json"):
		var req struct {
			Image string `json:"image"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, err
		}
		return base64.StdEncoding.DecodeString(req.Image)
	case strings.HasPrefix(contentType, "multipart/form-data"):
		return readMultipartFile(r)
	default:
		return io.ReadAll(r.Body)
	}
}

func readVideoBytes(r *http.Request) ([]byte, error) {
	return readMultipartFile(r)
}

func readMultipartFile(r *http.Request) ([]byte, error) {
	if err := r.ParseMultipartForm(100 << 20); err != nil {
		return nil, err
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return io.ReadAll(file)
}

func encodePNGBase64(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func sendErrorResponse(w http.ResponseWriter, code, message string, status int) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
