package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GarentEcklesia/ObjectDetectionBrainTumor/config"
	"github.com/GarentEcklesia/ObjectDetectionBrainTumor/detector"
	"github.com/GarentEcklesia/ObjectDetectionBrainTumor/media"
	"github.com/GarentEcklesia/ObjectDetectionBrainTumor/models"
	"github.com/GarentEcklesia/ObjectDetectionBrainTumor/results"
)

// recordingHandle remembers the thresholds it was asked to detect with.
type recordingHandle struct {
	dets       []models.RawDetection
	thresholds []float32
}

func (h *recordingHandle) Detect(_ context.Context, _ image.Image, conf float32) ([]models.RawDetection, error) {
	h.thresholds = append(h.thresholds, conf)
	return h.dets, nil
}

func (h *recordingHandle) Close() {}

type testState struct {
	*AppState
	handle      *recordingHandle
	loaderCalls *int
}

func newTestState(t *testing.T, loadErr error) *testState {
	t.Helper()

	handle := &recordingHandle{dets: []models.RawDetection{
		{ClassIndex: 0, Confidence: 0.91, BBox: [4]int32{10, 10, 40, 40}},
		{ClassIndex: 2, Confidence: 0.64, BBox: [4]int32{50, 50, 60, 60}},
	}}
	calls := 0
	gateway := detector.NewGateway(detector.Config{
		Loader: func(path string) (detector.Handle, error) {
			calls++
			if loadErr != nil {
				return nil, loadErr
			}
			return handle, nil
		},
	})
	t.Cleanup(gateway.Close)

	examplesDir := t.TempDir()
	require.NoError(t, imaging.Save(
		imaging.New(32, 32, color.NRGBA{R: 90, A: 255}),
		filepath.Join(examplesDir, "glioma.jpg")))

	cfg := &config.Config{
		Addr:        "127.0.0.1:0",
		ModelPath:   "best.onnx",
		PoolSize:    1,
		Confidence:  0.5,
		ExamplesDir: examplesDir,
		ClassNames:  results.DefaultClassNames,
	}
	return &testState{
		AppState: &AppState{
			cfg:      cfg,
			log:      zap.NewNop().Sugar(),
			gateway:  gateway,
			examples: media.NewExampleLibrary(examplesDir),
			started:  time.Now(),
		},
		handle:      handle,
		loaderCalls: &calls,
	}
}

func pngBody(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, imaging.New(64, 64, color.NRGBA{R: 50, G: 50, B: 50, A: 255})))
	return buf.Bytes()
}

func decodeAnalyzeResponse(t *testing.T, rec *httptest.ResponseRecorder) AnalyzeResponse {
	t.Helper()
	var resp AnalyzeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func decodeErrorResponse(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHandleAnalyze_RawUpload(t *testing.T) {
	state := newTestState(t, nil)
	req := httptest.NewRequest("POST", "/analyze", bytes.NewReader(pngBody(t)))
	rec := httptest.NewRecorder()

	state.router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeAnalyzeResponse(t, rec)
	require.NotEmpty(t, resp.RequestID)
	require.Equal(t, resp.RequestID, rec.Header().Get("X-Request-ID"))

	require.Len(t, resp.Detections, 2)
	require.Equal(t, "Glioma", resp.Detections[0].Class)
	require.Equal(t, float32(0.91), resp.Detections[0].Confidence)
	require.Equal(t, "No Tumor", resp.Detections[1].Class)

	raw, err := base64.StdEncoding.DecodeString(resp.AnnotatedImage)
	require.NoError(t, err)
	annotated, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	require.Equal(t, 64, annotated.Bounds().Dx())

	require.Contains(t, resp.Message, "2 detection")
	require.Contains(t, resp.Message, MsgConsultProfessional)
	require.Equal(t, Disclaimer, resp.Disclaimer)
	require.Nil(t, resp.FrameIndex)
	require.Nil(t, resp.TotalFrames)
}

func TestHandleAnalyze_JSONUpload(t *testing.T) {
	state := newTestState(t, nil)
	body, err := json.Marshal(map[string]string{
		"image": base64.StdEncoding.EncodeToString(pngBody(t)),
	})
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/analyze", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	state.router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decodeAnalyzeResponse(t, rec).Detections, 2)
}

func TestHandleAnalyze_MultipartUpload(t *testing.T) {
	state := newTestState(t, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "scan.png")
	require.NoError(t, err)
	_, err = part.Write(pngBody(t))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/analyze", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()

	state.router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decodeAnalyzeResponse(t, rec).Detections, 2)
}

func TestHandleAnalyze_InvalidImage(t *testing.T) {
	state := newTestState(t, nil)
	req := httptest.NewRequest("POST", "/analyze", strings.NewReader("not an image"))
	rec := httptest.NewRecorder()

	state.router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid_image", decodeErrorResponse(t, rec).Code)
}

func TestHandleAnalyze_InvalidConfidence(t *testing.T) {
	state := newTestState(t, nil)
	for _, q := range []string{"confidence=1.5", "confidence=-0.1", "confidence=high"} {
		req := httptest.NewRequest("POST", "/analyze?"+q, bytes.NewReader(pngBody(t)))
		rec := httptest.NewRecorder()

		state.router().ServeHTTP(rec, req)

		require.Equal(t, http.StatusBadRequest, rec.Code, "query %q", q)
		require.Equal(t, "invalid_request", decodeErrorResponse(t, rec).Code)
	}
}

func TestHandleAnalyze_ThresholdPassthrough(t *testing.T) {
	state := newTestState(t, nil)

	req := httptest.NewRequest("POST", "/analyze?confidence=0.25", bytes.NewReader(pngBody(t)))
	rec := httptest.NewRecorder()
	state.router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest("POST", "/analyze", bytes.NewReader(pngBody(t)))
	rec = httptest.NewRecorder()
	state.router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Equal(t, []float32{0.25, 0.5}, state.handle.thresholds)
}

func TestHandleAnalyze_ModelNotFound(t *testing.T) {
	loadErr := detector.ErrModelNotFound
	state := newTestState(t, loadErr)

	req := httptest.NewRequest("POST", "/analyze", bytes.NewReader(pngBody(t)))
	rec := httptest.NewRecorder()

	state.router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "model_not_found", decodeErrorResponse(t, rec).Code)
}

func TestHandleAnalyze_LoadFailureIsMemoized(t *testing.T) {
	state := newTestState(t, detector.ErrModelLoad)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("POST", "/analyze", bytes.NewReader(pngBody(t)))
		rec := httptest.NewRecorder()
		state.router().ServeHTTP(rec, req)
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	}

	require.Equal(t, 1, *state.loaderCalls)
}

func TestHandleAnalyzeExample(t *testing.T) {
	state := newTestState(t, nil)
	req := httptest.NewRequest("POST", "/analyze/example/Glioma", nil)
	rec := httptest.NewRecorder()

	state.router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeAnalyzeResponse(t, rec)
	require.Len(t, resp.Detections, 2)
	require.NotEmpty(t, resp.AnnotatedImage)
}

func TestHandleAnalyzeExample_Missing(t *testing.T) {
	state := newTestState(t, nil)

	for _, name := range []string{"Meningioma", "Sarcoma"} {
		req := httptest.NewRequest("POST", "/analyze/example/"+name, nil)
		rec := httptest.NewRecorder()

		state.router().ServeHTTP(rec, req)

		require.Equal(t, http.StatusNotFound, rec.Code, "example %q", name)
		require.Equal(t, "asset_missing", decodeErrorResponse(t, rec).Code)
	}
}

func TestHandleExamples(t *testing.T) {
	state := newTestState(t, nil)
	req := httptest.NewRequest("GET", "/examples", nil)
	rec := httptest.NewRecorder()

	state.router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Examples []struct {
			Name      string `json:"name"`
			Available bool   `json:"available"`
		} `json:"examples"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Examples, 4)
	require.Equal(t, "Glioma", resp.Examples[0].Name)
	require.True(t, resp.Examples[0].Available)
	require.False(t, resp.Examples[1].Available)
}

func TestHandleExampleImage(t *testing.T) {
	state := newTestState(t, nil)
	req := httptest.NewRequest("GET", "/examples/Glioma", nil)
	rec := httptest.NewRecorder()

	state.router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	img, err := png.Decode(rec.Body)
	require.NoError(t, err)
	require.Equal(t, media.DisplaySize, img.Bounds().Dx())
	require.Equal(t, media.DisplaySize, img.Bounds().Dy())
}

func TestHandleClasses(t *testing.T) {
	state := newTestState(t, nil)
	req := httptest.NewRequest("GET", "/classes", nil)
	rec := httptest.NewRecorder()

	state.router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Classes []results.ClassInfo `json:"classes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Classes, 4)
	require.Equal(t, "Glioma", resp.Classes[0].Name)
}

func TestHandleModelReload(t *testing.T) {
	state := newTestState(t, nil)

	req := httptest.NewRequest("POST", "/analyze", bytes.NewReader(pngBody(t)))
	state.router().ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, 1, *state.loaderCalls)

	req = httptest.NewRequest("POST", "/model/reload", nil)
	rec := httptest.NewRecorder()
	state.router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest("POST", "/analyze", bytes.NewReader(pngBody(t)))
	state.router().ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, 2, *state.loaderCalls, "reload must force a fresh load")
}

func TestHandleMetrics(t *testing.T) {
	state := newTestState(t, nil)

	req := httptest.NewRequest("POST", "/analyze", bytes.NewReader(pngBody(t)))
	state.router().ServeHTTP(httptest.NewRecorder(), req)

	req = httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	state.router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		UptimeSeconds int                  `json:"uptime_seconds"`
		Models        []detector.ModelStat `json:"models"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Models, 1)
	require.Equal(t, "best.onnx", resp.Models[0].Path)
	require.True(t, resp.Models[0].Loaded)
}

func TestHandleHealthz(t *testing.T) {
	state := newTestState(t, nil)
	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()

	state.router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHandleAnalyze_NoTumorOnlyMessage(t *testing.T) {
	state := newTestState(t, nil)
	state.handle.dets = []models.RawDetection{
		{ClassIndex: 2, Confidence: 0.8, BBox: [4]int32{5, 5, 30, 30}},
	}

	req := httptest.NewRequest("POST", "/analyze", bytes.NewReader(pngBody(t)))
	rec := httptest.NewRecorder()
	state.router().ServeHTTP(rec, req)

	resp := decodeAnalyzeResponse(t, rec)
	require.NotContains(t, resp.Message, MsgConsultProfessional)
}

func TestHandleAnalyze_NoDetectionsMessage(t *testing.T) {
	state := newTestState(t, nil)
	state.handle.dets = nil

	req := httptest.NewRequest("POST", "/analyze", bytes.NewReader(pngBody(t)))
	rec := httptest.NewRecorder()
	state.router().ServeHTTP(rec, req)

	resp := decodeAnalyzeResponse(t, rec)
	require.Equal(t, MsgNoDetections, resp.Message)
	require.Empty(t, resp.Detections)
}

func multipartVideo(t *testing.T, content []byte, extraFields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "scan.mp4")
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	for k, v := range extraFields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestHandleAnalyzeVideo_InvalidVideo(t *testing.T) {
	state := newTestState(t, nil)
	body, contentType := multipartVideo(t, []byte("not a video"), nil)

	req := httptest.NewRequest("POST", "/analyze/video", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	state.router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	code := decodeErrorResponse(t, rec).Code
	require.Contains(t, []string{"invalid_video", "empty_video"}, code)
}

func TestHandleAnalyzeVideo_BadFrameField(t *testing.T) {
	state := newTestState(t, nil)
	body, contentType := multipartVideo(t, []byte("irrelevant"), map[string]string{"frame": "three"})

	req := httptest.NewRequest("POST", "/analyze/video", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	state.router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid_request", decodeErrorResponse(t, rec).Code)
}

func TestHandleAnalyzeVideo_NotMultipart(t *testing.T) {
	state := newTestState(t, nil)
	req := httptest.NewRequest("POST", "/analyze/video", strings.NewReader("raw bytes"))
	rec := httptest.NewRecorder()

	state.router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid_request", decodeErrorResponse(t, rec).Code)
}

func TestHandleVideoProbe_InvalidVideo(t *testing.T) {
	state := newTestState(t, nil)
	body, contentType := multipartVideo(t, []byte("not a video"), nil)

	req := httptest.NewRequest("POST", "/video/probe", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	state.router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err    error
		code   string
		status int
	}{
		{media.ErrDecode, "invalid_image", http.StatusBadRequest},
		{media.ErrAssetMissing, "asset_missing", http.StatusNotFound},
		{media.ErrVideoOpen, "invalid_video", http.StatusBadRequest},
		{media.ErrEmptyVideo, "empty_video", http.StatusBadRequest},
		{media.ErrFrameRead, "frame_read_error", http.StatusUnprocessableEntity},
		{detector.ErrModelNotFound, "model_not_found", http.StatusServiceUnavailable},
		{detector.ErrCapabilityUnavailable, "capability_unavailable", http.StatusServiceUnavailable},
		{detector.ErrModelLoad, "model_load_error", http.StatusServiceUnavailable},
		{detector.ErrBusy, "busy", http.StatusServiceUnavailable},
		{detector.ErrClosed, "model_unavailable", http.StatusServiceUnavailable},
		{errors.New("anything else"), "processing_error", http.StatusInternalServerError},
	}
	for _, tc := range cases {
		code, status := errorStatus(tc.err)
		require.Equal(t, tc.code, code, "error %v", tc.err)
		require.Equal(t, tc.status, status, "error %v", tc.err)
	}
}
