package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/multiplier-cli/internal/metrics"
	"github.com/sells-group/multiplier-cli/internal/model"
	"github.com/sells-group/multiplier-cli/internal/multiplier"
	"github.com/sells-group/multiplier-cli/internal/ocr"
	"github.com/sells-group/multiplier-cli/internal/pipeline"
	"github.com/sells-group/multiplier-cli/internal/plot"
	"github.com/sells-group/multiplier-cli/internal/predictor"
)

const (
	maxUploadBytes    = 10 << 20
	screenshotPattern = "capture-*.png"
	editTextMessage   = "Text and results updated."
)

// analyzer is the subset of *pipeline.Service used by the handlers.
type analyzer interface {
	Analyze(ctx context.Context, in pipeline.Input) (*model.Result, error)
	AnalyzeImage(ctx context.Context, imagePath string) (*model.Result, error)
	Latest() (*model.Result, bool)
}

type historyLister interface {
	ListHistory(ctx context.Context, limit int) ([]model.HistoryEntry, error)
}

type routerDeps struct {
	Service   analyzer
	History   historyLister
	Metrics   *metrics.Metrics
	Gatherer  prometheus.Gatherer
	Limiter   *rate.Limiter
	UploadDir string
	GraphDir  string
	Origins   []string
}

type screenshotRequest struct {
	Image string `json:"image" validate:"required"`
}

type editTextRequest struct {
	Text string `json:"text" validate:"required"`
}

type editTextResponse struct {
	Message     string    `json:"message"`
	Text        string    `json:"text"`
	Multipliers []float64 `json:"multipliers"`
	Prediction  float64   `json:"prediction"`
}

var validate = validator.New()

func newRouter(d routerDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger, middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: d.Origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(pr chi.Router) {
		pr.Use(rateLimit(d.Limiter))
		pr.Post("/upload", d.handleUpload)
		pr.Post("/predict-from-screenshot", d.handleScreenshot)
		pr.Post("/edit-text", d.handleEditText)
	})

	r.Get("/results/latest", d.handleLatest)
	r.Get("/history", d.handleHistory)
	r.Get("/graphs/{name}", d.handleGraph)
	if d.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(d.Gatherer))
	}
	return r
}

func (d routerDeps) handleUpload(w http.ResponseWriter, r *http.Request) {
	const route = "/upload"
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, hdr, err := r.FormFile("image")
	if err != nil {
		msg := "invalid multipart body"
		if errors.Is(err, http.ErrMissingFile) {
			msg = "no image uploaded"
		}
		d.fail(w, route, http.StatusBadRequest, msg)
		return
	}
	defer file.Close() //nolint:errcheck

	if hdr.Filename == "" {
		d.fail(w, route, http.StatusBadRequest, "no image selected")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		d.fail(w, route, http.StatusBadRequest, "read upload failed")
		return
	}
	if err := ocr.CheckImage(data); err != nil {
		d.fail(w, route, http.StatusBadRequest, "image file is empty or invalid")
		return
	}

	path, err := ocr.SaveTempImage(d.UploadDir, ocr.UploadPattern("upload", hdr.Filename), data)
	if err != nil {
		zap.L().Error("save upload", zap.Error(err))
		d.fail(w, route, http.StatusInternalServerError, "internal error")
		return
	}
	defer removeUpload(path)

	res, err := d.Service.AnalyzeImage(r.Context(), path)
	if err != nil {
		d.failErr(w, route, err)
		return
	}
	d.Metrics.CountRequest(route, "ok")
	writeJSON(w, http.StatusOK, res)
}

func (d routerDeps) handleScreenshot(w http.ResponseWriter, r *http.Request) {
	const route = "/predict-from-screenshot"

	var req screenshotRequest
	if err := decodeBody(w, r, &req); err != nil {
		d.fail(w, route, http.StatusBadRequest, "no valid image provided")
		return
	}

	data, err := ocr.DecodeBase64Image(req.Image)
	if err != nil {
		d.fail(w, route, http.StatusBadRequest, "image file is empty or invalid")
		return
	}

	path, err := ocr.SaveTempImage(d.UploadDir, screenshotPattern, data)
	if err != nil {
		zap.L().Error("save screenshot", zap.Error(err))
		d.fail(w, route, http.StatusInternalServerError, "internal error")
		return
	}
	defer removeUpload(path)

	res, err := d.Service.AnalyzeImage(r.Context(), path)
	if err != nil {
		d.failErr(w, route, err)
		return
	}
	d.Metrics.CountRequest(route, "ok")
	writeJSON(w, http.StatusOK, res)
}

func (d routerDeps) handleEditText(w http.ResponseWriter, r *http.Request) {
	const route = "/edit-text"

	var req editTextRequest
	if err := decodeBody(w, r, &req); err != nil {
		d.fail(w, route, http.StatusBadRequest, "text must not be empty")
		return
	}

	res, err := d.Service.Analyze(r.Context(), pipeline.Input{
		Text:   req.Text,
		Source: model.SourceUserEditedChronological,
	})
	if err != nil {
		d.failErr(w, route, err)
		return
	}
	d.Metrics.CountRequest(route, "ok")
	writeJSON(w, http.StatusOK, editTextResponse{
		Message:     editTextMessage,
		Text:        res.Text,
		Multipliers: res.Multipliers,
		Prediction:  res.Prediction,
	})
}

func (d routerDeps) handleLatest(w http.ResponseWriter, _ *http.Request) {
	res, ok := d.Service.Latest()
	if !ok {
		writeError(w, http.StatusNotFound, "no results yet")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (d routerDeps) handleHistory(w http.ResponseWriter, r *http.Request) {
	if d.History == nil {
		writeError(w, http.StatusNotFound, "history disabled")
		return
	}
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	entries, err := d.History.ListHistory(r.Context(), limit)
	if err != nil {
		zap.L().Error("list history", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if entries == nil {
		entries = []model.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (d routerDeps) handleGraph(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !slices.Contains(plot.Names, name) {
		writeError(w, http.StatusNotFound, "graph not found")
		return
	}
	path := filepath.Join(d.GraphDir, name)
	if _, err := os.Stat(path); err != nil {
		writeError(w, http.StatusNotFound, "graph not found")
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	http.ServeFile(w, r, path)
}

// removeUpload deletes a request's image once OCR is done with it.
func removeUpload(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		zap.L().Warn("remove upload", zap.String("path", path), zap.Error(err))
	}
}

// errorStatus maps pipeline failures to an HTTP status, a client-facing
// message and a metrics outcome.
func errorStatus(err error) (int, string, string) {
	var le *predictor.LengthError
	switch {
	case errors.Is(err, pipeline.ErrEmptyInput):
		return http.StatusBadRequest, "text must not be empty", "bad_request"
	case errors.Is(err, multiplier.ErrNoMultipliers):
		return http.StatusBadRequest, "no multipliers found", "no_multipliers"
	case errors.As(err, &le):
		return http.StatusBadRequest, le.Error(), "bad_request"
	case errors.Is(err, ocr.ErrInvalidImage):
		return http.StatusBadRequest, "image file is empty or invalid", "bad_request"
	case errors.Is(err, predictor.ErrInference):
		return http.StatusBadGateway, "model inference failed", "inference_error"
	default:
		return http.StatusInternalServerError, "internal error", "error"
	}
}

func (d routerDeps) failErr(w http.ResponseWriter, route string, err error) {
	status, msg, outcome := errorStatus(err)
	if status >= http.StatusInternalServerError {
		zap.L().Error("request failed", zap.String("route", route), zap.Error(err))
	}
	d.Metrics.CountRequest(route, outcome)
	writeError(w, status, msg)
}

func (d routerDeps) fail(w http.ResponseWriter, route string, status int, msg string) {
	outcome := "bad_request"
	if status >= http.StatusInternalServerError {
		outcome = "error"
	}
	d.Metrics.CountRequest(route, outcome)
	writeError(w, status, msg)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return err
	}
	return validate.Struct(dst)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func rateLimit(l *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if l == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow() {
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
