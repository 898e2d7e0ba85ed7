// Package pipeline turns OCR or user-edited text into a multiplier
// prediction and records the side effects of each successful request.
package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/multiplier-cli/internal/metrics"
	"github.com/sells-group/multiplier-cli/internal/model"
	"github.com/sells-group/multiplier-cli/internal/multiplier"
	"github.com/sells-group/multiplier-cli/internal/ocr"
	"github.com/sells-group/multiplier-cli/internal/plot"
)

// ErrEmptyInput is returned when the text to analyze is blank.
var ErrEmptyInput = eris.New("pipeline: empty input")

// ErrNoOCR is returned by AnalyzeImage when no extractor is configured.
var ErrNoOCR = eris.New("pipeline: no OCR extractor configured")

// Predictor maps a normalized multiplier sequence to the next value.
type Predictor interface {
	Predict(ctx context.Context, normalized []float64) (float64, error)
}

// History appends successful results to persistent storage.
type History interface {
	AppendHistory(ctx context.Context, entry *model.HistoryEntry) error
}

// Plotter renders diagnostic charts.
type Plotter interface {
	Render(ctx context.Context, d plot.Data) ([]string, error)
}

// Input is one request to analyze.
type Input struct {
	Text   string
	Source model.SourceOrder
}

// Option configures a Service.
type Option func(*Service)

// WithOCR sets the extractor used by AnalyzeImage.
func WithOCR(e ocr.Extractor) Option {
	return func(s *Service) { s.ocr = e }
}

// WithHistory sets the history sink.
func WithHistory(h History) Option {
	return func(s *Service) { s.history = h }
}

// WithPlotter sets the chart renderer.
func WithPlotter(p Plotter) Option {
	return func(s *Service) { s.plotter = p }
}

// WithLatest sets the holder that receives each successful result.
func WithLatest(l *LatestResult) Option {
	return func(s *Service) { s.latest = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithInferenceTimeout bounds each model call. Zero disables the bound.
func WithInferenceTimeout(d time.Duration) Option {
	return func(s *Service) { s.inferenceTimeout = d }
}

// Service runs the text-to-prediction pipeline.
type Service struct {
	predictor        Predictor
	ocr              ocr.Extractor
	history          History
	plotter          Plotter
	latest           *LatestResult
	metrics          *metrics.Metrics
	inferenceTimeout time.Duration
	now              func() time.Time
}

// New creates a Service around p. Without WithLatest a private holder is used.
func New(p Predictor, opts ...Option) *Service {
	s := &Service{
		predictor: p,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.latest == nil {
		s.latest = NewLatestResult()
	}
	return s
}

// Latest returns the most recent successful result.
func (s *Service) Latest() (*model.Result, bool) {
	return s.latest.Load()
}

// AnalyzeImage extracts text from the image and analyzes it in captured
// (top-down) order.
func (s *Service) AnalyzeImage(ctx context.Context, imagePath string) (*model.Result, error) {
	if s.ocr == nil {
		return nil, ErrNoOCR
	}
	text, err := s.ocr.ExtractText(ctx, imagePath)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: ocr")
	}
	zap.L().Debug("pipeline: ocr complete", zap.String("image", imagePath), zap.Int("chars", len(text)))

	return s.Analyze(ctx, Input{Text: text, Source: model.SourceCapturedTopDown})
}

// Analyze parses multipliers from in.Text, predicts the next value and
// records the result. The model is not called when nothing is extracted.
func (s *Service) Analyze(ctx context.Context, in Input) (*model.Result, error) {
	if strings.TrimSpace(in.Text) == "" {
		return nil, ErrEmptyInput
	}
	log := zap.L().With(zap.String("source", string(in.Source)))

	ex, err := multiplier.Parse(in.Text, in.Source)
	s.metrics.ObserveExtraction(len(ex.Values), ex.Discarded)
	if ex.Discarded > 0 {
		log.Info("pipeline: discarded malformed tokens", zap.Int("discarded", ex.Discarded))
	}
	if err != nil {
		return nil, err
	}

	normalized := multiplier.Normalize(ex.Values)

	prediction, err := s.predict(ctx, normalized)
	if err != nil {
		log.Warn("pipeline: prediction failed", zap.Int("length", len(normalized)), zap.Error(err))
		return nil, eris.Wrap(err, "pipeline: predict")
	}

	result := &model.Result{
		Text:        in.Text,
		Multipliers: ex.Values,
		Prediction:  prediction,
		Source:      in.Source,
		Discarded:   ex.Discarded,
		CreatedAt:   s.now(),
	}
	s.latest.Store(result)

	// The result is already published; a client disconnect must not drop it.
	sideCtx := context.WithoutCancel(ctx)
	s.recordHistory(sideCtx, result)
	s.renderPlots(sideCtx, plot.Data{Raw: ex.Values, Normalized: normalized, Prediction: prediction})

	log.Info("pipeline: prediction complete",
		zap.Int("length", len(ex.Values)),
		zap.Float64("prediction", prediction),
	)
	return result, nil
}

func (s *Service) predict(ctx context.Context, normalized []float64) (float64, error) {
	if s.inferenceTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.inferenceTimeout)
		defer cancel()
	}
	start := time.Now()
	prediction, err := s.predictor.Predict(ctx, normalized)
	s.metrics.ObserveInference(time.Since(start), err)
	return prediction, err
}

func (s *Service) recordHistory(ctx context.Context, r *model.Result) {
	if s.history == nil {
		return
	}
	entry := &model.HistoryEntry{
		Source:      r.Source,
		Text:        r.Text,
		Multipliers: r.Multipliers,
		Prediction:  r.Prediction,
		CreatedAt:   r.CreatedAt,
	}
	if err := s.history.AppendHistory(ctx, entry); err != nil {
		zap.L().Warn("pipeline: failed to append history", zap.Error(err))
	}
}

func (s *Service) renderPlots(ctx context.Context, d plot.Data) {
	if s.plotter == nil {
		return
	}
	if _, err := s.plotter.Render(ctx, d); err != nil {
		zap.L().Warn("pipeline: failed to render plots", zap.Error(err))
	}
}
