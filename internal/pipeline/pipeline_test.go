package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/multiplier-cli/internal/metrics"
	"github.com/sells-group/multiplier-cli/internal/model"
	"github.com/sells-group/multiplier-cli/internal/multiplier"
	"github.com/sells-group/multiplier-cli/internal/plot"
	"github.com/sells-group/multiplier-cli/internal/predictor"
)

// --- Predictor fake ---

type fakePredictor struct {
	mu    sync.Mutex
	out   float64
	err   error
	delay time.Duration
	calls [][]float64
}

func (f *fakePredictor) Predict(ctx context.Context, normalized []float64) (float64, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]float64(nil), normalized...))
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return 0, &predictor.InferenceError{Model: "fake", Err: ctx.Err()}
		}
	}
	return f.out, f.err
}

func (f *fakePredictor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// --- Mocks ---

type mockOCR struct {
	mock.Mock
}

func (m *mockOCR) ExtractText(ctx context.Context, imagePath string) (string, error) {
	args := m.Called(ctx, imagePath)
	return args.String(0), args.Error(1)
}

type mockHistory struct {
	mock.Mock
}

func (m *mockHistory) AppendHistory(ctx context.Context, entry *model.HistoryEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

type mockPlotter struct {
	mock.Mock
}

func (m *mockPlotter) Render(ctx context.Context, d plot.Data) ([]string, error) {
	args := m.Called(ctx, d)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func TestAnalyze_EditedText(t *testing.T) {
	p := &fakePredictor{out: 2.1}
	hist := &mockHistory{}
	plotter := &mockPlotter{}
	latest := NewLatestResult()

	hist.On("AppendHistory", mock.Anything, mock.MatchedBy(func(e *model.HistoryEntry) bool {
		return e.Source == model.SourceUserEditedChronological &&
			assert.ObjectsAreEqual([]float64{2.5, 1.3, 10}, e.Multipliers)
	})).Return(nil)
	plotter.On("Render", mock.Anything, plot.Data{
		Raw:        []float64{2.5, 1.3, 10},
		Normalized: []float64{2.5, 1.3, 10},
		Prediction: 2.1,
	}).Return([]string{"a.png"}, nil)

	svc := New(p, WithHistory(hist), WithPlotter(plotter), WithLatest(latest))

	res, err := svc.Analyze(context.Background(), Input{
		Text:   "2.5x 1,3x bad 10x",
		Source: model.SourceUserEditedChronological,
	})
	require.NoError(t, err)

	assert.Equal(t, "2.5x 1,3x bad 10x", res.Text)
	assert.Equal(t, []float64{2.5, 1.3, 10}, res.Multipliers)
	assert.InDelta(t, 2.1, res.Prediction, 1e-9)
	assert.Equal(t, model.SourceUserEditedChronological, res.Source)
	assert.Zero(t, res.Discarded)
	assert.False(t, res.CreatedAt.IsZero())

	require.Len(t, p.calls, 1)
	assert.Equal(t, []float64{2.5, 1.3, 10}, p.calls[0])

	got, ok := latest.Load()
	require.True(t, ok)
	assert.Equal(t, res, got)

	hist.AssertExpectations(t)
	plotter.AssertExpectations(t)
}

func TestAnalyze_CapturedIsReversedAndClamped(t *testing.T) {
	p := &fakePredictor{out: 1}
	svc := New(p)

	res, err := svc.Analyze(context.Background(), Input{
		Text:   "15x 2x 1234x",
		Source: model.SourceCapturedTopDown,
	})
	require.NoError(t, err)

	// Raw values keep the modeled order; only the model input is clamped.
	assert.Equal(t, []float64{1.234, 2, 15}, res.Multipliers)
	assert.Equal(t, []float64{1.234, 2, 10}, p.calls[0])
}

func TestAnalyze_ReversalAsymmetry(t *testing.T) {
	text := "1.1x 2.2x 3.3x"

	captured, err := New(&fakePredictor{}).Analyze(context.Background(), Input{Text: text, Source: model.SourceCapturedTopDown})
	require.NoError(t, err)
	edited, err := New(&fakePredictor{}).Analyze(context.Background(), Input{Text: text, Source: model.SourceUserEditedChronological})
	require.NoError(t, err)

	assert.Equal(t, []float64{3.3, 2.2, 1.1}, captured.Multipliers)
	assert.Equal(t, []float64{1.1, 2.2, 3.3}, edited.Multipliers)
}

func TestAnalyze_EmptyInput(t *testing.T) {
	p := &fakePredictor{}
	svc := New(p)

	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := svc.Analyze(context.Background(), Input{Text: text})
		assert.ErrorIs(t, err, ErrEmptyInput)
	}
	assert.Zero(t, p.callCount())
}

func TestAnalyze_NoMultipliersSkipsModel(t *testing.T) {
	p := &fakePredictor{}
	hist := &mockHistory{}
	plotter := &mockPlotter{}
	latest := NewLatestResult()
	svc := New(p, WithHistory(hist), WithPlotter(plotter), WithLatest(latest))

	_, err := svc.Analyze(context.Background(), Input{Text: "no markers here", Source: model.SourceUserEditedChronological})
	require.Error(t, err)
	assert.ErrorIs(t, err, multiplier.ErrNoMultipliers)

	assert.Zero(t, p.callCount())
	_, ok := latest.Load()
	assert.False(t, ok)
	hist.AssertNotCalled(t, "AppendHistory", mock.Anything, mock.Anything)
	plotter.AssertNotCalled(t, "Render", mock.Anything, mock.Anything)
}

func TestAnalyze_InferenceFailureLeavesNoResult(t *testing.T) {
	p := &fakePredictor{err: &predictor.InferenceError{Model: "fake", Err: errors.New("session crashed")}}
	hist := &mockHistory{}
	latest := NewLatestResult()
	latest.Store(&model.Result{Text: "previous", Multipliers: []float64{1}})
	svc := New(p, WithHistory(hist), WithLatest(latest))

	res, err := svc.Analyze(context.Background(), Input{Text: "2x 3x"})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, predictor.ErrInference)
	assert.Contains(t, err.Error(), "pipeline: predict")

	got, ok := latest.Load()
	require.True(t, ok)
	assert.Equal(t, "previous", got.Text)
	hist.AssertNotCalled(t, "AppendHistory", mock.Anything, mock.Anything)
}

func TestAnalyze_InferenceTimeout(t *testing.T) {
	p := &fakePredictor{delay: time.Second}
	svc := New(p, WithInferenceTimeout(20*time.Millisecond))

	_, err := svc.Analyze(context.Background(), Input{Text: "2x 3x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, predictor.ErrInference)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAnalyze_SideEffectFailuresAreBestEffort(t *testing.T) {
	hist := &mockHistory{}
	hist.On("AppendHistory", mock.Anything, mock.Anything).Return(errors.New("disk full"))
	plotter := &mockPlotter{}
	plotter.On("Render", mock.Anything, mock.Anything).Return(nil, errors.New("no fonts"))

	svc := New(&fakePredictor{out: 4}, WithHistory(hist), WithPlotter(plotter))

	res, err := svc.Analyze(context.Background(), Input{Text: "4x 5x"})
	require.NoError(t, err)
	assert.InDelta(t, 4, res.Prediction, 1e-9)

	latest, ok := svc.Latest()
	require.True(t, ok)
	assert.Equal(t, res.Multipliers, latest.Multipliers)
	hist.AssertExpectations(t)
	plotter.AssertExpectations(t)
}

// cancelingPredictor cancels the caller's context after answering.
type cancelingPredictor struct {
	cancel context.CancelFunc
	out    float64
}

func (c *cancelingPredictor) Predict(context.Context, []float64) (float64, error) {
	c.cancel()
	return c.out, nil
}

func TestAnalyze_SideEffectsSurviveCanceledRequest(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	live := mock.MatchedBy(func(ctx context.Context) bool { return ctx.Err() == nil })
	hist := &mockHistory{}
	hist.On("AppendHistory", live, mock.Anything).Return(nil).Once()
	plotter := &mockPlotter{}
	plotter.On("Render", live, mock.Anything).Return(nil, nil).Once()

	svc := New(&cancelingPredictor{cancel: cancel, out: 3}, WithHistory(hist), WithPlotter(plotter))

	res, err := svc.Analyze(ctx, Input{Text: "2x 3x"})
	require.NoError(t, err)
	require.Error(t, ctx.Err())
	assert.InDelta(t, 3, res.Prediction, 1e-9)
	hist.AssertExpectations(t)
	plotter.AssertExpectations(t)
}

func TestAnalyze_DiscardedCountAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	svc := New(&fakePredictor{out: 1}, WithMetrics(metrics.New(reg)))

	res, err := svc.Analyze(context.Background(), Input{Text: "1.5x ax 2.0x 1.2.3x"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Discarded)
	assert.Equal(t, []float64{1.5, 2.0}, res.Multipliers)
}

func TestAnalyzeImage(t *testing.T) {
	ocrMock := &mockOCR{}
	ocrMock.On("ExtractText", mock.Anything, "/tmp/shot.png").Return("3.10x\n1.00x\n2.45x\n", nil)
	p := &fakePredictor{out: 1.5}

	svc := New(p, WithOCR(ocrMock))
	res, err := svc.AnalyzeImage(context.Background(), "/tmp/shot.png")
	require.NoError(t, err)

	assert.Equal(t, model.SourceCapturedTopDown, res.Source)
	assert.Equal(t, []float64{2.45, 1.0, 3.1}, res.Multipliers)
	ocrMock.AssertExpectations(t)
}

func TestAnalyzeImage_EmptyText(t *testing.T) {
	ocrMock := &mockOCR{}
	ocrMock.On("ExtractText", mock.Anything, mock.Anything).Return("  \n", nil)
	p := &fakePredictor{}

	_, err := New(p, WithOCR(ocrMock)).AnalyzeImage(context.Background(), "/tmp/blank.png")
	assert.ErrorIs(t, err, ErrEmptyInput)
	assert.Zero(t, p.callCount())
}

func TestAnalyzeImage_OCRFailure(t *testing.T) {
	ocrMock := &mockOCR{}
	ocrMock.On("ExtractText", mock.Anything, mock.Anything).Return("", errors.New("tesseract missing"))

	_, err := New(&fakePredictor{}, WithOCR(ocrMock)).AnalyzeImage(context.Background(), "/tmp/shot.png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline: ocr")
	assert.Contains(t, err.Error(), "tesseract missing")
}

func TestAnalyzeImage_NoExtractor(t *testing.T) {
	_, err := New(&fakePredictor{}).AnalyzeImage(context.Background(), "/tmp/shot.png")
	assert.ErrorIs(t, err, ErrNoOCR)
}

func TestLatest_EmptyBeforeFirstSuccess(t *testing.T) {
	_, ok := New(&fakePredictor{}).Latest()
	assert.False(t, ok)
}
