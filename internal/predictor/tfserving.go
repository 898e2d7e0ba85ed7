package predictor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/multiplier-cli/internal/resilience"
)

// TFServingOption configures a TFServingModel.
type TFServingOption func(*TFServingModel)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) TFServingOption {
	return func(m *TFServingModel) {
		m.http = hc
	}
}

// WithGuard sets the retry and circuit-breaker policy.
func WithGuard(g *resilience.Guard) TFServingOption {
	return func(m *TFServingModel) {
		m.guard = g
	}
}

// WithRateLimit caps outgoing requests per second. Zero disables limiting.
func WithRateLimit(perSec float64) TFServingOption {
	return func(m *TFServingModel) {
		if perSec <= 0 {
			m.limiter = nil
			return
		}
		m.limiter = rate.NewLimiter(rate.Limit(perSec), max(1, int(perSec)))
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// TFServingModel calls a TensorFlow Serving REST endpoint hosting the model.
type TFServingModel struct {
	baseURL string
	model   string
	http    *http.Client
	guard   *resilience.Guard
	limiter *rate.Limiter
}

type tfPredictRequest struct {
	Instances [][][]float32 `json:"instances"`
}

type tfPredictResponse struct {
	Predictions [][]float32 `json:"predictions"`
	Error       string      `json:"error"`
}

// NewTFServingModel creates a client for POST {baseURL}/v1/models/{model}:predict.
func NewTFServingModel(baseURL, model string, opts ...TFServingOption) *TFServingModel {
	m := &TFServingModel{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		http:    newHTTPClient(10 * time.Second),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Name returns the served model name.
func (m *TFServingModel) Name() string {
	return "tfserving:" + m.model
}

// Close is a no-op; the client holds no model state.
func (m *TFServingModel) Close() error { return nil }

// Predict sends seq as a single [N, 1] instance.
func (m *TFServingModel) Predict(ctx context.Context, seq []float32) (float32, error) {
	instance := make([][]float32, len(seq))
	for i, v := range seq {
		instance[i] = []float32{v}
	}
	body, err := json.Marshal(tfPredictRequest{Instances: [][][]float32{instance}})
	if err != nil {
		return 0, eris.Wrap(err, "tfserving: marshal request")
	}

	call := func(ctx context.Context) (float32, error) {
		if m.limiter != nil {
			if err := m.limiter.Wait(ctx); err != nil {
				return 0, eris.Wrap(err, "tfserving: rate limit")
			}
		}
		return m.do(ctx, body)
	}

	if m.guard == nil {
		return call(ctx)
	}
	return resilience.Run(ctx, m.guard, call)
}

func (m *TFServingModel) do(ctx context.Context, body []byte) (float32, error) {
	url := fmt.Sprintf("%s/v1/models/%s:predict", m.baseURL, m.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, eris.Wrap(err, "tfserving: create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.http.Do(req)
	if err != nil {
		return 0, eris.Wrap(err, "tfserving: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, eris.Wrap(err, "tfserving: read response")
	}

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("tfserving: status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return 0, resilience.NewTransientError(err, resp.StatusCode)
		}
		return 0, err
	}

	var out tfPredictResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return 0, eris.Wrap(err, "tfserving: decode response")
	}
	if out.Error != "" {
		return 0, eris.Errorf("tfserving: %s", out.Error)
	}
	if len(out.Predictions) == 0 || len(out.Predictions[0]) == 0 {
		return 0, eris.New("tfserving: empty predictions")
	}
	return out.Predictions[0][0], nil
}
