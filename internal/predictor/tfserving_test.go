package predictor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/multiplier-cli/internal/config"
	"github.com/sells-group/multiplier-cli/internal/resilience"
)

func fastGuard() *resilience.Guard {
	return resilience.NewGuard("test",
		config.RetryConfig{MaxAttempts: 3, InitialBackoffMs: 1, MaxBackoffMs: 2, Multiplier: 1},
		config.CircuitConfig{FailureThreshold: 10, ResetTimeoutSecs: 1},
	)
}

func TestTFServing_Predict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/models/lstm:predict", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req tfPredictRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Instances, 1)
		assert.Equal(t, [][]float32{{0}, {0.5}, {1}}, req.Instances[0])

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"predictions": [[0.75]]}`)) //nolint:errcheck
	}))
	defer srv.Close()

	m := NewTFServingModel(srv.URL+"/", "lstm")
	out, err := m.Predict(context.Background(), []float32{0, 0.5, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.75, out, 1e-6)
	assert.Equal(t, "tfserving:lstm", m.Name())
	assert.NoError(t, m.Close())
}

func TestTFServing_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"predictions": [[0.1]]}`)) //nolint:errcheck
	}))
	defer srv.Close()

	m := NewTFServingModel(srv.URL, "lstm", WithGuard(fastGuard()), WithRateLimit(1000))
	out, err := m.Predict(context.Background(), []float32{0, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.1, out, 1e-6)
	assert.Equal(t, int32(3), calls.Load())
}

func TestTFServing_NoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "bad shape"}`)) //nolint:errcheck
	}))
	defer srv.Close()

	m := NewTFServingModel(srv.URL, "lstm", WithGuard(fastGuard()))
	_, err := m.Predict(context.Background(), []float32{0, 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.Equal(t, int32(1), calls.Load())
}

func TestTFServing_ErrorField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error": "model not loaded"}`)) //nolint:errcheck
	}))
	defer srv.Close()

	_, err := NewTFServingModel(srv.URL, "lstm").Predict(context.Background(), []float32{1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestTFServing_EmptyPredictions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"predictions": []}`)) //nolint:errcheck
	}))
	defer srv.Close()

	_, err := NewTFServingModel(srv.URL, "lstm").Predict(context.Background(), []float32{1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty predictions")
}

func TestTFServing_ThroughAdapter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	a := NewAdapter(NewTFServingModel(srv.URL, "lstm", WithGuard(fastGuard())), Limits{})
	_, err := a.Predict(context.Background(), []float64{1, 2})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInference)
	assert.True(t, resilience.IsTransient(err))
}
