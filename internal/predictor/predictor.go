// Package predictor invokes a frozen sequence model on a normalized
// multiplier sequence and maps the output back to the multiplier scale.
package predictor

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/multiplier-cli/internal/scaler"
)

var (
	// ErrSequenceLength is matched by every *LengthError.
	ErrSequenceLength = eris.New("predictor: sequence length out of range")
	// ErrInference is matched by every *InferenceError.
	ErrInference = eris.New("predictor: inference failed")
)

// Model is a loaded sequence model. Predict receives a scaled sequence that
// is fed as a [1, N, 1] tensor and returns the single scaled output.
type Model interface {
	Predict(ctx context.Context, seq []float32) (float32, error)
	Close() error
	Name() string
}

// Limits bounds the accepted sequence length. Zero means unbounded; equal
// values require a fixed length.
type Limits struct {
	MinLength int
	MaxLength int
}

func (l Limits) check(n int) error {
	lo := max(l.MinLength, 1)
	if n < lo || (l.MaxLength > 0 && n > l.MaxLength) {
		return &LengthError{Got: n, Limits: l}
	}
	return nil
}

// LengthError reports a sequence the model cannot accept.
type LengthError struct {
	Got    int
	Limits Limits
}

func (e *LengthError) Error() string {
	switch {
	case e.Limits.MaxLength > 0 && e.Limits.MaxLength == e.Limits.MinLength:
		return fmt.Sprintf("predictor: sequence length %d, model requires exactly %d", e.Got, e.Limits.MaxLength)
	case e.Limits.MaxLength > 0:
		return fmt.Sprintf("predictor: sequence length %d outside [%d, %d]", e.Got, max(e.Limits.MinLength, 1), e.Limits.MaxLength)
	default:
		return fmt.Sprintf("predictor: sequence length %d below minimum %d", e.Got, max(e.Limits.MinLength, 1))
	}
}

func (e *LengthError) Is(target error) bool { return target == ErrSequenceLength }

// InferenceError wraps a failed or unusable model invocation.
type InferenceError struct {
	Model string
	Err   error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("predictor: %s inference: %v", e.Model, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

func (e *InferenceError) Is(target error) bool { return target == ErrInference }

// Adapter prepares sequences for a Model and serializes access to it.
type Adapter struct {
	mu     sync.Mutex
	model  Model
	limits Limits
}

// NewAdapter wraps m with the given length limits.
func NewAdapter(m Model, limits Limits) *Adapter {
	return &Adapter{model: m, limits: limits}
}

// Limits returns the configured sequence bounds.
func (a *Adapter) Limits() Limits { return a.limits }

// ModelName returns the name of the wrapped model.
func (a *Adapter) ModelName() string { return a.model.Name() }

// Predict scales normalized with a min-max transform fitted on the sequence
// itself, runs the model and returns the inverse-scaled prediction.
func (a *Adapter) Predict(ctx context.Context, normalized []float64) (float64, error) {
	if err := a.limits.check(len(normalized)); err != nil {
		return 0, err
	}

	scaled, tr, err := scaler.FitScale(normalized)
	if err != nil {
		return 0, &LengthError{Got: len(normalized), Limits: a.limits}
	}

	seq := make([]float32, len(scaled))
	for i, v := range scaled {
		seq[i] = float32(v)
	}

	a.mu.Lock()
	out, err := a.model.Predict(ctx, seq)
	a.mu.Unlock()

	if err != nil {
		return 0, &InferenceError{Model: a.model.Name(), Err: err}
	}
	if math.IsNaN(float64(out)) || math.IsInf(float64(out), 0) {
		return 0, &InferenceError{Model: a.model.Name(), Err: eris.Errorf("non-finite output %v", out)}
	}

	return tr.Inverse(float64(out)), nil
}

// Close releases the wrapped model.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.model.Close()
}
