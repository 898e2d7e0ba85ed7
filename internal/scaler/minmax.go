// Package scaler provides the min-max transform applied to a multiplier
// sequence before inference. A Transform is fitted fresh for every sequence
// and carries everything needed to invert the model output.
package scaler

import (
	"github.com/rotisserie/eris"
)

// ErrEmpty is returned when fitting an empty sequence.
var ErrEmpty = eris.New("scaler: empty sequence")

// Transform maps values from [Min, Max] onto [0, 1].
//
// When Min == Max (a single value or a constant sequence) the range is taken
// as 1: every value scales to 0 and Inverse(y) returns y + Min. This matches
// the zero-range handling of the MinMaxScaler the model was trained with.
type Transform struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Fit computes the transform for values.
func Fit(values []float64) (Transform, error) {
	if len(values) == 0 {
		return Transform{}, ErrEmpty
	}
	t := Transform{Min: values[0], Max: values[0]}
	for _, v := range values[1:] {
		t.Min = min(t.Min, v)
		t.Max = max(t.Max, v)
	}
	return t, nil
}

// Range returns the divisor used by Scale. It is never zero.
func (t Transform) Range() float64 {
	r := t.Max - t.Min
	if r == 0 {
		return 1
	}
	return r
}

// Degenerate reports whether the fitted values were all equal.
func (t Transform) Degenerate() bool {
	return t.Max == t.Min
}

// Scale maps values into [0, 1]. The input is not modified.
func (t Transform) Scale(values []float64) []float64 {
	r := t.Range()
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = (v - t.Min) / r
	}
	return out
}

// Inverse maps a scaled value back to original units.
func (t Transform) Inverse(y float64) float64 {
	return y*t.Range() + t.Min
}

// FitScale fits a transform to values and returns the scaled sequence with it.
func FitScale(values []float64) ([]float64, Transform, error) {
	t, err := Fit(values)
	if err != nil {
		return nil, Transform{}, err
	}
	return t.Scale(values), t, nil
}
