package multiplier

// MaxValue is the ceiling the sequence model was trained on.
const MaxValue = 10.0

// Normalize clamps each value to MaxValue, preserving length and order.
func Normalize(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = min(v, MaxValue)
	}
	return out
}
