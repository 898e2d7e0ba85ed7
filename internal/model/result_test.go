package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceOrderValues(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "captured_top_down", string(SourceCapturedTopDown))
	assert.Equal(t, "user_edited_chronological", string(SourceUserEditedChronological))
}

func TestParseSourceOrder(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want SourceOrder
	}{
		{"captured", SourceCapturedTopDown},
		{"screenshot", SourceCapturedTopDown},
		{"image", SourceCapturedTopDown},
		{"captured_top_down", SourceCapturedTopDown},
		{"edited", SourceUserEditedChronological},
		{"text", SourceUserEditedChronological},
		{"", SourceUserEditedChronological},
		{"user_edited_chronological", SourceUserEditedChronological},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseSourceOrder(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseSourceOrder_Unknown(t *testing.T) {
	t.Parallel()

	_, err := ParseSourceOrder("sideways")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown source order "sideways"`)
}

func TestResultClone(t *testing.T) {
	t.Parallel()

	orig := &Result{
		Text:        "2.5x 1.3x",
		Multipliers: []float64{2.5, 1.3},
		Prediction:  1.9,
		Source:      SourceUserEditedChronological,
		CreatedAt:   time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	cp := orig.Clone()
	require.NotNil(t, cp)
	assert.Equal(t, orig, cp)

	cp.Multipliers[0] = 99
	assert.InDelta(t, 2.5, orig.Multipliers[0], 1e-9)
}

func TestResultClone_Nil(t *testing.T) {
	t.Parallel()

	var r *Result
	assert.Nil(t, r.Clone())
}
