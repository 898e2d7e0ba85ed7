package pipeline

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/multiplier-cli/internal/model"
)

func TestLatestResult_Empty(t *testing.T) {
	l := NewLatestResult()
	r, ok := l.Load()
	assert.False(t, ok)
	assert.Nil(t, r)
}

func TestLatestResult_StoreCopies(t *testing.T) {
	l := NewLatestResult()
	in := &model.Result{Text: "1x 2x", Multipliers: []float64{1, 2}, Prediction: 1.5}
	l.Store(in)

	in.Multipliers[0] = 99

	out, ok := l.Load()
	require.True(t, ok)
	assert.Equal(t, []float64{1, 2}, out.Multipliers)

	out.Multipliers[1] = 42
	again, _ := l.Load()
	assert.Equal(t, []float64{1, 2}, again.Multipliers)
}

func TestLatestResult_Overwrite(t *testing.T) {
	l := NewLatestResult()
	l.Store(&model.Result{Text: "first"})
	l.Store(&model.Result{Text: "second"})

	out, ok := l.Load()
	require.True(t, ok)
	assert.Equal(t, "second", out.Text)
}

func TestLatestResult_ConcurrentAccess(t *testing.T) {
	l := NewLatestResult()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			l.Store(&model.Result{Text: fmt.Sprint(i), Multipliers: []float64{float64(i), float64(i)}})
		}()
		go func() {
			defer wg.Done()
			if r, ok := l.Load(); ok {
				// Both values are written together, so a reader never sees a mix.
				assert.Equal(t, r.Multipliers[0], r.Multipliers[1])
			}
		}()
	}
	wg.Wait()
}
