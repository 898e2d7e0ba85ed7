package plot

import (
	"bytes"
	"context"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_WritesAllArtifacts(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "graphs")
	r := NewRenderer(dir)
	assert.Equal(t, dir, r.Dir())

	paths, err := r.Render(context.Background(), Data{
		Raw:        []float64{1.2, 15, 3.4, 2.2, 1.0},
		Normalized: []float64{1.2, 10, 3.4, 2.2, 1.0},
		Prediction: 2.7,
	})
	require.NoError(t, err)
	require.Len(t, paths, 3)

	for i, name := range Names {
		assert.Equal(t, filepath.Join(dir, name), paths[i])

		data, err := os.ReadFile(paths[i])
		require.NoError(t, err, name)
		_, err = png.DecodeConfig(bytes.NewReader(data))
		assert.NoError(t, err, name)
	}
}

func TestRender_Overwrites(t *testing.T) {
	dir := t.TempDir()
	r := NewRenderer(dir)
	require.NoError(t, os.WriteFile(r.Path(Trend), []byte("stale"), 0644))

	_, err := r.Render(context.Background(), Data{Raw: []float64{1, 2}, Normalized: []float64{1, 2}, Prediction: 1.5})
	require.NoError(t, err)

	data, err := os.ReadFile(r.Path(Trend))
	require.NoError(t, err)
	assert.NotEqual(t, "stale", string(data))
}

func TestRender_NoData(t *testing.T) {
	_, err := NewRenderer(t.TempDir()).Render(context.Background(), Data{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "plot: no data")
}

func TestRender_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRenderer(t.TempDir()).Render(ctx, Data{Raw: []float64{1, 2}, Normalized: []float64{1, 2}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRender_BadDir(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0644))

	_, err := NewRenderer(filepath.Join(file, "graphs")).Render(context.Background(), Data{Raw: []float64{1}, Normalized: []float64{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "plot: create dir")
}
