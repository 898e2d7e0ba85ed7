// Package plot renders the diagnostic charts written after each prediction.
package plot

import (
	"context"
	"image/color"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Artifact file names, overwritten on every render.
const (
	PredictionVsReal = "prediction_vs_real.png"
	Histogram        = "multipliers_histogram.png"
	Trend            = "multipliers_trend.png"
)

// Names lists every artifact a render produces.
var Names = []string{PredictionVsReal, Histogram, Trend}

const histogramBins = 10

var (
	realColor       = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	predictionColor = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	histogramColor  = color.RGBA{B: 255, A: 178}
)

// Data is the input of one render.
type Data struct {
	// Raw holds the ordered multipliers before clamping.
	Raw []float64
	// Normalized holds the clamped sequence fed to the model.
	Normalized []float64
	Prediction float64
}

// Renderer writes PNG charts into a directory.
type Renderer struct {
	dir    string
	width  vg.Length
	height vg.Length
}

// NewRenderer creates a Renderer writing 10x5 inch images into dir.
func NewRenderer(dir string) *Renderer {
	return &Renderer{dir: dir, width: 10 * vg.Inch, height: 5 * vg.Inch}
}

// Dir returns the output directory.
func (r *Renderer) Dir() string { return r.dir }

// Path returns the output path of a named artifact.
func (r *Renderer) Path(name string) string {
	return filepath.Join(r.dir, name)
}

// Render draws the three charts concurrently and returns their paths.
func (r *Renderer) Render(ctx context.Context, d Data) ([]string, error) {
	if len(d.Raw) == 0 || len(d.Normalized) == 0 {
		return nil, eris.New("plot: no data")
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "plot: create dir %s", r.dir)
	}

	g, gctx := errgroup.WithContext(ctx)
	jobs := map[string]func() (*plot.Plot, error){
		PredictionVsReal: func() (*plot.Plot, error) { return predictionVsReal(d.Normalized, d.Prediction) },
		Histogram:        func() (*plot.Plot, error) { return histogram(d.Raw) },
		Trend:            func() (*plot.Plot, error) { return trend(d.Raw) },
	}
	for _, name := range Names {
		build := jobs[name]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			p, err := build()
			if err != nil {
				return eris.Wrapf(err, "plot: build %s", name)
			}
			if err := p.Save(r.width, r.height, r.Path(name)); err != nil {
				return eris.Wrapf(err, "plot: save %s", name)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	paths := make([]string, len(Names))
	for i, name := range Names {
		paths[i] = r.Path(name)
	}
	zap.L().Debug("plots rendered", zap.String("dir", r.dir), zap.Int("points", len(d.Raw)))
	return paths, nil
}

func indexed(values []float64) plotter.XYs {
	pts := make(plotter.XYs, len(values))
	for i, v := range values {
		pts[i].X = float64(i)
		pts[i].Y = v
	}
	return pts
}

func predictionVsReal(normalized []float64, prediction float64) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Real values vs prediction"
	p.X.Label.Text = "Index"
	p.Y.Label.Text = "Multiplier"

	actual, err := plotter.NewLine(indexed(normalized))
	if err != nil {
		return nil, err
	}
	actual.Color = realColor

	last := float64(max(len(normalized)-1, 1))
	pred, err := plotter.NewLine(plotter.XYs{{X: 0, Y: prediction}, {X: last, Y: prediction}})
	if err != nil {
		return nil, err
	}
	pred.Color = predictionColor
	pred.Dashes = []vg.Length{vg.Points(6), vg.Points(4)}

	p.Add(actual, pred)
	p.Legend.Add("Real values", actual)
	p.Legend.Add("Prediction", pred)
	return p, nil
}

func histogram(raw []float64) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Multiplier distribution"
	p.X.Label.Text = "Multiplier"
	p.Y.Label.Text = "Frequency"

	h, err := plotter.NewHist(plotter.Values(raw), histogramBins)
	if err != nil {
		return nil, err
	}
	h.FillColor = histogramColor
	p.Add(h)
	return p, nil
}

func trend(raw []float64) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Multiplier trend"
	p.X.Label.Text = "Index"
	p.Y.Label.Text = "Multiplier"

	l, err := plotter.NewLine(indexed(raw))
	if err != nil {
		return nil, err
	}
	l.Color = realColor
	p.Add(l)
	p.Legend.Add("Original multipliers", l)
	return p, nil
}
