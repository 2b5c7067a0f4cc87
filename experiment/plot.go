package experiment

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// SaveLossCurves renders per-epoch loss curves to a PNG file. Each entry in
// curves is one named line, e.g. training and validation loss.
func SaveLossCurves(path string, curves map[string][]float64) error {
	p, err := plot.New()
	if err != nil {
		return err
	}

	p.Title.Text = "Loss"
	p.X.Label.Text = "epoch"
	p.Y.Label.Text = "loss"

	for name, values := range curves {
		pts := make(plotter.XYs, len(values))
		for i, v := range values {
			pts[i].X = float64(i)
			pts[i].Y = v
		}

		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("experiment: unable to plot %q: %w", name, err)
		}

		p.Add(line)
		p.Legend.Add(name, line)
	}

	return p.Save(6*vg.Inch, 4*vg.Inch, path)
}
