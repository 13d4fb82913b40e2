package telemetry

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// PlotFitness renders best and mean fitness by generation to a PNG.
func PlotFitness(path string, history []GenStats) error {
	if len(history) == 0 {
		return fmt.Errorf("plot fitness: no generations recorded")
	}

	p := plot.New()
	p.Title.Text = "fitness by generation"
	p.X.Label.Text = "generation"
	p.Y.Label.Text = "fitness"

	bestPts := make(plotter.XYs, len(history))
	meanPts := make(plotter.XYs, len(history))
	for i, s := range history {
		bestPts[i].X = float64(s.Generation)
		bestPts[i].Y = s.BestFitness
		meanPts[i].X = float64(s.Generation)
		meanPts[i].Y = s.MeanFitness
	}

	bestLine, err := plotter.NewLine(bestPts)
	if err != nil {
		return fmt.Errorf("plot fitness: %w", err)
	}
	bestLine.Color = color.RGBA{0, 80, 255, 255}

	meanLine, err := plotter.NewLine(meanPts)
	if err != nil {
		return fmt.Errorf("plot fitness: %w", err)
	}
	meanLine.Color = color.RGBA{128, 128, 128, 255}

	p.Add(bestLine, meanLine)
	p.Legend.Add("best", bestLine)
	p.Legend.Add("mean", meanLine)
	p.Legend.Top = true
	p.Legend.Left = true

	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("plot fitness: %w", err)
	}
	return nil
}
