// Package report renders diagnostic plots of refinement output.
package report

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/miradorstack/autotoa/internal/models"
)

var (
	fittingColor   = color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}
	persistedColor = color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff}
)

// PlotTemplate draws the reference polarization of the smoothed fitting
// template and of the persisted (unsmoothed) template against pulse phase.
// The image format follows the file extension (png, svg, pdf, ...).
func PlotTemplate(path string, fitting, persisted *models.Template) error {
	if fitting == nil || persisted == nil {
		return fmt.Errorf("plot template: both templates are required")
	}
	if fitting.Nbin() == 0 || fitting.Nbin() != persisted.Nbin() {
		return fmt.Errorf("plot template: nbin mismatch %d != %d", fitting.Nbin(), persisted.Nbin())
	}

	p := plot.New()
	p.Title.Text = "Template"
	if fitting.Source != "" {
		p.Title.Text = fmt.Sprintf("%s template", fitting.Source)
	}
	p.X.Label.Text = "Pulse phase (turns)"
	p.Y.Label.Text = "Amplitude"

	persistedLine, err := plotter.NewLine(phaseSeries(persisted.Reference()))
	if err != nil {
		return err
	}
	persistedLine.Color = persistedColor
	persistedLine.Width = vg.Points(1)
	p.Add(persistedLine)
	p.Legend.Add("persisted (unsmoothed)", persistedLine)

	fittingLine, err := plotter.NewLine(phaseSeries(fitting.Reference()))
	if err != nil {
		return err
	}
	fittingLine.Color = fittingColor
	fittingLine.Width = vg.Points(1.5)
	p.Add(fittingLine)
	p.Legend.Add("fitting (smoothed)", fittingLine)

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("plot template: create output dir: %w", err)
		}
	}
	if err := p.Save(10*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("plot template: save %s: %w", path, err)
	}
	return nil
}

func phaseSeries(prof *models.Profile) plotter.XYs {
	n := prof.Nbin()
	pts := make(plotter.XYs, n)
	for i, v := range prof.Amps {
		pts[i] = plotter.XY{X: float64(i) / float64(n), Y: v}
	}
	return pts
}
