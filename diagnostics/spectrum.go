// Package diagnostics renders plots that help to assess a calibration.
package diagnostics

import (
	"fmt"

	"github.com/rodrigo-romano/gmt-ns-im/reconstruct"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// Spectrum returns the singular values of every segment as plot points, the
// x coordinate being the 1-based singular value index. Zero singular values
// are skipped as they can't be drawn on a log scale.
func Spectrum(r *reconstruct.Reconstructor) ([]plotter.XYs, error) {
	if !r.Inverted() {
		return nil, reconstruct.ErrNotInverted
	}
	res := make([]plotter.XYs, r.Len())
	for index := range res {
		values := r.SingularValues(index)
		pts := make(plotter.XYs, 0, len(values))
		for i, v := range values {
			if v > 0 {
				pts = append(pts, plotter.XY{X: float64(i + 1), Y: v})
			}
		}
		res[index] = pts
	}
	return res, nil
}

// PlotSpectrum saves the singular value spectra of r to path; the format
// follows the file extension (png, svg, pdf, eps...).
func PlotSpectrum(r *reconstruct.Reconstructor, title, path string) error {
	spectra, err := Spectrum(r)
	if err != nil {
		return err
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "singular value index"
	p.Y.Label.Text = "singular value"
	p.Y.Scale = plot.LogScale{}
	p.Y.Tick.Marker = plot.LogTicks{}

	lines := make([]interface{}, 0, 2*len(spectra))
	for index, pts := range spectra {
		if len(pts) == 0 {
			continue
		}
		lines = append(lines, fmt.Sprintf("S%d", index+1), pts)
	}
	if err := plotutil.AddLinePoints(p, lines...); err != nil {
		return err
	}

	return p.Save(6*vg.Inch, 4*vg.Inch, path)
}
