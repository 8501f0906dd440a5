package visualization

import (
	"strconv"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// PlotBasinSizes writes a bar chart of voxel count per basin to path. sizes[i]
// is the size of basin i+1. The image format follows the file extension
// (png, svg, pdf, ...).
func PlotBasinSizes(sizes []int, path string) error {
	if len(sizes) == 0 {
		return errors.New("no basins to plot")
	}
	values := make(plotter.Values, len(sizes))
	for i, s := range sizes {
		values[i] = float64(s)
	}

	p := plot.New()
	p.Title.Text = "Basin sizes"
	p.X.Label.Text = "Basin"
	p.Y.Label.Text = "Voxels"

	width := vg.Points(max(1, 400/float64(len(sizes))))
	bars, err := plotter.NewBarChart(values, width)
	if err != nil {
		return errors.Wrap(err, "build bar chart")
	}
	bars.LineStyle.Width = vg.Length(0)
	bars.Color = Palette(1)[1]
	p.Add(bars)

	if len(sizes) <= 32 {
		names := make([]string, len(sizes))
		for i := range names {
			names[i] = strconv.Itoa(i + 1)
		}
		p.NominalX(names...)
	}

	if err := p.Save(8*vg.Inch, 4*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "save plot %s", path)
	}
	return nil
}
