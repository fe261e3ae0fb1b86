package report

import (
	"context"
	"fmt"
	"image/color"
	"strconv"

	"github.com/alan-christopher/qkdsim/qkd/sim"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Plot geometry. The y axis always spans the full QBER range.
var (
	PlotWidth  = 8 * vg.Inch
	PlotHeight = 6 * vg.Inch
	yTickStep  = 5
)

var (
	qberColor  = color.RGBA{B: 255, A: 255}
	trendColor = color.RGBA{R: 255, A: 255}
)

// A Plot renders the QBER series of a run as a scatter with its linear trend.
// The image format follows the extension of Path.
type Plot struct {
	Path string
}

// Report implements sim.Reporter.
func (pl *Plot) Report(_ context.Context, res *sim.RunResult) error {
	p, err := newPlot(res)
	if err != nil {
		return err
	}
	if err := p.Save(PlotWidth, PlotHeight, pl.Path); err != nil {
		return fmt.Errorf("saving plot: %w", err)
	}
	return nil
}

func newPlot(res *sim.RunResult) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("QBER of %s for %d Cycle(s) of %d Qubit(s) Per Cycle",
		res.Protocol, len(res.QBERs), res.Config.Qubits)
	p.X.Label.Text = "CYCLE(S)"
	p.Y.Label.Text = "QBER (%)"
	p.Y.Min, p.Y.Max = 0, 100
	p.Y.Tick.Marker = qberTicks()
	p.Legend.Top = true

	pts := make(plotter.XYs, len(res.QBERs))
	for i, q := range res.QBERs {
		pts[i].X, pts[i].Y = float64(i), q
	}
	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return nil, fmt.Errorf("building scatter: %w", err)
	}
	scatter.GlyphStyle.Color = qberColor
	scatter.GlyphStyle.Radius = vg.Points(1.5)
	p.Add(scatter)
	p.Legend.Add("QBER", scatter)

	if len(res.QBERs) > 1 {
		trend := make(plotter.XYs, len(res.QBERs))
		for i := range trend {
			trend[i].X = float64(i)
			trend[i].Y = res.Trend.At(float64(i))
		}
		line, err := plotter.NewLine(trend)
		if err != nil {
			return nil, fmt.Errorf("building trend: %w", err)
		}
		line.LineStyle.Color = trendColor
		line.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		p.Add(line)
		p.Legend.Add("Avg. QBER", line)
	}
	return p, nil
}

func qberTicks() plot.ConstantTicks {
	var ticks plot.ConstantTicks
	for v := 0; v <= 100; v += yTickStep {
		ticks = append(ticks, plot.Tick{Value: float64(v), Label: strconv.Itoa(v)})
	}
	return ticks
}
