// Package export renders recorded runs and pole maps to image files.
package export

import (
	"errors"
	"fmt"
	"image/color"

	"github.com/san-kum/conesim/internal/analysis"
	"github.com/san-kum/conesim/internal/dynamo"
	"github.com/san-kum/conesim/internal/poles"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

var ErrNoData = errors.New("export: nothing to plot")

const (
	Width  = 8 * vg.Inch
	Height = 6 * vg.Inch
)

var stateLabels = []string{"x1 position (m)", "x2 velocity (m/s)", "x3 tilt (rad)", "x4 tilt rate (rad/s)"}

func stateLabel(i int) string {
	if i < len(stateLabels) {
		return stateLabels[i]
	}
	return fmt.Sprintf("x%d", i+1)
}

// TrajectoryPlot draws the selected state columns against time. With no
// columns every state is drawn.
func TrajectoryPlot(title string, times []float64, states []dynamo.State, columns ...int) (*plot.Plot, error) {
	n := min(len(times), len(states))
	if n == 0 {
		return nil, ErrNoData
	}
	if len(columns) == 0 {
		for i := range states[0] {
			columns = append(columns, i)
		}
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "time (s)"
	p.Y.Label.Text = "state"
	p.Legend.Top = true
	p.Add(plotter.NewGrid())

	for ci, col := range columns {
		if col < 0 || col >= len(states[0]) {
			return nil, fmt.Errorf("column %d of %d-state trajectory: %w", col, len(states[0]), dynamo.ErrDimensionMismatch)
		}
		pts := make(plotter.XYs, 0, n)
		for i := 0; i < n; i++ {
			if col >= len(states[i]) {
				continue
			}
			pts = append(pts, plotter.XY{X: times[i], Y: states[i][col]})
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("column %d: %w", col, err)
		}
		line.LineStyle.Width = vg.Points(1.5)
		line.LineStyle.Color = plotutil.Color(ci)
		p.Add(line)
		p.Legend.Add(stateLabel(col), line)
	}
	return p, nil
}

// RenderTrajectory writes a trajectory plot to path. The format follows
// the extension: .png, .svg, .pdf and the other formats gonum/plot knows.
func RenderTrajectory(path string, times []float64, states []dynamo.State, columns ...int) error {
	p, err := TrajectoryPlot("closed-loop response", times, states, columns...)
	if err != nil {
		return err
	}
	if err := p.Save(Width, Height, path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

var (
	stableColor   = color.RGBA{R: 0x2e, G: 0x7d, B: 0x32, A: 0xff}
	marginalColor = color.RGBA{R: 0xff, G: 0x8c, B: 0x00, A: 0xff}
	unstableColor = color.RGBA{R: 0xd3, G: 0x2f, B: 0x2f, A: 0xff}
)

// PoleMapPlot scatters the poles of every sweep point in the complex
// plane, coloured by classification, with the stability boundary drawn at
// the classifier's axis offset.
func PoleMapPlot(points []analysis.SweepPoint, c poles.Classifier) (*plot.Plot, error) {
	groups := map[poles.Stability]plotter.XYs{}
	minY, maxY := 0.0, 0.0
	for _, sp := range points {
		for _, pl := range sp.Poles {
			s := c.Classify(pl)
			groups[s] = append(groups[s], plotter.XY{X: pl.Real(), Y: pl.Imag()})
			minY = min(minY, pl.Imag())
			maxY = max(maxY, pl.Imag())
		}
	}
	if len(groups) == 0 {
		return nil, ErrNoData
	}

	p := plot.New()
	p.Title.Text = "closed-loop poles"
	p.X.Label.Text = "Re λ"
	p.Y.Label.Text = "Im λ"
	p.Add(plotter.NewGrid())

	if maxY == minY {
		minY, maxY = -1, 1
	}
	boundary, err := plotter.NewLine(plotter.XYs{{X: c.AxisOffset, Y: minY}, {X: c.AxisOffset, Y: maxY}})
	if err != nil {
		return nil, err
	}
	boundary.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
	p.Add(boundary)

	styles := []struct {
		s     poles.Stability
		col   color.Color
		shape draw.GlyphDrawer
	}{
		{poles.Stable, stableColor, draw.CircleGlyph{}},
		{poles.Marginal, marginalColor, draw.RingGlyph{}},
		{poles.Unstable, unstableColor, draw.CrossGlyph{}},
	}
	for _, st := range styles {
		pts, ok := groups[st.s]
		if !ok {
			continue
		}
		sc, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, err
		}
		sc.GlyphStyle.Color = st.col
		sc.GlyphStyle.Shape = st.shape
		sc.GlyphStyle.Radius = vg.Points(2.5)
		p.Add(sc)
		p.Legend.Add(st.s.String(), sc)
	}
	return p, nil
}

func RenderPoleMap(path string, points []analysis.SweepPoint, c poles.Classifier) error {
	p, err := PoleMapPlot(points, c)
	if err != nil {
		return err
	}
	if err := p.Save(Width, Height, path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}
