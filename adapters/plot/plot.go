// Package plot renders fits, scans and ensembles as PNG images.
package plot

import (
	"fmt"
	"image/color"
	"os"
	"strings"

	"gaussfit/domain/fit"
	"gaussfit/internal/errors"
	"gaussfit/internal/experiment"
	"gaussfit/internal/histogram"
	"gaussfit/internal/objective"

	gonumplot "gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

const (
	width  = 16 * vg.Centimeter
	height = 12 * vg.Centimeter

	curveSamples  = 400
	ensembleBins  = 40
	toyBins       = 50
	ensembleScale = 2
)

var methodColors = map[fit.Method]color.Color{
	fit.MethodChi2: color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff},
	fit.MethodNLL:  color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff},
}

var (
	barFill   = color.RGBA{R: 0xc8, G: 0xc8, B: 0xc8, A: 0xff}
	levelGray = color.RGBA{R: 0x80, G: 0x80, B: 0x80, A: 0xff}
	dashes    = []vg.Length{vg.Points(4), vg.Points(3)}
)

// FitPlot draws h as bars with the fitted model of every result on top
func FitPlot(path string, h *histogram.Histogram, results ...*fit.Result) error {
	p := gonumplot.New()
	p.Title.Text = fmt.Sprintf("%s (%d entries)", h.Name(), h.Entries())
	p.X.Label.Text = "x"
	p.Y.Label.Text = "entries / bin"
	p.Add(plotter.NewGrid())

	bars := histogramBars(h)
	p.Add(bars)

	for _, res := range results {
		if res == nil {
			continue
		}
		params := res.Params()
		curve := plotter.NewFunction(func(x float64) float64 {
			return objective.Model(x, params)
		})
		curve.XMin, curve.XMax = h.Low(), h.High()
		curve.Samples = curveSamples
		curve.Width = vg.Points(1.5)
		curve.Color = methodColor(res.Method)
		p.Add(curve)

		mean, sigma := res.Param(fit.ParamMean), res.Param(fit.ParamSigma)
		p.Legend.Add(fmt.Sprintf("%s: mean %.2f±%.2f, sigma %.2f", strings.ToUpper(string(res.Method)),
			mean.Value, mean.Error, sigma.Value), curve)
	}
	p.Legend.Top = true

	return save(p, path)
}

// histogramBars converts the bin counters without re-binning
func histogramBars(h *histogram.Histogram) *plotter.Histogram {
	bins := h.Bins()
	out := make([]plotter.HistogramBin, len(bins))
	for i, b := range bins {
		out[i] = plotter.HistogramBin{Min: b.Low, Max: b.High, Weight: float64(b.Count)}
	}
	return &plotter.Histogram{
		Bins:      out,
		Width:     h.Width(),
		FillColor: barFill,
		LineStyle: plotter.DefaultLineStyle,
	}
}

// ScanPlot draws the deviance curve with dashed lines at the minimum and
// at one and two standard deviations above it.
func ScanPlot(path string, scan *fit.ScanResult) error {
	if len(scan.Points) < 2 {
		return errors.InvalidInput("scan has fewer than two points")
	}
	p := gonumplot.New()
	p.Title.Text = fmt.Sprintf("%s %s scan of %s", scan.Mode, strings.ToUpper(string(scan.Method)), scan.Param)
	p.X.Label.Text = scan.Param.String()
	if scan.Method == fit.MethodNLL {
		p.Y.Label.Text = "-2 ln L"
	} else {
		p.Y.Label.Text = "chi2"
	}
	p.Add(plotter.NewGrid())

	xys := make(plotter.XYs, len(scan.Points))
	for i, pt := range scan.Points {
		xys[i].X, xys[i].Y = pt.Value, pt.Deviance
	}
	curve, err := plotter.NewLine(xys)
	if err != nil {
		return errors.Wrap(err, "failed to build scan curve")
	}
	curve.Color = methodColor(scan.Method)
	curve.Width = vg.Points(1.5)
	p.Add(curve)

	lo, hi := xys[0].X, xys[len(xys)-1].X
	for _, delta := range []float64{0, 1, 4} {
		level := scan.Minimum.Deviance + delta
		line, err := plotter.NewLine(plotter.XYs{{X: lo, Y: level}, {X: hi, Y: level}})
		if err != nil {
			return errors.Wrap(err, "failed to build level line")
		}
		line.Color = levelGray
		line.Dashes = dashes
		p.Add(line)
		if delta > 0 {
			p.Legend.Add(fmt.Sprintf("min + %g", delta), line)
		}
	}
	return save(p, path)
}

// EnsemblePlot draws the 2x2 ensemble panel for one method: reduced
// statistic, p-value, fitted mean and mean error.
func EnsemblePlot(path string, ens *experiment.Ensemble, method fit.Method) error {
	results := ens.Results(method)
	if len(results) == 0 {
		return errors.InvalidInput(fmt.Sprintf("no successful %s fits to plot", method))
	}

	columns := [4]plotter.Values{}
	for _, res := range results {
		columns[0] = append(columns[0], res.ReducedStatistic())
		columns[1] = append(columns[1], res.PValue)
		columns[2] = append(columns[2], res.Param(fit.ParamMean).Value)
		columns[3] = append(columns[3], res.Param(fit.ParamMean).Error)
	}
	titles := [4]string{"reduced statistic", "p-value", "fitted mean", "mean error"}

	plots := make([][]*gonumplot.Plot, 2)
	for row := range plots {
		plots[row] = make([]*gonumplot.Plot, 2)
		for col := range plots[row] {
			i := 2*row + col
			p, err := valuesPlot(titles[i], columns[i], ensembleBins, methodColor(method))
			if err != nil {
				return err
			}
			plots[row][col] = p
		}
	}

	img := vgimg.New(ensembleScale*width, ensembleScale*height)
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows:      2,
		Cols:      2,
		PadX:      vg.Millimeter,
		PadY:      vg.Millimeter,
		PadTop:    vg.Points(2),
		PadBottom: vg.Points(2),
		PadLeft:   vg.Points(2),
		PadRight:  vg.Points(2),
	}
	canvases := gonumplot.Align(plots, tiles, dc)
	for row := range plots {
		for col := range plots[row] {
			plots[row][col].Draw(canvases[row][col])
		}
	}
	return writePNG(vgimg.PngCanvas{Canvas: img}, path)
}

// ToyPlot draws the toy likelihood-ratio distribution with the observed value marked
func ToyPlot(path string, toys *experiment.ToyResult) error {
	if len(toys.Toys) == 0 {
		return errors.InvalidInput("no toys to plot")
	}
	p, err := valuesPlot(fmt.Sprintf("toy likelihood ratios (p = %.3f)", toys.PValue), toys.Toys, toyBins, methodColor(fit.MethodNLL))
	if err != nil {
		return err
	}
	p.X.Label.Text = "2 ln(L_sat / L)"

	// the axis range already spans the tallest bin
	marker, err := plotter.NewLine(plotter.XYs{{X: toys.Observed, Y: 0}, {X: toys.Observed, Y: p.Y.Max}})
	if err != nil {
		return errors.Wrap(err, "failed to build observed marker")
	}
	marker.Color = methodColor(fit.MethodChi2)
	marker.Width = vg.Points(1.5)
	p.Add(marker)
	p.Legend.Add(fmt.Sprintf("observed %.1f", toys.Observed), marker)
	p.Legend.Top = true
	return save(p, path)
}

func valuesPlot(title string, values plotter.Values, bins int, c color.Color) (*gonumplot.Plot, error) {
	p := gonumplot.New()
	p.Title.Text = title
	p.Y.Label.Text = "entries"
	p.Add(plotter.NewGrid())

	hist, err := plotter.NewHist(values, bins)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to bin %s", title)
	}
	hist.FillColor = c
	p.Add(hist)
	return p, nil
}

func methodColor(m fit.Method) color.Color {
	if c, ok := methodColors[m]; ok {
		return c
	}
	return color.Black
}

func save(p *gonumplot.Plot, path string) error {
	if err := p.Save(width, height, path); err != nil {
		return errors.Wrapf(err, "failed to save plot %s", path)
	}
	return nil
}

func writePNG(c vgimg.PngCanvas, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", path)
	}
	if _, err := c.WriteTo(f); err != nil {
		f.Close()
		return errors.Wrapf(err, "failed to write %s", path)
	}
	if err := f.Close(); err != nil {
		return errors.Wrapf(err, "failed to close %s", path)
	}
	return nil
}
