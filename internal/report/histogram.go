package report

import (
	"bytes"
	"errors"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

var errNoBins = errors.New("summary has no event bins")

// HistogramPNG renders the event-rate histogram of sum as a PNG image.
func HistogramPNG(sum Summary, tr Translator, width, height vg.Length) ([]byte, error) {
	if len(sum.Bins) == 0 {
		return nil, errNoBins
	}
	if width <= 0 {
		width = 16 * vg.Centimeter
	}
	if height <= 0 {
		height = 7 * vg.Centimeter
	}
	p := plot.New()
	p.Title.Text = tr.T("histogram.title")
	p.X.Label.Text = tr.T("histogram.x")
	p.Y.Label.Text = tr.T("histogram.y")

	xys := make(plotter.XYs, len(sum.Bins))
	for i, b := range sum.Bins {
		xys[i].X = float64(b.Start) + float64(b.End-b.Start)/2
		xys[i].Y = float64(b.Events)
	}
	h, err := plotter.NewHistogram(xys, len(xys))
	if err != nil {
		return nil, err
	}
	p.Add(h)

	wt, err := p.WriterTo(width, height, "png")
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
