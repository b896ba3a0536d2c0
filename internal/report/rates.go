package report

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"example.com/evt3gate/internal/evt3"
)

// Bin counts the events whose timestamps fall in [Start, End).
type Bin struct {
	Start  uint64 `json:"start"`
	End    uint64 `json:"end"`
	Events int64  `json:"events"`
	On     int64  `json:"on"`
}

// RateStats describes how events are spread over the recording.
type RateStats struct {
	BinWidth        uint64  `json:"binWidthUs"`
	MeanPerBin      float64 `json:"meanPerBin"`
	StdDevPerBin    float64 `json:"stdDevPerBin"`
	MedianPerBin    float64 `json:"medianPerBin"`
	PeakPerBin      float64 `json:"peakPerBin"`
	PeakBin         int     `json:"peakBin"`
	OnFraction      float64 `json:"onFraction"`
	EventsPerSecond float64 `json:"eventsPerSecond"`
}

func binEvents(events []evt3.Event, meta evt3.Metadata, n int) []Bin {
	if len(events) == 0 || meta.Empty() || n <= 0 {
		return nil
	}
	width := meta.Span()/uint64(n) + 1
	bins := make([]Bin, n)
	for i := range bins {
		bins[i].Start = meta.MinTime + uint64(i)*width
		bins[i].End = bins[i].Start + width
	}
	for _, ev := range events {
		if ev.Timestamp < meta.MinTime {
			continue
		}
		idx := int((ev.Timestamp - meta.MinTime) / width)
		if idx >= n {
			idx = n - 1
		}
		bins[idx].Events++
		if ev.Polarity != 0 {
			bins[idx].On++
		}
	}
	return bins
}

func computeRates(bins []Bin, meta evt3.Metadata) RateStats {
	var rs RateStats
	if len(bins) == 0 {
		return rs
	}
	rs.BinWidth = bins[0].End - bins[0].Start
	counts := make([]float64, len(bins))
	var total, on int64
	for i, b := range bins {
		counts[i] = float64(b.Events)
		total += b.Events
		on += b.On
		if counts[i] > rs.PeakPerBin {
			rs.PeakPerBin = counts[i]
			rs.PeakBin = i
		}
	}
	rs.MeanPerBin, rs.StdDevPerBin = stat.MeanStdDev(counts, nil)
	if math.IsNaN(rs.StdDevPerBin) {
		rs.StdDevPerBin = 0
	}
	sorted := append([]float64(nil), counts...)
	sort.Float64s(sorted)
	rs.MedianPerBin = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	if total > 0 {
		rs.OnFraction = float64(on) / float64(total)
	}
	if span := meta.Span(); span > 0 {
		rs.EventsPerSecond = float64(total) / (float64(span) / 1e6)
	}
	return rs
}
