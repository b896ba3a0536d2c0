package report

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"example.com/evt3gate/internal/evt3"
)

// PDFOptions tunes SaveSummaryPDF.
type PDFOptions struct {
	Language Language
	// SkipHistogram omits the event-rate chart.
	SkipHistogram bool
}

// core fonts are cp1252; fold the Turkish letters it lacks.
var cp1252Fold = strings.NewReplacer("ğ", "g", "Ğ", "G", "ş", "s", "Ş", "S", "ı", "i", "İ", "I")

// SaveSummaryPDF renders the given decode summary into a PDF document.
func SaveSummaryPDF(sum Summary, out string, opts PDFOptions) error {
	tr := NewTranslator(opts.Language)
	pdf := gofpdf.New("P", "mm", "A4", "")
	utf := pdf.UnicodeTranslatorFromDescriptor("")
	text := func(s string) string { return utf(cp1252Fold.Replace(s)) }

	pdf.SetTitle(text(tr.T("title")), false)
	pdf.SetAuthor("evt3ctl", false)
	pdf.SetCreator("evt3ctl", false)
	pdf.SetMargins(15, 20, 15)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()

	addPDFTitle(pdf, text(tr.T("title")))
	addRecordingSection(pdf, sum, tr, text)
	addStatsSection(pdf, sum, tr, text)
	addWordTypeSection(pdf, sum.Stats, tr, text)
	if !opts.SkipHistogram && len(sum.Bins) > 0 {
		if err := addHistogram(pdf, sum, tr, text); err != nil {
			return err
		}
	}
	if sum.Digest != "" {
		if err := addDigestSection(pdf, sum.Digest, tr, text); err != nil {
			return err
		}
	}

	if pdf.Err() {
		return pdf.Error()
	}
	return pdf.OutputFileAndClose(out)
}

func addPDFTitle(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, title)
	pdf.Ln(12)
}

func addSectionTitle(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, title)
	pdf.Ln(8)
}

func addKeyValues(pdf *gofpdf.Fpdf, items [][2]string) {
	pdf.SetFont("Helvetica", "", 11)
	for _, item := range items {
		pdf.CellFormat(60, 6, item[0], "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, emptyFallback(item[1], "-"), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)
}

func addRecordingSection(pdf *gofpdf.Fpdf, sum Summary, tr Translator, text func(string) string) {
	addSectionTitle(pdf, text(tr.T("section.recording")))
	items := [][2]string{
		{text(tr.T("label.name")), text(sum.Name)},
		{text(tr.T("label.format")), sum.Header.Format},
		{text(tr.T("label.geometry")), fmt.Sprintf("%d x %d", sum.Metadata.Width, sum.Metadata.Height)},
		{text(tr.T("label.timeRange")), timeRangeLabel(sum.Metadata, tr, text)},
		{text(tr.T("label.generated")), sum.GeneratedAt.Format(time.RFC3339)},
	}
	if sum.Size > 0 {
		items = append(items, [2]string{text(tr.T("label.size")), strconv.FormatInt(sum.Size, 10)})
	}
	for _, key := range []string{"date", "camera_integrator_name", "serial_number"} {
		if v := sum.Header.Fields[key]; v != "" {
			items = append(items, [2]string{key, text(v)})
		}
	}
	addKeyValues(pdf, items)
}

func addStatsSection(pdf *gofpdf.Fpdf, sum Summary, tr Translator, text func(string) string) {
	addSectionTitle(pdf, text(tr.T("section.stats")))
	st := sum.Stats
	addKeyValues(pdf, [][2]string{
		{text(tr.T("label.events")), strconv.FormatInt(st.Events, 10)},
		{text(tr.T("label.words")), strconv.FormatInt(st.Words, 10)},
		{text(tr.T("label.timeLoops")), strconv.FormatUint(st.TimeLoops, 10)},
		{text(tr.T("label.extTriggers")), strconv.FormatInt(st.ExtTriggers, 10)},
		{text(tr.T("label.unknown")), strconv.FormatInt(st.Unknown, 10)},
		{text(tr.T("label.beforeTimeBase")), strconv.FormatInt(st.BeforeTimeBase, 10)},
		{text(tr.T("label.trailing")), strconv.FormatInt(st.TrailingBytes, 10)},
		{text(tr.T("label.rate")), fmt.Sprintf("%.1f", sum.Rates.EventsPerSecond)},
		{text(tr.T("label.onFraction")), fmt.Sprintf("%.1f%%", sum.Rates.OnFraction*100)},
		{text(tr.T("label.perBin")), fmt.Sprintf("%.1f / %.1f / %.1f", sum.Rates.MeanPerBin, sum.Rates.MedianPerBin, sum.Rates.StdDevPerBin)},
		{text(tr.T("label.decodeTime")), st.Duration.String()},
	})
}

func addWordTypeSection(pdf *gofpdf.Fpdf, st evt3.Stats, tr Translator, text func(string) string) {
	addSectionTitle(pdf, text(tr.T("section.wordTypes")))
	headers := []string{text(tr.T("column.type")), text(tr.T("column.tag")), text(tr.T("column.count"))}
	widths := []float64{60, 30, 50}

	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Helvetica", "B", 10)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	for tag, count := range st.ByType {
		if count == 0 {
			continue
		}
		t := evt3.EventType(tag)
		renderTableRow(pdf, widths, []string{t.String(), fmt.Sprintf("0x%X", tag), strconv.FormatInt(count, 10)}, 5)
	}
	pdf.Ln(4)
}

func addHistogram(pdf *gofpdf.Fpdf, sum Summary, tr Translator, text func(string) string) error {
	png, err := HistogramPNG(sum, tr, 0, 0)
	if err != nil {
		return fmt.Errorf("render histogram: %w", err)
	}
	addSectionTitle(pdf, text(tr.T("section.histogram")))
	opts := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: true}
	pdf.RegisterImageOptionsReader("histogram", opts, bytes.NewReader(png))
	pdf.ImageOptions("histogram", pdf.GetX(), pdf.GetY(), 170, 0, true, opts, 0, "")
	pdf.Ln(4)
	return nil
}

func addDigestSection(pdf *gofpdf.Fpdf, digest string, tr Translator, text func(string) string) error {
	png, err := DigestToQR(digest, 0)
	if err != nil {
		return fmt.Errorf("digest qr: %w", err)
	}
	addSectionTitle(pdf, text(tr.T("section.digest")))
	pdf.SetFont("Courier", "", 9)
	pdf.MultiCell(0, 5, digest, "", "L", false)
	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("digest-qr", opts, bytes.NewReader(png))
	pdf.ImageOptions("digest-qr", pdf.GetX(), pdf.GetY()+2, 35, 35, true, opts, 0, "")
	return nil
}

func renderTableRow(pdf *gofpdf.Fpdf, widths []float64, values []string, lineHeight float64) {
	xStart := pdf.GetX()
	yStart := pdf.GetY()
	maxLines := 1
	splitCols := make([][]string, len(values))
	for i, val := range values {
		text := strings.TrimSpace(val)
		if text == "" {
			text = "-"
		}
		lines := pdf.SplitText(text, widths[i]-2)
		if len(lines) == 0 {
			lines = []string{""}
		}
		splitCols[i] = lines
		if len(lines) > maxLines {
			maxLines = len(lines)
		}
	}
	rowHeight := float64(maxLines) * lineHeight
	x := xStart
	for i, lines := range splitCols {
		pdf.SetXY(x, yStart)
		pdf.MultiCell(widths[i], lineHeight, strings.Join(lines, "\n"), "1", "L", false)
		x += widths[i]
	}
	pdf.SetXY(xStart, yStart+rowHeight)
}

func timeRangeLabel(meta evt3.Metadata, tr Translator, text func(string) string) string {
	if meta.Empty() {
		return text(tr.T("value.noEvents"))
	}
	return text(tr.Format("value.timeRange", meta.MinTime, meta.MaxTime, meta.Span()))
}

func emptyFallback(val, fallback string) string {
	if strings.TrimSpace(val) == "" {
		return fallback
	}
	return val
}
