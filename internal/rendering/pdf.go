package rendering

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jung-kurt/gofpdf/v2"

	"github.com/jonathan/market-research/internal/types"
)

const (
	pageMarginX = 18.0
	pageMarginY = 20.0
	contentW    = 210.0 - 2*pageMarginX
	fontFamily  = "Helvetica"

	tocExecutiveSummary = "Executive Summary"
	tocMarketSize       = "Market Size and Growth"
	tocCompetitors      = "Competitive Landscape"
	tocTrends           = "Key Market Trends"
)

// PDFRenderer lays out a completed request as an A4 report: cover, table of
// contents, executive summary, one page per section and, when the request asked for
// them, data tables for market size, competitors and trends.
type PDFRenderer struct {
	now      func() time.Time
	compress bool
}

// NewPDFRenderer creates a renderer with compressed page streams.
func NewPDFRenderer() *PDFRenderer {
	return &PDFRenderer{now: time.Now, compress: true}
}

// tocEntry is one line of the table of contents and the page its chapter starts on.
type tocEntry struct {
	title string
	page  int
}

// Render implements DocumentRenderer. The document is laid out twice: the first
// pass records where each chapter starts so the second can print page numbers.
func (r *PDFRenderer) Render(ctx context.Context, req *types.ResearchRequest) ([]byte, error) {
	if req == nil || req.Results == nil {
		return nil, ErrNotCompleted
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	_, toc := r.layout(req, nil)
	pdf, _ := r.layout(req, toc)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, &RenderError{Message: "failed to generate PDF", Cause: err}
	}
	return buf.Bytes(), nil
}

func (r *PDFRenderer) layout(req *types.ResearchRequest, toc []tocEntry) (*gofpdf.Fpdf, []tocEntry) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetCompression(r.compress)
	pdf.SetMargins(pageMarginX, pageMarginY, pageMarginX)
	pdf.SetAutoPageBreak(true, pageMarginY)
	pdf.AliasNbPages("{nb}")
	pdf.SetTitle(req.Topic, true)
	pdf.SetAuthor("Market Research", true)
	pdf.SetSubject(req.Industry+" Industry Analysis", true)
	pdf.SetCreationDate(r.now())

	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont(fontFamily, "", 9)
		pdf.SetTextColor(108, 117, 125)
		footer := fmt.Sprintf("%s | Market Research | Page %d of {nb}", req.Topic, pdf.PageNo())
		pdf.CellFormat(0, 10, tr(footer), "", 0, "C", false, 0, "")
	})

	results := req.Results
	entries := []string{tocExecutiveSummary}
	for _, s := range results.Sections {
		entries = append(entries, s.Title)
	}
	if req.Visualizations {
		entries = append(entries, tocMarketSize, tocCompetitors, tocTrends)
	}

	r.coverPage(pdf, tr, req)
	r.tocPage(pdf, tr, entries, toc)

	starts := make([]tocEntry, 0, len(entries))
	chapter := func(title string) {
		pdf.AddPage()
		starts = append(starts, tocEntry{title: title, page: pdf.PageNo()})
		heading(pdf, tr, title)
	}

	chapter(tocExecutiveSummary)
	paragraph(pdf, tr, results.Summary)

	for _, s := range results.Sections {
		chapter(s.Title)
		paragraph(pdf, tr, s.Content)
	}

	if req.Visualizations {
		viz := results.Visualizations
		chapter(tocMarketSize)
		marketSizeTable(pdf, tr, req.Industry, viz.MarketSize)
		chapter(tocCompetitors)
		competitorTable(pdf, tr, viz.Competitors)
		chapter(tocTrends)
		trendTable(pdf, tr, viz.MarketSize.Years, viz.Trends)
	}
	return pdf, starts
}

func (r *PDFRenderer) coverPage(pdf *gofpdf.Fpdf, tr func(string) string, req *types.ResearchRequest) {
	pdf.AddPage()
	pdf.SetY(90)
	pdf.SetFont(fontFamily, "B", 28)
	pdf.SetTextColor(0, 102, 204)
	pdf.MultiCell(0, 12, tr(req.Topic), "", "C", false)

	pdf.Ln(6)
	pdf.SetFont(fontFamily, "", 18)
	pdf.SetTextColor(33, 37, 41)
	pdf.MultiCell(0, 10, tr(req.Industry+" Industry Analysis"), "", "C", false)

	pdf.Ln(6)
	pdf.SetFont(fontFamily, "", 12)
	pdf.SetTextColor(108, 117, 125)
	pdf.CellFormat(0, 8, "Generated on "+r.now().Format("January 2, 2006"), "", 1, "C", false, 0, "")
}

func (r *PDFRenderer) tocPage(pdf *gofpdf.Fpdf, tr func(string) string, entries []string, pages []tocEntry) {
	pdf.AddPage()
	heading(pdf, tr, "Table of Contents")

	pdf.SetFont(fontFamily, "", 12)
	pdf.SetTextColor(33, 37, 41)
	for i, title := range entries {
		page := ""
		if i < len(pages) {
			page = strconv.Itoa(pages[i].page)
		}
		pdf.CellFormat(contentW-20, 8, tr(title), "", 0, "L", false, 0, "")
		pdf.CellFormat(20, 8, page, "", 1, "R", false, 0, "")
	}
}

func heading(pdf *gofpdf.Fpdf, tr func(string) string, title string) {
	pdf.SetFont(fontFamily, "B", 20)
	pdf.SetTextColor(33, 37, 41)
	pdf.MultiCell(0, 10, tr(title), "", "L", false)
	pdf.SetLineWidth(0.5)
	pdf.SetDrawColor(0, 102, 204)
	pdf.Line(pageMarginX, pdf.GetY()+1, pageMarginX+contentW, pdf.GetY()+1)
	pdf.Ln(6)
}

func paragraph(pdf *gofpdf.Fpdf, tr func(string) string, text string) {
	pdf.SetFont(fontFamily, "", 12)
	pdf.SetTextColor(33, 37, 41)
	pdf.MultiCell(0, 6, tr(text), "", "J", false)
}

func tableHeader(pdf *gofpdf.Fpdf, tr func(string) string, widths []float64, labels []string) {
	pdf.SetFont(fontFamily, "B", 10)
	pdf.SetFillColor(0, 102, 204)
	pdf.SetTextColor(255, 255, 255)
	for i, label := range labels {
		pdf.CellFormat(widths[i], 8, tr(label), "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont(fontFamily, "", 10)
	pdf.SetTextColor(33, 37, 41)
}

func marketSizeTable(pdf *gofpdf.Fpdf, tr func(string) string, industry string, size types.MarketSize) {
	paragraph(pdf, tr, fmt.Sprintf("Projected size of the global %s market by year, growing at a CAGR of %s%%.",
		industry, formatNumber(size.CAGR)))
	pdf.Ln(4)

	widths := []float64{40, 60}
	tableHeader(pdf, tr, widths, []string{"Year", "Market Size ($B)"})
	for i, year := range size.Years {
		if i >= len(size.Values) {
			break
		}
		pdf.CellFormat(widths[0], 7, strconv.Itoa(year), "1", 0, "C", false, 0, "")
		pdf.CellFormat(widths[1], 7, formatNumber(size.Values[i]), "1", 1, "R", false, 0, "")
	}
}

// competitorTable prints shares with a proportional bar beside each row.
func competitorTable(pdf *gofpdf.Fpdf, tr func(string) string, competitors []types.Share) {
	paragraph(pdf, tr, "Market share by company (%).")
	pdf.Ln(4)

	widths := []float64{60, 25, contentW - 85}
	tableHeader(pdf, tr, widths, []string{"Company", "Share (%)", ""})
	for _, c := range competitors {
		y := pdf.GetY()
		pdf.CellFormat(widths[0], 7, tr(c.Name), "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[1], 7, formatNumber(c.Share), "1", 0, "R", false, 0, "")
		x := pdf.GetX()
		pdf.CellFormat(widths[2], 7, "", "1", 1, "L", false, 0, "")
		if c.Share > 0 {
			pdf.SetFillColor(0, 102, 204)
			pdf.Rect(x+1, y+1.5, (widths[2]-2)*min(c.Share, 100)/100, 4, "F")
		}
	}
}

func trendTable(pdf *gofpdf.Fpdf, tr func(string) string, years []int, trends []types.Trend) {
	paragraph(pdf, tr, "Key trend indicators by year.")
	pdf.Ln(4)
	if len(trends) == 0 {
		return
	}

	yearW := 25.0
	colW := (contentW - yearW) / float64(len(trends))
	widths := []float64{yearW}
	labels := []string{"Year"}
	for _, t := range trends {
		widths = append(widths, colW)
		labels = append(labels, t.Name)
	}
	tableHeader(pdf, tr, widths, labels)

	for i, year := range years {
		pdf.CellFormat(yearW, 7, strconv.Itoa(year), "1", 0, "C", false, 0, "")
		for _, t := range trends {
			value := ""
			if i < len(t.Data) {
				value = formatNumber(t.Data[i])
			}
			pdf.CellFormat(colW, 7, value, "1", 0, "R", false, 0, "")
		}
		pdf.Ln(-1)
	}
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
