// Package observability holds the logging, metrics and console output helpers.
package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/jonathan/market-research/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer renders research requests and results as boxed console summaries.
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // console output; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, truncate(line, boxWidth-4))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintRequest outputs the request parameters and lifecycle state.
func (p *Printer) PrintRequest(req *types.ResearchRequest) {
	if req == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("ID:        %s\n", req.ID))
	sb.WriteString(fmt.Sprintf("Topic:     %s\n", req.Topic))
	sb.WriteString(fmt.Sprintf("Industry:  %s\n", req.Industry))
	sb.WriteString(fmt.Sprintf("Timeframe: %s\n", req.Timeframe))
	sb.WriteString(fmt.Sprintf("Depth:     %s\n", req.Depth))
	if len(req.FocusAreas) > 0 {
		sb.WriteString(fmt.Sprintf("Focus:     %s\n", strings.Join(req.FocusAreas, ", ")))
	}
	sb.WriteString(fmt.Sprintf("Status:    %s (%d%%)", req.Status, req.Progress))
	if req.ArtifactURL != "" {
		sb.WriteString(fmt.Sprintf("\nArtifact:  %s", req.ArtifactURL))
	}

	p.printBox("RESEARCH REQUEST", sb.String())
}

// PrintResults outputs the summary, section titles and chart data of a report.
func (p *Printer) PrintResults(results *types.Results) {
	if results == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(wrap(results.Summary, boxWidth-4))
	sb.WriteString("\n\nSections:\n")
	for i, section := range results.Sections {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, section.Title))
	}

	viz := results.Visualizations
	if n := len(viz.MarketSize.Years); n > 0 && len(viz.MarketSize.Values) == n {
		sb.WriteString(fmt.Sprintf("\nMarket size %d → %d: %g → %g (CAGR %g%%)\n",
			viz.MarketSize.Years[0], viz.MarketSize.Years[n-1],
			viz.MarketSize.Values[0], viz.MarketSize.Values[n-1], viz.MarketSize.CAGR))
	}

	if len(viz.Competitors) > 0 {
		sb.WriteString("\nTop competitors:\n")
		count := min(len(viz.Competitors), maxItemsToShow)
		for i := 0; i < count; i++ {
			sb.WriteString(fmt.Sprintf("  • %s (%g%%)\n", viz.Competitors[i].Name, viz.Competitors[i].Share))
		}
		if len(viz.Competitors) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(viz.Competitors)-maxItemsToShow))
		}
	}

	if len(viz.Trends) > 0 {
		names := make([]string, 0, len(viz.Trends))
		for _, trend := range viz.Trends {
			names = append(names, trend.Name)
		}
		sb.WriteString(fmt.Sprintf("\nTrends: %s\n", strings.Join(names, ", ")))
	}

	p.printBox("REPORT", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintProgress outputs a one-line progress bar.
//
//nolint:errcheck // console output; errors are not recoverable
func (p *Printer) PrintProgress(stage string, progress int) {
	const width = 30
	filled := progress * width / 100
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	fmt.Fprintf(p.out, "[%s] %3d%%  %s\n", bar, progress, stage)
}

// truncate shortens s to at most n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// wrap breaks text into lines no longer than width, splitting on spaces.
func wrap(text string, width int) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}

	var sb strings.Builder
	lineLen := 0
	for i, word := range words {
		if i > 0 {
			if lineLen+1+len(word) > width {
				sb.WriteString("\n")
				lineLen = 0
			} else {
				sb.WriteString(" ")
				lineLen++
			}
		}
		sb.WriteString(word)
		lineLen += len(word)
	}
	return sb.String()
}
