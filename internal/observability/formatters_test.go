package observability

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jonathan/market-research/internal/fallback"
	"github.com/jonathan/market-research/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestPrintRequest(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintRequest(&types.ResearchRequest{
		ID:          uuid.New(),
		Topic:       "EV Market",
		Industry:    "Automotive",
		Timeframe:   types.TimeframeMediumTerm,
		Depth:       types.DepthComprehensive,
		FocusAreas:  []string{"batteries", "charging"},
		Status:      types.StatusCompleted,
		Progress:    100,
		ArtifactURL: "/api/downloads/x.pdf",
	})
	output := buf.String()

	assert.Contains(t, output, "RESEARCH REQUEST")
	assert.Contains(t, output, "EV Market")
	assert.Contains(t, output, "batteries, charging")
	assert.Contains(t, output, "completed (100%)")
	assert.Contains(t, output, "/api/downloads/x.pdf")
}

func TestPrintResults(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	req := &types.ResearchRequest{Industry: "Automotive"}
	data := fallback.Collect(req)
	results := fallback.Compile(fallback.Analyze(req, data), fallback.Visualize(data))
	p.PrintResults(&results)
	output := buf.String()

	assert.Contains(t, output, "REPORT")
	assert.Contains(t, output, "1. Executive Summary")
	assert.Contains(t, output, "CAGR 21.7%")
	assert.Contains(t, output, "Company A (18%)")
	assert.Contains(t, output, "... and 5 more")
	assert.Contains(t, output, "Trend A")
}

func TestPrintNil(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintRequest(nil)
	p.PrintResults(nil)
	assert.Empty(t, buf.String())
}

func TestPrintProgress(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintProgress("analyze", 60)

	assert.Contains(t, buf.String(), " 60%  analyze")
	assert.Equal(t, 18, strings.Count(buf.String(), "█"))
}

func TestWrapAndTruncate(t *testing.T) {
	assert.Equal(t, "aaa bbb\nccc", wrap("aaa bbb ccc", 7))
	assert.Equal(t, "", wrap("   ", 10))
	assert.Equal(t, "abcdefg", truncate("abcdefg", 7))
	assert.Equal(t, "abcd...", truncate("abcdefghij", 7))
}
