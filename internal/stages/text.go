package stages

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonathan/market-research/internal/types"
)

var (
	markdownEmphasis = regexp.MustCompile(`\*\*|__|` + "`")
	markdownHeading  = regexp.MustCompile(`(?m)^\s{0,3}#{1,6}\s+`)
	whitespaceRun    = regexp.MustCompile(`[ \t]+`)
	blankLines       = regexp.MustCompile(`\n{3,}`)
	blockBreak       = regexp.MustCompile(`(?i)<br\s*/?>|</(p|li|h[1-6]|div)>`)
)

// plainText strips HTML tags and markdown emphasis from generated prose so the
// report renders as plain paragraphs.
func plainText(s string) string {
	if strings.ContainsAny(s, "<>") {
		marked := blockBreak.ReplaceAllStringFunc(s, func(tag string) string { return tag + "\n" })
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(marked)); err == nil {
			doc.Find("script, style").Remove()
			s = doc.Text()
		}
	}
	s = markdownHeading.ReplaceAllString(s, "")
	s = markdownEmphasis.ReplaceAllString(s, "")
	s = whitespaceRun.ReplaceAllString(s, " ")
	s = blankLines.ReplaceAllString(s, "\n\n")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func cleanSections(sections []types.Section) {
	for i := range sections {
		sections[i].Title = plainText(sections[i].Title)
		sections[i].Content = plainText(sections[i].Content)
	}
}

// checkProse rejects prose that cleanup reduced to nothing.
func checkProse(summary string, sections []types.Section) error {
	if summary == "" {
		return errors.New("summary is empty after cleanup")
	}
	for i, s := range sections {
		if s.Title == "" || s.Content == "" {
			return fmt.Errorf("section %d is empty after cleanup", i)
		}
	}
	return nil
}
