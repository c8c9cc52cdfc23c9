package loader

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"
)

// Elements whose text becomes its own paragraph.
const blockSelector = "h1, h2, h3, h4, h5, h6, p, li, pre, blockquote, td, th, dt, dd"

// HTMLToText extracts the readable text and the title of an HTML page.
// Scripts, styles and markup are dropped; block elements become paragraphs
// separated by blank lines.
func HTMLToText(r io.Reader) (text, title string, err error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return "", "", fmt.Errorf("failed to read html: %w", err)
	}

	// The title lives in <head>, which the sanitizer strips.
	if head, err := goquery.NewDocumentFromReader(bytes.NewReader(raw)); err == nil {
		title = strings.TrimSpace(head.Find("title").First().Text())
	}

	clean := bluemonday.UGCPolicy().SanitizeBytes(raw)
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(clean))
	if err != nil {
		return "", "", fmt.Errorf("failed to parse html: %w", err)
	}

	var paragraphs []string
	doc.Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
		// Nested blocks are visited on their own.
		if s.Find(blockSelector).Length() > 0 {
			return
		}
		if p := collapseSpace(s.Text()); p != "" {
			paragraphs = append(paragraphs, p)
		}
	})
	if len(paragraphs) == 0 {
		if p := collapseSpace(doc.Text()); p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	return strings.Join(paragraphs, "\n\n"), title, nil
}

// MarkdownToText renders Markdown and extracts its text.
func MarkdownToText(md []byte) (string, error) {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags})
	rendered := markdown.ToHTML(md, p, renderer)

	text, _, err := HTMLToText(bytes.NewReader(rendered))
	return text, err
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
