package pipeline

import (
	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"
)

var answerSanitizer = bluemonday.UGCPolicy()

// RenderHTML renders the answer text plus its references table as sanitized
// HTML for display surfaces that want rich output.
func (a Answer) RenderHTML() string {
	md := a.Text
	if a.ReferencesTable != "" {
		md += "\n\n" + a.ReferencesTable
	}

	p := parser.NewWithExtensions(parser.CommonExtensions | parser.Tables)
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags})
	rendered := markdown.ToHTML([]byte(md), p, renderer)

	return string(answerSanitizer.SanitizeBytes(rendered))
}
